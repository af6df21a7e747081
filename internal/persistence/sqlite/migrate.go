package sqlite

import (
	"database/sql"
	"fmt"
)

const schemaVersion = 1

// Migrate brings the database to the current schema version.
// Gated on PRAGMA user_version so reopening an up-to-date file is a no-op.
func Migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Timestamps are RFC3339Nano TEXT. All ids and update_id watermarks are
// canonical UUIDv7 strings, so string comparison orders them by time.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	is_admin INTEGER NOT NULL DEFAULT 0,
	storage_label TEXT,
	quota_size_bytes INTEGER,
	quota_usage_bytes INTEGER NOT NULL DEFAULT 0,
	profile_image_path TEXT NOT NULL DEFAULT '',
	pin_code TEXT,
	status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','removing','deleted')),
	deleted_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_users_update_id ON users(update_id);

CREATE TABLE IF NOT EXISTS user_metadata (
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL,
	PRIMARY KEY (user_id, key)
);
CREATE INDEX IF NOT EXISTS idx_user_metadata_update_id ON user_metadata(update_id);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	token_hash TEXT NOT NULL UNIQUE,
	expires_at TEXT,
	pin_expires_at TEXT,
	device_os TEXT NOT NULL DEFAULT '',
	device_type TEXT NOT NULL DEFAULT '',
	app_version TEXT,
	pending_sync_reset INTEGER NOT NULL DEFAULT 0,
	parent_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS api_keys (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL DEFAULT '',
	key_hash TEXT NOT NULL UNIQUE,
	permissions TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shared_links (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	key BLOB NOT NULL UNIQUE,
	slug TEXT UNIQUE,
	type TEXT NOT NULL CHECK(type IN ('album','individual')),
	album_id TEXT REFERENCES albums(id) ON DELETE CASCADE,
	description TEXT,
	password TEXT,
	expires_at TEXT,
	allow_upload INTEGER NOT NULL DEFAULT 0,
	allow_download INTEGER NOT NULL DEFAULT 1,
	show_exif INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS shared_link_assets (
	link_id TEXT NOT NULL REFERENCES shared_links(id) ON DELETE CASCADE,
	asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	PRIMARY KEY (link_id, asset_id)
);

CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	library_id TEXT,
	device_asset_id TEXT NOT NULL DEFAULT '',
	device_id TEXT NOT NULL DEFAULT '',
	checksum BLOB NOT NULL,
	original_path TEXT NOT NULL,
	original_file_name TEXT NOT NULL,
	encoded_video_path TEXT,
	type TEXT NOT NULL CHECK(type IN ('IMAGE','VIDEO','AUDIO','OTHER')),
	visibility TEXT NOT NULL DEFAULT 'timeline' CHECK(visibility IN ('timeline','archive','hidden','locked')),
	is_favorite INTEGER NOT NULL DEFAULT 0,
	file_created_at TEXT NOT NULL,
	file_modified_at TEXT NOT NULL,
	local_date_time TEXT NOT NULL,
	duration TEXT,
	live_photo_video_id TEXT,
	stack_id TEXT,
	status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active','trashed','deleted')),
	deleted_at TEXT,
	file_size_bytes INTEGER NOT NULL DEFAULT 0,
	width INTEGER,
	height INTEGER,
	thumbhash BLOB,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_assets_owner_checksum
	ON assets(owner_id, ifnull(library_id,''), checksum) WHERE status != 'deleted';
CREATE INDEX IF NOT EXISTS idx_assets_update_id ON assets(update_id);
CREATE INDEX IF NOT EXISTS idx_assets_owner_localdate ON assets(owner_id, local_date_time);
CREATE INDEX IF NOT EXISTS idx_assets_owner_device ON assets(owner_id, device_id, device_asset_id);
CREATE INDEX IF NOT EXISTS idx_assets_stack ON assets(stack_id);

CREATE TABLE IF NOT EXISTS asset_exif (
	asset_id TEXT PRIMARY KEY REFERENCES assets(id) ON DELETE CASCADE,
	make TEXT,
	model TEXT,
	exif_image_width INTEGER,
	exif_image_height INTEGER,
	file_size_byte INTEGER,
	orientation TEXT,
	date_time_original TEXT,
	modify_date TEXT,
	time_zone TEXT,
	latitude REAL,
	longitude REAL,
	projection_type TEXT,
	city TEXT,
	state TEXT,
	country TEXT,
	description TEXT NOT NULL DEFAULT '',
	fps REAL,
	exposure_time TEXT,
	rating INTEGER,
	iso INTEGER,
	f_number REAL,
	focal_length REAL,
	lens_model TEXT,
	live_photo_cid TEXT,
	auto_stack_id TEXT,
	colorspace TEXT,
	bits_per_sample INTEGER,
	profile_description TEXT,
	locked_properties TEXT NOT NULL DEFAULT '[]',
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_asset_exif_update_id ON asset_exif(update_id);

CREATE TABLE IF NOT EXISTS asset_files (
	id TEXT PRIMARY KEY,
	asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	type TEXT NOT NULL CHECK(type IN ('fullsize','preview','thumbnail','sidecar')),
	path TEXT NOT NULL,
	is_edited INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (asset_id, type, is_edited)
);

CREATE TABLE IF NOT EXISTS asset_metadata (
	asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL,
	PRIMARY KEY (asset_id, key)
);
CREATE INDEX IF NOT EXISTS idx_asset_metadata_update_id ON asset_metadata(update_id);

CREATE TABLE IF NOT EXISTS albums (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	thumbnail_asset_id TEXT REFERENCES assets(id) ON DELETE SET NULL,
	is_activity_enabled INTEGER NOT NULL DEFAULT 1,
	sort_order TEXT NOT NULL DEFAULT 'desc' CHECK(sort_order IN ('asc','desc')),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_albums_update_id ON albums(update_id);

CREATE TABLE IF NOT EXISTS album_assets (
	album_id TEXT NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
	asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	update_id TEXT NOT NULL,
	PRIMARY KEY (album_id, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_album_assets_update_id ON album_assets(update_id);
CREATE INDEX IF NOT EXISTS idx_album_assets_asset ON album_assets(asset_id);

CREATE TABLE IF NOT EXISTS album_users (
	album_id TEXT NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL DEFAULT 'editor' CHECK(role IN ('editor','viewer')),
	update_id TEXT NOT NULL,
	PRIMARY KEY (album_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_album_users_update_id ON album_users(update_id);
CREATE INDEX IF NOT EXISTS idx_album_users_user ON album_users(user_id);

CREATE TABLE IF NOT EXISTS tags (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	value TEXT NOT NULL,
	color TEXT,
	parent_id TEXT REFERENCES tags(id) ON DELETE CASCADE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (user_id, value)
);

CREATE TABLE IF NOT EXISTS tag_assets (
	tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	PRIMARY KEY (tag_id, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_tag_assets_asset ON tag_assets(asset_id);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	data TEXT NOT NULL DEFAULT '{}',
	is_saved INTEGER NOT NULL DEFAULT 0,
	memory_at TEXT NOT NULL,
	seen_at TEXT,
	deleted_at TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_update_id ON memories(update_id);

CREATE TABLE IF NOT EXISTS memory_assets (
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	update_id TEXT NOT NULL,
	PRIMARY KEY (memory_id, asset_id)
);
CREATE INDEX IF NOT EXISTS idx_memory_assets_update_id ON memory_assets(update_id);

CREATE TABLE IF NOT EXISTS stacks (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	primary_asset_id TEXT NOT NULL REFERENCES assets(id),
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stacks_update_id ON stacks(update_id);

CREATE TABLE IF NOT EXISTS partners (
	shared_by_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	shared_with_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	in_timeline INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	update_id TEXT NOT NULL,
	PRIMARY KEY (shared_by_id, shared_with_id)
);
CREATE INDEX IF NOT EXISTS idx_partners_update_id ON partners(update_id);

CREATE TABLE IF NOT EXISTS session_sync_checkpoints (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	ack TEXT NOT NULL,
	update_id TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (session_id, type)
);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	album_id TEXT NOT NULL REFERENCES albums(id) ON DELETE CASCADE,
	asset_id TEXT REFERENCES assets(id) ON DELETE CASCADE,
	is_liked INTEGER NOT NULL DEFAULT 0,
	comment TEXT,
	created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_activities_like
	ON activities(user_id, album_id, ifnull(asset_id,'')) WHERE is_liked = 1;

CREATE TABLE IF NOT EXISTS system_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

-- Audit tables. id is a UUIDv7 issued at delete time; sync's delete scans
-- page over it the same way upsert scans page over update_id.
CREATE TABLE IF NOT EXISTS assets_audit (
	id TEXT PRIMARY KEY,
	asset_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS users_audit (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS albums_audit (
	id TEXT PRIMARY KEY,
	album_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS album_assets_audit (
	id TEXT PRIMARY KEY,
	album_id TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS album_users_audit (
	id TEXT PRIMARY KEY,
	album_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS partners_audit (
	id TEXT PRIMARY KEY,
	shared_by_id TEXT NOT NULL,
	shared_with_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS memories_audit (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS memory_assets_audit (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL,
	asset_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS stacks_audit (
	id TEXT PRIMARY KEY,
	stack_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS user_metadata_audit (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	key TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS asset_metadata_audit (
	id TEXT PRIMARY KEY,
	asset_id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	key TEXT NOT NULL,
	deleted_at TEXT NOT NULL
);
`
