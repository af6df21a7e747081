package domain

import "time"

// User is an account. QuotaSizeBytes nil means unlimited.
type User struct {
	ID               string
	Email            string
	PasswordHash     string
	Name             string
	IsAdmin          bool
	StorageLabel     *string
	QuotaSizeBytes   *int64
	QuotaUsageBytes  int64
	ProfileImagePath string
	PinCode          *string
	Status           UserStatus
	DeletedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	UpdateID         string
}

// Session is a device login. TokenHash is the SHA-256 of the raw token; the
// raw value never touches the database.
type Session struct {
	ID               string
	UserID           string
	TokenHash        string
	ExpiresAt        *time.Time
	PinExpiresAt     *time.Time
	DeviceOS         string
	DeviceType       string
	AppVersion       *string
	PendingSyncReset bool
	ParentID         *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// APIKey is a long-lived credential with an explicit permission grant set.
type APIKey struct {
	ID          string
	UserID      string
	Name        string
	KeyHash     string
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SharedLink is an unauthenticated capability. Exactly one of AlbumID /
// the shared_link_assets rows is populated, per Type.
type SharedLink struct {
	ID            string
	UserID        string
	Key           []byte // 50 random bytes
	Slug          *string
	Type          SharedLinkType
	AlbumID       *string
	Description   *string
	Password      *string
	ExpiresAt     *time.Time
	AllowUpload   bool
	AllowDownload bool
	ShowExif      bool
	CreatedAt     time.Time
}

// Expired reports whether the link is past its expiry.
func (l *SharedLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// Asset is an owned media original plus its lifecycle state.
type Asset struct {
	ID               string
	OwnerID          string
	LibraryID        *string
	DeviceAssetID    string
	DeviceID         string
	Checksum         []byte // 20-byte SHA-1
	OriginalPath     string
	OriginalFileName string
	EncodedVideoPath *string
	Type             AssetType
	Visibility       AssetVisibility
	IsFavorite       bool
	FileCreatedAt    time.Time
	FileModifiedAt   time.Time
	LocalDateTime    time.Time
	Duration         *string
	LivePhotoVideoID *string
	StackID          *string
	Status           AssetStatus
	DeletedAt        *time.Time
	FileSizeBytes    int64
	Width            *int64
	Height           *int64
	Thumbhash        []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
	UpdateID         string
}

// Trashed reports whether the asset sits in the trash.
func (a *Asset) Trashed() bool { return a.Status == AssetStatusTrashed }

// Exif is the 1-1 metadata record for an asset. LockedProperties lists
// column names a user set explicitly; extractor runs never overwrite those.
type Exif struct {
	AssetID            string
	Make               *string
	Model              *string
	ExifImageWidth     *int64
	ExifImageHeight    *int64
	FileSizeByte       *int64
	Orientation        *string
	DateTimeOriginal   *time.Time
	ModifyDate         *time.Time
	TimeZone           *string
	Latitude           *float64
	Longitude          *float64
	ProjectionType     *string
	City               *string
	State              *string
	Country            *string
	Description        string
	FPS                *float64
	ExposureTime       *string
	Rating             *int64
	ISO                *int64
	FNumber            *float64
	FocalLength        *float64
	LensModel          *string
	LivePhotoCID       *string
	AutoStackID        *string
	Colorspace         *string
	BitsPerSample      *int64
	ProfileDescription *string
	LockedProperties   []string
	UpdatedAt          time.Time
	UpdateID           string
}

// AssetFile is a derivative or sidecar attached to an asset.
type AssetFile struct {
	ID       string
	AssetID  string
	Type     AssetFileType
	Path     string
	IsEdited bool
}

// Album groups assets, optionally shared with other users by role.
type Album struct {
	ID                string
	OwnerID           string
	Name              string
	Description       string
	ThumbnailAssetID  *string
	IsActivityEnabled bool
	Order             SortOrder
	CreatedAt         time.Time
	UpdatedAt         time.Time
	UpdateID          string
}

// AlbumUser is a delegated membership on an album.
type AlbumUser struct {
	AlbumID  string
	UserID   string
	Role     AlbumUserRole
	UpdateID string
}

// Tag is a user-scoped hierarchical label ("a/b/c").
type Tag struct {
	ID        string
	UserID    string
	Value     string
	Color     *string
	ParentID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Memory is a generated or saved collection anchored at a date.
type Memory struct {
	ID        string
	OwnerID   string
	Type      string
	Data      string // opaque JSON
	IsSaved   bool
	MemoryAt  time.Time
	SeenAt    *time.Time
	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	UpdateID  string
}

// Stack groups burst shots; PrimaryAssetID must be a member.
type Stack struct {
	ID             string
	OwnerID        string
	PrimaryAssetID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	UpdateID       string
}

// Partner is a directional timeline-visibility grant.
type Partner struct {
	SharedByID   string
	SharedWithID string
	InTimeline   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	UpdateID     string
}

// Checkpoint is the per-(session, sync type) ack watermark.
type Checkpoint struct {
	SessionID string
	Type      SyncEntityType
	Ack       string
	UpdateID  string
	UpdatedAt time.Time
}

// Activity is a like or comment on an album (optionally one asset).
type Activity struct {
	ID        string
	UserID    string
	AlbumID   string
	AssetID   *string
	IsLiked   bool
	Comment   *string
	CreatedAt time.Time
}
