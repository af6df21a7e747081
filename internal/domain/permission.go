package domain

// Permission names a resource kind and verb.
type Permission string

const (
	PermAssetRead     Permission = "asset.read"
	PermAssetView     Permission = "asset.view"
	PermAssetDownload Permission = "asset.download"
	PermAssetUpdate   Permission = "asset.update"
	PermAssetDelete   Permission = "asset.delete"
	PermAssetShare    Permission = "asset.share"
	PermAssetReplace  Permission = "asset.replace"
	PermAssetCopy     Permission = "asset.copy"
	PermAssetUpload   Permission = "asset.upload"

	PermAlbumRead   Permission = "album.read"
	PermAlbumUpdate Permission = "album.update"
	PermAlbumDelete Permission = "album.delete"
	PermAlbumShare  Permission = "album.share"

	PermActivityCreate Permission = "activity.create"
	PermPartnerUpdate  Permission = "partner.update"

	// PermAll on an api key grants every permission.
	PermAll Permission = "all"
)

// readOnly is the family a shared-link principal may exercise (plus the
// link's own allowUpload/allowDownload grants).
var readOnly = map[Permission]struct{}{
	PermAssetRead: {}, PermAssetView: {}, PermAssetDownload: {},
	PermAlbumRead: {},
}

// SharedLinkMay reports whether a shared-link principal can ever hold p.
func SharedLinkMay(p Permission, link *SharedLink) bool {
	if _, ok := readOnly[p]; ok {
		if p == PermAssetDownload && !link.AllowDownload {
			return false
		}
		return true
	}
	return p == PermAssetUpload && link.AllowUpload
}

// KeyGrants reports whether an api key's grant set covers p.
func KeyGrants(granted []string, p Permission) bool {
	for _, g := range granted {
		if g == string(PermAll) || g == string(p) {
			return true
		}
	}
	return false
}
