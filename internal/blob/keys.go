package blob

import "fmt"

// Key builders for the fixed object layout. AssetFile rows store the full
// key, so these only run at write time; reads go through the stored path.

func OriginalKey(userID, assetID, ext string) string {
	return fmt.Sprintf("upload/%s/%s/original%s", userID, assetID, ext)
}

func SidecarKey(userID, assetID string) string {
	return fmt.Sprintf("upload/%s/%s/sidecar.xmp", userID, assetID)
}

func ThumbnailKey(userID, assetID string) string {
	return fmt.Sprintf("thumbs/%s/%s/thumbnail.jpg", userID, assetID)
}

func PreviewKey(userID, assetID string) string {
	return fmt.Sprintf("thumbs/%s/%s/preview.jpg", userID, assetID)
}

func ProfileKey(userID, filename string) string {
	return fmt.Sprintf("profile/%s/%s", userID, filename)
}
