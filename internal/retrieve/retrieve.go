// Package retrieve is the read path for originals, derivatives and video
// playback. It resolves which stored file backs a request; byte serving
// (ranges included) is shared with the HTTP layer through Content.
package retrieve

import (
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/store"
)

type Service struct {
	st    *store.Store
	blobs blob.Store
}

func New(st *store.Store, blobs blob.Store) *Service {
	return &Service{st: st, blobs: blobs}
}

// Content is an open blob plus the headers the handler needs to serve it.
// The caller owns Reader.
type Content struct {
	Reader      io.ReadSeekCloser
	Size        int64
	ContentType string
	FileName    string
}

// Original opens the asset's original bytes. With edited=true, or for a
// shared-link caller, an edited fullsize derivative takes precedence when
// one exists.
func (s *Service) Original(ctx context.Context, assetID string, edited bool) (*Content, error) {
	asset, err := s.st.Assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	key := asset.OriginalPath
	if edited {
		if f, err := s.st.Files.Get(ctx, assetID, domain.FileTypeFullsize, true); err == nil {
			key = f.Path
		}
	}
	r, size, err := s.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Content{
		Reader:      r,
		Size:        size,
		ContentType: contentTypeFor(key),
		FileName:    downloadName(asset.OriginalFileName, key),
	}, nil
}

// ThumbDecision says how the thumbnail endpoint should answer: serve the
// opened content, or redirect.
type ThumbDecision struct {
	Content *Content
	// RedirectOriginal sends the caller to the /original route.
	RedirectOriginal bool
	// RedirectPreview reissues the request with size=preview.
	RedirectPreview bool
}

// Thumbnail resolves a derivative request per the fullsize fallback chain.
func (s *Service) Thumbnail(ctx context.Context, assetID string, size domain.ThumbnailSize, edited bool) (*ThumbDecision, error) {
	asset, err := s.st.Assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}

	switch size {
	case domain.SizeThumbnail, domain.SizePreview:
		f, err := s.st.Files.Get(ctx, assetID, domain.AssetFileType(size), edited)
		if err != nil {
			return nil, err
		}
		c, err := s.open(ctx, f.Path)
		if err != nil {
			return nil, err
		}
		return &ThumbDecision{Content: c}, nil

	case domain.SizeFullsize:
		if f, err := s.st.Files.Get(ctx, assetID, domain.FileTypeFullsize, edited); err == nil {
			c, err := s.open(ctx, f.Path)
			if err != nil {
				return nil, err
			}
			return &ThumbDecision{Content: c}, nil
		}
		if webSupportedImage(asset.OriginalPath) {
			return &ThumbDecision{RedirectOriginal: true}, nil
		}
		return &ThumbDecision{RedirectPreview: true}, nil

	default:
		return nil, apperr.BadRequestf("unsupported size %q", size)
	}
}

// Video opens the playback stream: the transcoded rendition when one
// exists, the original otherwise.
func (s *Service) Video(ctx context.Context, assetID string) (*Content, error) {
	asset, err := s.st.Assets.GetByID(ctx, assetID)
	if err != nil {
		return nil, err
	}
	key := asset.OriginalPath
	if asset.EncodedVideoPath != nil && *asset.EncodedVideoPath != "" {
		key = *asset.EncodedVideoPath
	}
	return s.open(ctx, key)
}

// Profile opens a stored profile image.
func (s *Service) Profile(ctx context.Context, key string) (*Content, error) {
	return s.open(ctx, key)
}

func (s *Service) open(ctx context.Context, key string) (*Content, error) {
	r, size, err := s.blobs.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Content{
		Reader:      r,
		Size:        size,
		ContentType: contentTypeFor(key),
		FileName:    path.Base(key),
	}, nil
}

// downloadName is the client-visible filename: the original's basename
// with the stored file's extension, which may differ after a replace.
func downloadName(originalFileName, key string) string {
	base := strings.TrimSuffix(path.Base(originalFileName), path.Ext(originalFileName))
	return base + path.Ext(key)
}

func contentTypeFor(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var webImageExts = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".gif": {},
}

func webSupportedImage(key string) bool {
	_, ok := webImageExts[strings.ToLower(path.Ext(key))]
	return ok
}
