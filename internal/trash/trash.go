// Package trash moves assets in and out of the trash and purges them
// for good.
package trash

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/metrics"
	"github.com/jkov/photark/internal/store"
)

const purgeWorkers = 4

type Service struct {
	st    *store.Store
	blobs blob.Store
	log   zerolog.Logger
}

func New(st *store.Store, blobs blob.Store) *Service {
	return &Service{st: st, blobs: blobs, log: log.WithComponent("trash")}
}

// Delete soft-deletes the owner's assets. With force, the assets are
// purged immediately instead of parking in the trash.
func (s *Service) Delete(ctx context.Context, ownerID string, assetIDs []string, force bool) error {
	affected, err := s.st.Assets.SoftDelete(ctx, ownerID, assetIDs, time.Now().UTC())
	if err != nil {
		return err
	}
	if force && len(affected) > 0 {
		return s.purge(ctx, ownerID, affected)
	}
	return nil
}

// Restore returns trashed assets to the active state. Empty ids restores
// the whole trash.
func (s *Service) Restore(ctx context.Context, ownerID string, assetIDs []string) (int64, error) {
	return s.st.Assets.Restore(ctx, ownerID, assetIDs)
}

// Empty purges everything in the owner's trash and reports how many
// assets went away.
func (s *Service) Empty(ctx context.Context, ownerID string) (int64, error) {
	trashed, err := s.st.Assets.ListTrashed(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(trashed) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(trashed))
	for _, a := range trashed {
		ids = append(ids, a.ID)
	}
	if err := s.purge(ctx, ownerID, ids); err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// purge drops the rows, then deletes the backing blobs. Blob failures are
// logged and swallowed: the rows are gone and a missing file is the
// steady state we were aiming for anyway.
func (s *Service) purge(ctx context.Context, ownerID string, assetIDs []string) error {
	keys, err := s.collectKeys(ctx, assetIDs)
	if err != nil {
		return err
	}
	if err := s.st.Assets.HardDelete(ctx, assetIDs); err != nil {
		return err
	}
	if _, err := s.st.Users.RecomputeQuota(ctx, ownerID); err != nil {
		s.log.Warn().Err(err).Str("user", ownerID).Msg("quota recompute failed after purge")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(purgeWorkers)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := s.blobs.Delete(gctx, key); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("blob delete failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.TrashPurgedTotal.Add(float64(len(assetIDs)))
	return nil
}

func (s *Service) collectKeys(ctx context.Context, assetIDs []string) ([]string, error) {
	assets, err := s.st.Assets.GetByIDs(ctx, assetIDs)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(assets)*3)
	for _, a := range assets {
		keys = append(keys, a.OriginalPath)
		if a.EncodedVideoPath != nil && *a.EncodedVideoPath != "" {
			keys = append(keys, *a.EncodedVideoPath)
		}
	}
	filePaths, err := s.st.Files.PathsForAssets(ctx, assetIDs)
	if err != nil {
		return nil, err
	}
	return append(keys, filePaths...), nil
}
