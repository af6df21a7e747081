// Package api is the HTTP surface: routing, request parsing, credential
// middleware and the mapping from service errors to problem responses.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jkov/photark/internal/access"
	"github.com/jkov/photark/internal/auth"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/ingest"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/retrieve"
	"github.com/jkov/photark/internal/store"
	"github.com/jkov/photark/internal/syncer"
	"github.com/jkov/photark/internal/trash"
	"github.com/jkov/photark/internal/view"
)

// API bundles the services behind the HTTP surface.
type API struct {
	st       *store.Store
	auth     *auth.Service
	guard    *access.Guard
	ingest   *ingest.Service
	retrieve *retrieve.Service
	syncer   *syncer.Service
	view     *view.Service
	trash    *trash.Service
	blobs    blob.Store

	maxUpload int64
	log       zerolog.Logger
}

// Deps is everything New needs; all fields are required.
type Deps struct {
	Store     *store.Store
	Auth      *auth.Service
	Guard     *access.Guard
	Ingest    *ingest.Service
	Retrieve  *retrieve.Service
	Syncer    *syncer.Service
	View      *view.Service
	Trash     *trash.Service
	Blobs     blob.Store
	MaxUpload int64
}

func New(d Deps) *API {
	return &API{
		st:        d.Store,
		auth:      d.Auth,
		guard:     d.Guard,
		ingest:    d.Ingest,
		retrieve:  d.Retrieve,
		syncer:    d.Syncer,
		view:      d.View,
		trash:     d.Trash,
		blobs:     d.Blobs,
		maxUpload: d.MaxUpload,
		log:       log.WithComponent("api"),
	}
}

// Router builds the chi mux. Everything under /api except the auth
// bootstrap endpoints requires a resolved principal.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(accessLog)
	r.Use(chimw.Recoverer)
	r.Use(httprate.LimitByIP(300, time.Minute))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		// No principal yet.
		r.Post("/auth/admin-sign-up", a.handleAdminSignUp)
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)

			r.Post("/auth/logout", a.handleLogout)
			r.Post("/auth/validateToken", a.handleValidateToken)
			r.Post("/auth/change-password", a.handleChangePassword)
			r.Post("/auth/pin-code", a.handleSetupPin)
			r.Post("/auth/session/unlock", a.handleUnlockSession)
			r.Post("/auth/session/lock", a.handleLockSession)

			r.Route("/assets", func(r chi.Router) {
				r.Post("/", a.handleUploadAsset)
				r.Put("/", a.handleBulkUpdateAssets)
				r.Delete("/", a.handleDeleteAssets)
				r.Post("/exist", a.handleAssetsExist)
				r.Post("/bulk-upload-check", a.handleBulkUploadCheck)
				r.Get("/statistics", a.handleAssetStatistics)
				r.Get("/random", a.handleRandomAssets)
				r.Get("/device/{deviceId}", a.handleAssetsByDevice)
				r.Get("/{id}", a.handleGetAsset)
				r.Put("/{id}", a.handleUpdateAsset)
				r.Put("/{id}/original", a.handleReplaceAsset)
				r.Get("/{id}/original", a.handleDownloadOriginal)
				r.Get("/{id}/thumbnail", a.handleThumbnail)
				r.Get("/{id}/video/playback", a.handleVideoPlayback)
				r.Get("/{id}/metadata", a.handleListAssetMetadata)
				r.Put("/{id}/metadata", a.handlePutAssetMetadata)
				r.Get("/{id}/metadata/{key}", a.handleGetAssetMetadata)
				r.Delete("/{id}/metadata/{key}", a.handleDeleteAssetMetadata)
			})

			r.Route("/sync", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/stream", a.handleSyncStream)
				r.Get("/ack", a.handleGetAcks)
				r.Post("/ack", a.handlePostAcks)
				r.Delete("/ack", a.handleDeleteAcks)
				r.Post("/full-sync", a.handleFullSync)
				r.Post("/delta-sync", a.handleDeltaSync)
			})

			r.Route("/timeline", func(r chi.Router) {
				r.Get("/buckets", a.handleTimeBuckets)
				r.Get("/bucket", a.handleTimeBucket)
			})
			r.Route("/view", func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/folder/unique-paths", a.handleUniquePaths)
				r.Get("/folder", a.handleFolderAssets)
			})

			r.Route("/trash", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/empty", a.handleEmptyTrash)
				r.Post("/restore", a.handleRestoreTrash)
				r.Post("/restore/assets", a.handleRestoreAssets)
			})

			r.Route("/albums", func(r chi.Router) {
				r.Post("/", a.handleCreateAlbum)
				r.Get("/", a.handleListAlbums)
				r.Get("/{id}", a.handleGetAlbum)
				r.Patch("/{id}", a.handleUpdateAlbum)
				r.Delete("/{id}", a.handleDeleteAlbum)
				r.Put("/{id}/assets", a.handleAlbumAddAssets)
				r.Delete("/{id}/assets", a.handleAlbumRemoveAssets)
				r.Put("/{id}/user/{userId}", a.handleAlbumSetUser)
				r.Delete("/{id}/user/{userId}", a.handleAlbumRemoveUser)
			})

			r.Route("/tags", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", a.handleUpsertTag)
				r.Get("/", a.handleListTags)
				r.Put("/assets", a.handleBulkTagAssets)
				r.Get("/{id}", a.handleGetTag)
				r.Put("/{id}", a.handleUpdateTag)
				r.Delete("/{id}", a.handleDeleteTag)
				r.Put("/{id}/assets", a.handleTagAssets)
				r.Delete("/{id}/assets", a.handleUntagAssets)
			})

			r.Route("/memories", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", a.handleCreateMemory)
				r.Get("/", a.handleListMemories)
				r.Get("/{id}", a.handleGetMemory)
				r.Put("/{id}", a.handleUpdateMemory)
				r.Delete("/{id}", a.handleDeleteMemory)
				r.Put("/{id}/assets", a.handleMemoryAddAssets)
				r.Delete("/{id}/assets", a.handleMemoryRemoveAssets)
			})

			r.Route("/stacks", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", a.handleCreateStack)
				r.Get("/", a.handleListStacks)
				r.Get("/{id}", a.handleGetStack)
				r.Put("/{id}", a.handleUpdateStack)
				r.Delete("/{id}", a.handleDeleteStack)
				r.Delete("/{id}/assets/{assetId}", a.handleStackRemoveAsset)
			})

			r.Route("/partners", func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/", a.handleListPartners)
				r.Post("/{id}", a.handleCreatePartner)
				r.Put("/{id}", a.handleUpdatePartner)
				r.Delete("/{id}", a.handleDeletePartner)
			})

			r.Route("/shared-links", func(r chi.Router) {
				r.Get("/me", a.handleMySharedLink)
				r.Group(func(r chi.Router) {
					r.Use(requireUser)
					r.Post("/", a.handleCreateSharedLink)
					r.Get("/", a.handleListSharedLinks)
					r.Get("/{id}", a.handleGetSharedLink)
					r.Delete("/{id}", a.handleDeleteSharedLink)
					r.Put("/{id}/assets", a.handleSharedLinkAddAssets)
				})
			})

			r.Route("/activities", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", a.handleCreateActivity)
				r.Get("/", a.handleListActivities)
				r.Get("/statistics", a.handleActivityStatistics)
				r.Delete("/{id}", a.handleDeleteActivity)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/", a.handleListSessions)
				r.Delete("/", a.handleDeleteSessions)
				r.Delete("/{id}", a.handleDeleteSession)
			})

			r.Route("/api-keys", func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", a.handleCreateAPIKey)
				r.Get("/", a.handleListAPIKeys)
				r.Get("/{id}", a.handleGetAPIKey)
				r.Put("/{id}", a.handleUpdateAPIKey)
				r.Delete("/{id}", a.handleDeleteAPIKey)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(requireUser)
				r.Get("/me", a.handleGetMe)
				r.Put("/me", a.handleUpdateMe)
				r.Get("/me/license", a.handleGetLicense)
				r.Put("/me/license", a.handleSetLicense)
				r.Delete("/me/license", a.handleDeleteLicense)
				r.Post("/profile-image", a.handleUploadProfileImage)
				r.Get("/{id}/profile-image", a.handleGetProfileImage)
			})
		})
	})
	return r
}
