package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/blob"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/media/variants"
)

// --- sessions ---

func (a *API) handleListSessions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	sessions, err := a.st.Sessions.ListByUser(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]sessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionDTO{
			ID:         s.ID,
			DeviceOS:   s.DeviceOS,
			DeviceType: s.DeviceType,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
			Current:    p.Session != nil && p.Session.ID == s.ID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteSessions(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	keep := ""
	if p.Session != nil {
		keep = p.Session.ID
	}
	if err := a.auth.LogoutAll(r.Context(), p.UserID(), keep); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	sess, err := a.st.Sessions.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if sess.UserID != p.UserID() {
		fail(w, r, apperr.NotFoundf("session %s", sess.ID))
		return
	}
	if err := a.auth.Logout(r.Context(), sess); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- api keys ---

func (a *API) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		Name        string   `json:"name"`
		Permissions []string `json:"permissions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.Permissions) == 0 {
		fail(w, r, apperr.BadRequestf("permissions is required"))
		return
	}
	if req.Name == "" {
		req.Name = "API Key"
	}
	secret, key, err := a.auth.CreateAPIKey(r.Context(), p.UserID(), req.Name, req.Permissions)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"secret": secret,
		"apiKey": toAPIKeyDTO(key),
	})
}

func (a *API) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	keys, err := a.st.APIKeys.ListByUser(r.Context(), p.UserID())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]apiKeyDTO, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyDTO(k))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	key, err := a.st.APIKeys.GetByID(r.Context(), p.UserID(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIKeyDTO(key))
}

func (a *API) handleUpdateAPIKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	key, err := a.st.APIKeys.GetByID(r.Context(), p.UserID(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Name        *string  `json:"name"`
		Permissions []string `json:"permissions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Name != nil {
		key.Name = *req.Name
	}
	if req.Permissions != nil {
		key.Permissions = req.Permissions
	}
	if err := a.st.APIKeys.Update(r.Context(), key); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIKeyDTO(key))
}

func (a *API) handleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := a.st.APIKeys.Delete(r.Context(), p.UserID(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- users ---

func (a *API) handleGetMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	writeJSON(w, http.StatusOK, toUserDTO(p.User))
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		Name  *string `json:"name"`
		Email *string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u := p.User
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Email != nil {
		u.Email = *req.Email
	}
	if err := a.st.Users.Update(r.Context(), u); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// profileImageMax bounds a profile upload; avatars do not need more.
const profileImageMax = 8 << 20

func (a *API) handleUploadProfileImage(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := r.ParseMultipartForm(profileImageMax); err != nil {
		fail(w, r, apperr.BadRequestf("invalid multipart form: %v", err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		fail(w, r, apperr.BadRequestf("missing file part"))
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, profileImageMax+1))
	if err != nil {
		fail(w, r, err)
		return
	}
	if len(data) == 0 || len(data) > profileImageMax {
		fail(w, r, apperr.BadRequestf("profile image must be between 1 byte and %d bytes", profileImageMax))
		return
	}
	// Normalize to a bounded JPEG so we never serve arbitrary bytes back.
	thumb, err := variants.Thumbnail(data)
	if err != nil {
		fail(w, r, apperr.BadRequestf("unsupported image: %v", err))
		return
	}

	key := blob.ProfileKey(p.UserID(), id.New()+".jpg")
	if _, err := a.blobs.Put(r.Context(), key, bytes.NewReader(thumb)); err != nil {
		fail(w, r, err)
		return
	}
	u := p.User
	u.ProfileImagePath = key
	if err := a.st.Users.Update(r.Context(), u); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"profileImagePath": key})
}

func (a *API) handleGetProfileImage(w http.ResponseWriter, r *http.Request) {
	u, err := a.st.Users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if u.ProfileImagePath == "" {
		fail(w, r, apperr.NotFoundf("no profile image"))
		return
	}
	c, err := a.retrieve.Profile(r.Context(), u.ProfileImagePath)
	if err != nil {
		fail(w, r, err)
		return
	}
	defer func() { _ = c.Reader.Close() }()
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = io.Copy(w, c.Reader)
}

// --- license ---

// licenseKey is the user metadata slot the license blob lives in. The
// server does not validate keys against anything; it stores and echoes.
const licenseKey = "license"

func (a *API) handleGetLicense(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	raw, err := a.st.Metadata.GetUser(r.Context(), p.UserID(), licenseKey)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(raw))
}

func (a *API) handleSetLicense(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		LicenseKey    string `json:"licenseKey"`
		ActivationKey string `json:"activationKey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.LicenseKey == "" {
		fail(w, r, apperr.BadRequestf("licenseKey is required"))
		return
	}
	out := map[string]string{
		"licenseKey":    req.LicenseKey,
		"activationKey": req.ActivationKey,
		"activatedAt":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(out)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := a.st.Metadata.UpsertUser(r.Context(), p.UserID(), licenseKey, string(raw)); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleDeleteLicense(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if err := a.st.Metadata.DeleteUser(r.Context(), p.UserID(), licenseKey); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
