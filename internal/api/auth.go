package api

import (
	"net/http"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/auth"
)

// cookieMaxAge matches the longest lifetime Chrome still honors.
const cookieMaxAge = int(400 * 24 * time.Hour / time.Second)

func setAuthCookies(w http.ResponseWriter, r *http.Request, token string) {
	secure := r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
	base := http.Cookie{
		Path:     "/",
		MaxAge:   cookieMaxAge,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
	}

	access := base
	access.Name = auth.CookieAccessToken
	access.Value = token
	access.HttpOnly = true
	http.SetCookie(w, &access)

	typ := base
	typ.Name = auth.CookieAuthType
	typ.Value = "password"
	typ.HttpOnly = true
	http.SetCookie(w, &typ)

	// Readable by the web app so it can skip the login screen.
	flag := base
	flag.Name = auth.CookieIsAuthenticated
	flag.Value = "true"
	http.SetCookie(w, &flag)
}

func clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{auth.CookieAccessToken, auth.CookieAuthType, auth.CookieIsAuthenticated} {
		http.SetCookie(w, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
	UserEmail   string `json:"userEmail"`
	Name        string `json:"name"`
	IsAdmin     bool   `json:"isAdmin"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		DeviceOS   string `json:"deviceOS"`
		DeviceType string `json:"deviceType"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password, req.DeviceOS, req.DeviceType)
	if err != nil {
		fail(w, r, err)
		return
	}
	setAuthCookies(w, r, res.Token)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: res.Token,
		UserID:      res.User.ID,
		UserEmail:   res.User.Email,
		Name:        res.User.Name,
		IsAdmin:     res.User.IsAdmin,
	})
}

func (a *API) handleAdminSignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		fail(w, r, apperr.BadRequestf("email and password are required"))
		return
	}
	u, err := a.auth.AdminSignUp(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.Session != nil {
		if err := a.auth.Logout(r.Context(), p.Session); err != nil {
			fail(w, r, err)
			return
		}
	}
	clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"successful": true, "redirectUri": "/auth/login"})
}

func (a *API) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.IsSharedLink() {
		fail(w, r, apperr.Unauthorizedf("shared links cannot validate tokens"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authStatus": true})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.User == nil || p.IsSharedLink() {
		fail(w, r, apperr.Unauthorizedf("password change needs a session"))
		return
	}
	var req struct {
		Password    string `json:"password"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.NewPassword) < 8 {
		fail(w, r, apperr.BadRequestf("new password too short"))
		return
	}
	keep := ""
	if p.Session != nil {
		keep = p.Session.ID
	}
	if err := a.auth.ChangePassword(r.Context(), p.User, req.Password, req.NewPassword, keep); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(p.User))
}

func (a *API) handleSetupPin(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.User == nil || p.IsSharedLink() {
		fail(w, r, apperr.Unauthorizedf("pin setup needs a session"))
		return
	}
	var req struct {
		PinCode string `json:"pinCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.auth.SetupPin(r.Context(), p.User, req.PinCode); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUnlockSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	var req struct {
		PinCode string `json:"pinCode"`
	}
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if err := a.auth.VerifyPin(r.Context(), p, req.PinCode); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *API) handleLockSession(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	if p.Session == nil {
		fail(w, r, apperr.Unauthorizedf("no session to lock"))
		return
	}
	if err := a.auth.LockSession(r.Context(), p.Session); err != nil {
		fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
