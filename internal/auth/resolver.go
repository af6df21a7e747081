package auth

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/kv"
)

// Cookie names are part of the mobile/web client contract.
const (
	CookieAccessToken     = "immich_access_token"
	CookieAuthType        = "immich_auth_type"
	CookieIsAuthenticated = "immich_is_authenticated"
)

// Resolve turns request credentials into a principal. Priority: shared
// link key, link slug, session token, api key. No credential at all is
// ErrUnauthorized.
func (s *Service) Resolve(ctx context.Context, r *http.Request) (*domain.Principal, error) {
	if key := shareKey(r); key != "" {
		return s.resolveShareKey(ctx, key)
	}
	if slug := shareSlug(r); slug != "" {
		return s.resolveSlug(ctx, slug)
	}
	if token := sessionToken(r); token != "" {
		return s.resolveSession(ctx, token)
	}
	if key := apiKey(r); key != "" {
		return s.resolveAPIKey(ctx, key)
	}
	return nil, apperr.Unauthorizedf("no credentials")
}

func shareKey(r *http.Request) string {
	if v := r.Header.Get("x-immich-share-key"); v != "" {
		return v
	}
	return r.URL.Query().Get("key")
}

func shareSlug(r *http.Request) string {
	if v := r.Header.Get("x-immich-share-slug"); v != "" {
		return v
	}
	return r.URL.Query().Get("slug")
}

func sessionToken(r *http.Request) string {
	if v := r.Header.Get("x-immich-user-token"); v != "" {
		return v
	}
	if v := r.Header.Get("x-immich-session-token"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("sessionKey"); v != "" {
		return v
	}
	if ah := r.Header.Get("Authorization"); ah != "" {
		if scheme, rest, ok := strings.Cut(ah, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(rest)
		}
	}
	if c, err := r.Cookie(CookieAccessToken); err == nil {
		return c.Value
	}
	return ""
}

func apiKey(r *http.Request) string {
	if v := r.Header.Get("x-api-key"); v != "" {
		return v
	}
	return r.URL.Query().Get("apiKey")
}

// decodeLinkKey accepts the raw 50 bytes as 100-char hex or as
// base64-url.
func decodeLinkKey(key string) ([]byte, error) {
	if len(key) == 2*linkKeyBytes {
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	if b, err := base64.RawURLEncoding.DecodeString(key); err == nil && len(b) == linkKeyBytes {
		return b, nil
	}
	if b, err := base64.URLEncoding.DecodeString(key); err == nil && len(b) == linkKeyBytes {
		return b, nil
	}
	return nil, apperr.Unauthorizedf("malformed share key")
}

func (s *Service) resolveShareKey(ctx context.Context, key string) (*domain.Principal, error) {
	raw, err := decodeLinkKey(key)
	if err != nil {
		return nil, err
	}
	link, err := s.st.SharedLinks.GetByKey(ctx, raw)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorizedf("invalid share key")
		}
		return nil, err
	}
	return s.linkPrincipal(ctx, link)
}

func (s *Service) resolveSlug(ctx context.Context, slug string) (*domain.Principal, error) {
	link, err := s.st.SharedLinks.GetBySlug(ctx, slug)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorizedf("invalid share slug")
		}
		return nil, err
	}
	return s.linkPrincipal(ctx, link)
}

func (s *Service) linkPrincipal(ctx context.Context, link *domain.SharedLink) (*domain.Principal, error) {
	if link.Expired(time.Now().UTC()) {
		return nil, apperr.Unauthorizedf("share link expired")
	}
	owner, err := s.st.Users.GetByID(ctx, link.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{User: owner, SharedLink: link}, nil
}

func (s *Service) resolveSession(ctx context.Context, token string) (*domain.Principal, error) {
	tokenHash := crypt.SHA256Hex([]byte(token))

	var sess *domain.Session
	if b, err := s.cache.Get(sessionCachePrefix + tokenHash); err == nil {
		if cached, err := s.st.Sessions.GetByID(ctx, string(b)); err == nil && cached.TokenHash == tokenHash {
			sess = cached
		}
	} else if err != kv.ErrNotFound {
		s.log.Warn().Err(err).Msg("session cache read failed")
	}
	if sess == nil {
		found, err := s.st.Sessions.GetByTokenHash(ctx, tokenHash)
		if err != nil {
			if apperr.Is(err, apperr.ErrNotFound) {
				return nil, apperr.Unauthorizedf("invalid session token")
			}
			return nil, err
		}
		sess = found
		if err := s.cache.Set(sessionCachePrefix+tokenHash, []byte(sess.ID), sessionCacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("session cache write failed")
		}
	}

	now := time.Now().UTC()
	if sess.ExpiresAt != nil && now.After(*sess.ExpiresAt) {
		return nil, apperr.Unauthorizedf("session expired")
	}
	u, err := s.st.Users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if u.Status != domain.UserStatusActive {
		return nil, apperr.Unauthorizedf("account disabled")
	}

	s.touchAsync(sess, now)
	return &domain.Principal{User: u, Session: sess}, nil
}

// touchAsync bumps updated_at and slides a live PIN window without
// holding up the request.
func (s *Service) touchAsync(sess *domain.Session, now time.Time) {
	sessID := sess.ID
	var slide *time.Time
	if sess.PinExpiresAt != nil && now.Before(*sess.PinExpiresAt) {
		at := now.Add(PinWindow)
		slide = &at
		sess.PinExpiresAt = &at
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.st.Sessions.Touch(ctx, sessID, nil, now); err != nil {
			s.log.Debug().Err(err).Str("session", sessID).Msg("session touch failed")
		}
		if slide != nil {
			if err := s.st.Sessions.SetPinExpiry(ctx, sessID, slide); err != nil {
				s.log.Debug().Err(err).Str("session", sessID).Msg("pin slide failed")
			}
		}
	}()
}

func (s *Service) resolveAPIKey(ctx context.Context, key string) (*domain.Principal, error) {
	k, err := s.st.APIKeys.GetByKeyHash(ctx, crypt.SHA256Hex([]byte(key)))
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorizedf("invalid api key")
		}
		return nil, err
	}
	u, err := s.st.Users.GetByID(ctx, k.UserID)
	if err != nil {
		return nil, err
	}
	if u.Status != domain.UserStatusActive {
		return nil, apperr.Unauthorizedf("account disabled")
	}
	return &domain.Principal{User: u, APIKey: k}, nil
}
