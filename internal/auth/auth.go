// Package auth owns login, sessions, api keys and the per-request
// credential resolution chain.
package auth

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/crypt"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
	"github.com/jkov/photark/internal/kv"
	"github.com/jkov/photark/internal/log"
	"github.com/jkov/photark/internal/store"
)

const (
	sessionTokenBytes = 32
	apiKeyBytes       = 32
	linkKeyBytes      = 50

	// sessionCachePrefix keys the token-hash lookaside in the kv cache.
	sessionCachePrefix = "session:"

	// onboardingKey marks the instance as claimed once the first admin
	// account exists.
	onboardingKey = "admin-onboarding"
	sessionCacheTTL    = 5 * time.Minute

	// PinWindow is how long a PIN unlock elevates a session. Activity
	// inside the window slides it forward.
	PinWindow = 5 * time.Minute
)

type Service struct {
	st    *store.Store
	cache *kv.Cache
	log   zerolog.Logger
}

func New(st *store.Store, cache *kv.Cache) *Service {
	return &Service{st: st, cache: cache, log: log.WithComponent("auth")}
}

// LoginResult carries the raw session token exactly once; only its hash
// is stored.
type LoginResult struct {
	Token   string
	User    *domain.User
	Session *domain.Session
}

// Login verifies the password and opens a session.
func (s *Service) Login(ctx context.Context, email, password, deviceOS, deviceType string) (*LoginResult, error) {
	u, err := s.st.Users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorizedf("invalid credentials")
		}
		return nil, err
	}
	if u.Status != domain.UserStatusActive || !crypt.ComparePassword(password, u.PasswordHash) {
		return nil, apperr.Unauthorizedf("invalid credentials")
	}
	return s.openSession(ctx, u, deviceOS, deviceType)
}

func (s *Service) openSession(ctx context.Context, u *domain.User, deviceOS, deviceType string) (*LoginResult, error) {
	raw, err := crypt.RandomBytes(sessionTokenBytes)
	if err != nil {
		return nil, err
	}
	token := hex.EncodeToString(raw)
	now := time.Now().UTC()
	sess := &domain.Session{
		ID:         id.New(),
		UserID:     u.ID,
		TokenHash:  crypt.SHA256Hex([]byte(token)),
		DeviceOS:   deviceOS,
		DeviceType: deviceType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.st.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	s.log.Info().Str("user", u.ID).Str("session", sess.ID).Msg("session opened")
	return &LoginResult{Token: token, User: u, Session: sess}, nil
}

// AdminSignUp creates the first account. It is admin and only works on
// an empty instance.
func (s *Service) AdminSignUp(ctx context.Context, email, password, name string) (*domain.User, error) {
	if _, done, err := s.st.System.Get(ctx, onboardingKey); err != nil {
		return nil, err
	} else if done {
		return nil, apperr.BadRequestf("instance already has an admin")
	}
	n, err := s.st.Users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, apperr.BadRequestf("instance already has an admin")
	}
	hash, err := crypt.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		ID:           id.New(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Name:         name,
		IsAdmin:      true,
		Status:       domain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
		UpdateID:     id.New(),
	}
	if err := s.st.Users.Create(ctx, u); err != nil {
		return nil, err
	}
	if err := s.st.System.Set(ctx, onboardingKey, "true"); err != nil {
		return nil, err
	}
	return u, nil
}

// Logout tears down the session and drops its cache entry.
func (s *Service) Logout(ctx context.Context, sess *domain.Session) error {
	if err := s.st.Sessions.Delete(ctx, sess.ID); err != nil {
		return err
	}
	if err := s.cache.Delete(sessionCachePrefix + sess.TokenHash); err != nil && err != kv.ErrNotFound {
		s.log.Warn().Err(err).Msg("session cache evict failed")
	}
	return nil
}

// LogoutAll removes every session of the user except keep.
func (s *Service) LogoutAll(ctx context.Context, userID, keep string) error {
	if err := s.st.Sessions.DeleteByUser(ctx, userID, keep); err != nil {
		return err
	}
	// The lookaside keys by token hash, not user, so flush wholesale.
	return s.cache.DeletePrefix(sessionCachePrefix)
}

// ChangePassword rotates the password and invalidates the other
// sessions.
func (s *Service) ChangePassword(ctx context.Context, u *domain.User, current, next string, keepSession string) error {
	if !crypt.ComparePassword(current, u.PasswordHash) {
		return apperr.Unauthorizedf("wrong password")
	}
	hash, err := crypt.HashPassword(next)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	if err := s.st.Users.Update(ctx, u); err != nil {
		return err
	}
	return s.LogoutAll(ctx, u.ID, keepSession)
}

// SetupPin stores the user's unlock PIN, bcrypt-hashed like a password.
func (s *Service) SetupPin(ctx context.Context, u *domain.User, pin string) error {
	if len(pin) < 4 {
		return apperr.BadRequestf("pin too short")
	}
	hash, err := crypt.HashPassword(pin)
	if err != nil {
		return err
	}
	u.PinCode = &hash
	return s.st.Users.Update(ctx, u)
}

// VerifyPin elevates the session for the PIN window.
func (s *Service) VerifyPin(ctx context.Context, p *domain.Principal, pin string) error {
	if p.User == nil || p.Session == nil {
		return apperr.Unauthorizedf("pin unlock needs a session")
	}
	if p.User.PinCode == nil || !crypt.ComparePassword(pin, *p.User.PinCode) {
		return apperr.Unauthorizedf("wrong pin")
	}
	at := time.Now().UTC().Add(PinWindow)
	p.Session.PinExpiresAt = &at
	return s.st.Sessions.SetPinExpiry(ctx, p.Session.ID, &at)
}

// LockSession drops the elevation immediately.
func (s *Service) LockSession(ctx context.Context, sess *domain.Session) error {
	sess.PinExpiresAt = nil
	return s.st.Sessions.SetPinExpiry(ctx, sess.ID, nil)
}

// CreateAPIKey mints a key for the user; the raw value is returned once.
func (s *Service) CreateAPIKey(ctx context.Context, userID, name string, permissions []string) (string, *domain.APIKey, error) {
	raw, err := crypt.RandomBytes(apiKeyBytes)
	if err != nil {
		return "", nil, err
	}
	secret := hex.EncodeToString(raw)
	now := time.Now().UTC()
	k := &domain.APIKey{
		ID:          id.New(),
		UserID:      userID,
		Name:        name,
		KeyHash:     crypt.SHA256Hex([]byte(secret)),
		Permissions: permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.st.APIKeys.Create(ctx, k); err != nil {
		return "", nil, err
	}
	return secret, k, nil
}

// NewLinkKey mints the 50 random bytes backing a shared link.
func NewLinkKey() ([]byte, error) {
	return crypt.RandomBytes(linkKeyBytes)
}
