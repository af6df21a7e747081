package domain

import "time"

// Principal is the resolved identity of a request. Exactly one credential
// shape applies: a session user, an api-key user, or an anonymous
// shared-link visitor (User is the link owner then, used for quota on
// link uploads).
type Principal struct {
	User       *User
	Session    *Session
	APIKey     *APIKey
	SharedLink *SharedLink
}

// UserID returns the acting user id; for a shared link that is the link
// owner.
func (p *Principal) UserID() string {
	if p.User != nil {
		return p.User.ID
	}
	return ""
}

// IsSharedLink reports whether the request is an anonymous link visitor.
func (p *Principal) IsSharedLink() bool { return p.SharedLink != nil }

// Elevated reports whether the session passed a PIN unlock that has not
// lapsed. Locked-visibility assets require this.
func (p *Principal) Elevated(now time.Time) bool {
	return p.Session != nil && p.Session.PinExpiresAt != nil && now.Before(*p.Session.PinExpiresAt)
}

// IsAdmin reports admin standing; shared links never have it.
func (p *Principal) IsAdmin() bool {
	return p.SharedLink == nil && p.User != nil && p.User.IsAdmin
}
