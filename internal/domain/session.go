package domain

import "time"

// User is the subset of the provider's user record the front-end displays.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is the provider-issued proof of authentication. The application only
// reads it; issuing and refreshing belong to the provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	User         User
}

// Valid reports whether the session carries a token that has not expired.
func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// ExpiresWithin reports whether the session expires before now+margin.
func (s *Session) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// SessionState is the locally observed validity of the provider session.
type SessionState int

const (
	SessionUnknown SessionState = iota
	SessionAbsent
	SessionPresent
)

func (s SessionState) String() string {
	switch s {
	case SessionAbsent:
		return "absent"
	case SessionPresent:
		return "present"
	default:
		return "unknown"
	}
}

// StateOf maps a provider session to the observed state.
func StateOf(s *Session) SessionState {
	if s == nil || s.AccessToken == "" {
		return SessionAbsent
	}
	return SessionPresent
}

// AuthEvent names a provider-originated session change.
type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
)

// AuthListener receives provider-originated session changes. session is nil
// after a sign-out.
type AuthListener func(event AuthEvent, session *Session)
