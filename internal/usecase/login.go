package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"assistant-web/internal/domain"
)

const (
	defaultSignedInNotice           = "¡Login exitoso! 🎉"
	defaultMissingCredentialsNotice = "Error: ingresa tu email y contraseña"
)

// LoginFlow submits credentials to the auth provider and reports the outcome
// through a Notifier. One submission may be outstanding at a time.
type LoginFlow struct {
	auth     Authenticator
	guard    *SessionGuard
	notifier Notifier
	notice   string
	missing  string

	mu           sync.Mutex
	submitting   bool
	lastNotified string
	unsubscribe  func()
	released     bool
}

type LoginOption func(*LoginFlow)

// WithSignedInNotice overrides the success notification text.
func WithSignedInNotice(msg string) LoginOption {
	return func(f *LoginFlow) {
		if strings.TrimSpace(msg) != "" {
			f.notice = msg
		}
	}
}

// WithMissingCredentialsNotice overrides the error shown when the email or
// password is empty.
func WithMissingCredentialsNotice(msg string) LoginOption {
	return func(f *LoginFlow) {
		if strings.TrimSpace(msg) != "" {
			f.missing = msg
		}
	}
}

func NewLoginFlow(auth Authenticator, guard *SessionGuard, n Notifier, opts ...LoginOption) (*LoginFlow, error) {
	if auth == nil {
		return nil, errors.New("usecase: authenticator must not be nil")
	}
	if guard == nil {
		return nil, errors.New("usecase: session guard must not be nil")
	}
	if n == nil {
		return nil, errors.New("usecase: notifier must not be nil")
	}
	f := &LoginFlow{
		auth:     auth,
		guard:    guard,
		notifier: n,
		notice:   defaultSignedInNotice,
		missing:  defaultMissingCredentialsNotice,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Watch subscribes to provider events so that sessions signed in elsewhere, or
// restored from a previous visit, are announced like an explicit submission.
func (f *LoginFlow) Watch() {
	f.mu.Lock()
	if f.unsubscribe != nil || f.released {
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()

	unsubscribe := f.auth.OnAuthStateChange(func(event domain.AuthEvent, session *domain.Session) {
		if event != domain.EventSignedIn || session == nil {
			return
		}
		f.mu.Lock()
		released := f.released
		f.mu.Unlock()
		if released {
			return
		}
		f.signedIn(session)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released || f.unsubscribe != nil {
		unsubscribe()
		return
	}
	f.unsubscribe = unsubscribe
}

// Submitting reports whether a submission is outstanding.
func (f *LoginFlow) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Submit signs in with email and password. The email is passed to the provider
// as entered. On failure the provider's message is surfaced as an error
// notification and the session state is untouched.
func (f *LoginFlow) Submit(ctx context.Context, email, password string) (*domain.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		f.notifier.Error(f.missing)
		return nil, newError(ErrorInvalidInput, "empty_credentials", nil)
	}

	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return nil, newError(ErrorBusy, "submission_in_flight", nil)
	}
	f.submitting = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.submitting = false
		f.mu.Unlock()
	}()

	session, err := f.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		f.notifier.Error("Error: " + providerMessage(err))
		return nil, newError(ErrorAuthFailed, "sign_in_rejected", err)
	}
	if session == nil {
		f.notifier.Error("Error: no session returned")
		return nil, newError(ErrorAuthFailed, "missing_session", nil)
	}

	f.signedIn(session)
	return session, nil
}

// signedIn adopts session and announces it once per access token.
func (f *LoginFlow) signedIn(session *domain.Session) {
	f.guard.adopt(session)

	f.mu.Lock()
	if f.lastNotified == session.AccessToken {
		f.mu.Unlock()
		return
	}
	f.lastNotified = session.AccessToken
	f.mu.Unlock()

	f.notifier.Success(f.notice)
}

// Release removes the provider subscription installed by Watch.
func (f *LoginFlow) Release() {
	f.mu.Lock()
	f.released = true
	unsubscribe := f.unsubscribe
	f.unsubscribe = nil
	f.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
