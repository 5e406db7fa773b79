package gotrue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"assistant-web/internal/domain"
)

const defaultRefreshMargin = 60 * time.Second

// SessionStore persists one browser's session between requests.
// Load returns (nil, nil) when nothing is stored.
type SessionStore interface {
	Load(ctx context.Context, browserID string) (*domain.Session, error)
	Save(ctx context.Context, browserID string, s *domain.Session) error
	Delete(ctx context.Context, browserID string) error
}

// tokenAPI is the subset of Client used by Auth.
type tokenAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
	RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, error)
	SignOut(ctx context.Context, accessToken string) error
}

// Auth holds the session of a single browser and notifies listeners when it
// changes.
type Auth struct {
	api           tokenAPI
	store         SessionStore
	browserID     string
	logger        *slog.Logger
	refreshMargin time.Duration
	now           func() time.Time

	mu      sync.Mutex
	loaded  bool
	session *domain.Session
	flight  singleflight.Group

	listenersMu sync.Mutex
	listeners   map[int]domain.AuthListener
	nextID      int
}

type AuthOption func(*Auth)

func WithLogger(l *slog.Logger) AuthOption {
	return func(a *Auth) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRefreshMargin refreshes sessions that expire within margin.
func WithRefreshMargin(margin time.Duration) AuthOption {
	return func(a *Auth) {
		if margin >= 0 {
			a.refreshMargin = margin
		}
	}
}

func NewAuth(api tokenAPI, store SessionStore, browserID string, opts ...AuthOption) (*Auth, error) {
	if api == nil {
		return nil, errors.New("gotrue: token api must not be nil")
	}
	if store == nil {
		return nil, errors.New("gotrue: session store must not be nil")
	}
	if browserID == "" {
		return nil, errors.New("gotrue: browser id must not be empty")
	}
	a := &Auth{
		api:           api,
		store:         store,
		browserID:     browserID,
		logger:        slog.Default(),
		refreshMargin: defaultRefreshMargin,
		now:           time.Now,
		listeners:     map[int]domain.AuthListener{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// GetSession returns the current session, loading it from the store on first
// use and refreshing it when it is about to expire. A stored session picked up
// for the first time is announced as SIGNED_IN.
func (a *Auth) GetSession(ctx context.Context) (*domain.Session, error) {
	a.mu.Lock()
	restored := false
	if !a.loaded {
		s, err := a.store.Load(ctx, a.browserID)
		if err != nil {
			a.mu.Unlock()
			return nil, fmt.Errorf("gotrue: load session: %w", err)
		}
		a.loaded = true
		a.session = s
		restored = s != nil
	}
	s := a.session
	a.mu.Unlock()

	if s == nil {
		return nil, nil
	}
	if s.ExpiresWithin(a.now(), a.refreshMargin) {
		refreshed, err := a.refresh(ctx, s)
		if err != nil {
			if s.Valid(a.now()) {
				a.logger.Warn("session refresh failed, keeping current token", "err", err)
				return s, nil
			}
			a.dropExpired(s)
			return nil, err
		}
		s = refreshed
	}
	if restored && s != nil {
		a.emit(domain.EventSignedIn, s)
	}
	return s, nil
}

func (a *Auth) refresh(ctx context.Context, stale *domain.Session) (*domain.Session, error) {
	v, err, _ := a.flight.Do("refresh", func() (any, error) {
		a.mu.Lock()
		cur := a.session
		a.mu.Unlock()
		if cur == nil {
			return (*domain.Session)(nil), nil
		}
		if cur.AccessToken != stale.AccessToken && !cur.ExpiresWithin(a.now(), a.refreshMargin) {
			return cur, nil
		}

		next, err := a.api.RefreshSession(ctx, cur.RefreshToken)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				a.logger.Info("refresh token rejected, signing out", "status", apiErr.StatusCode)
				a.clear(ctx)
				a.emit(domain.EventSignedOut, nil)
				return (*domain.Session)(nil), nil
			}
			return nil, err
		}

		a.mu.Lock()
		a.session = next
		a.mu.Unlock()
		if err := a.store.Save(ctx, a.browserID, next); err != nil {
			a.logger.Warn("failed to persist refreshed session", "err", err)
		}
		a.emit(domain.EventTokenRefreshed, next)
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Session), nil
}

// dropExpired forgets an expired session whose refresh could not complete.
// The stored copy is kept so a later GetSession retries the refresh.
func (a *Auth) dropExpired(expired *domain.Session) {
	a.mu.Lock()
	if a.session != expired {
		a.mu.Unlock()
		return
	}
	a.session = nil
	a.loaded = false
	a.mu.Unlock()

	a.logger.Warn("session expired and refresh failed, treating as signed out")
	a.emit(domain.EventSignedOut, nil)
}

// SignInWithPassword signs in and makes the returned session current.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error) {
	s, err := a.api.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.loaded = true
	a.session = s
	a.mu.Unlock()
	if err := a.store.Save(ctx, a.browserID, s); err != nil {
		a.logger.Warn("failed to persist session", "err", err)
	}

	a.emit(domain.EventSignedIn, s)
	return s, nil
}

// SignOut forgets the session locally and revokes it remotely. Remote
// failures are logged, the local sign-out always happens.
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	a.mu.Unlock()

	a.clear(ctx)
	if s != nil {
		if err := a.api.SignOut(ctx, s.AccessToken); err != nil {
			a.logger.Warn("remote sign out failed", "err", err)
		}
	}
	a.emit(domain.EventSignedOut, nil)
	return nil
}

// AccessToken returns the current access token, or "" when signed out.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	s, err := a.GetSession(ctx)
	if err != nil || s == nil {
		return "", err
	}
	return s.AccessToken, nil
}

func (a *Auth) clear(ctx context.Context) {
	a.mu.Lock()
	a.loaded = true
	a.session = nil
	a.mu.Unlock()
	if err := a.store.Delete(ctx, a.browserID); err != nil {
		a.logger.Warn("failed to delete stored session", "err", err)
	}
}

// OnAuthStateChange registers l for every later session change.
func (a *Auth) OnAuthStateChange(l domain.AuthListener) func() {
	a.listenersMu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = l
	a.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.listenersMu.Lock()
			delete(a.listeners, id)
			a.listenersMu.Unlock()
		})
	}
}

// emit calls listeners outside of any lock so they may call back into Auth.
func (a *Auth) emit(event domain.AuthEvent, s *domain.Session) {
	a.listenersMu.Lock()
	ls := make([]domain.AuthListener, 0, len(a.listeners))
	for _, l := range a.listeners {
		ls = append(ls, l)
	}
	a.listenersMu.Unlock()

	for _, l := range ls {
		l(event, s)
	}
}
