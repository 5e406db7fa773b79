package usecase

import (
	"context"
	"errors"
	"sync"

	"assistant-web/internal/domain"
)

// SessionGuard tracks whether an authenticated session exists for one screen
// and decides whether that screen may render.
type SessionGuard struct {
	provider SessionProvider

	mu          sync.RWMutex
	state       domain.SessionState
	session     *domain.Session
	subscribed  bool
	released    bool
	unsubscribe func()
	releaseOnce sync.Once
}

func NewSessionGuard(p SessionProvider) (*SessionGuard, error) {
	if p == nil {
		return nil, errors.New("usecase: session provider must not be nil")
	}
	return &SessionGuard{provider: p, state: domain.SessionUnknown}, nil
}

// Start subscribes to provider changes and resolves the initial session. A
// failed query resolves to absent. Start is a no-op after the first call or
// after Release.
func (g *SessionGuard) Start(ctx context.Context) domain.SessionState {
	g.mu.Lock()
	if g.subscribed || g.released {
		st := g.state
		g.mu.Unlock()
		return st
	}
	g.subscribed = true
	g.mu.Unlock()

	unsubscribe := g.provider.OnAuthStateChange(g.onSessionChanged)

	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		unsubscribe()
		return domain.SessionUnknown
	}
	g.unsubscribe = unsubscribe
	g.mu.Unlock()

	session, err := g.provider.GetSession(ctx)
	if err != nil {
		session = nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// An event delivered while the query was in flight is newer than its result.
	if g.state == domain.SessionUnknown && !g.released {
		g.set(session)
	}
	return g.state
}

func (g *SessionGuard) onSessionChanged(_ domain.AuthEvent, session *domain.Session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.set(session)
}

// adopt installs a session returned directly by the provider.
func (g *SessionGuard) adopt(session *domain.Session) {
	g.onSessionChanged(domain.EventSignedIn, session)
}

func (g *SessionGuard) set(session *domain.Session) {
	g.state = domain.StateOf(session)
	if g.state == domain.SessionPresent {
		g.session = session
	} else {
		g.session = nil
	}
}

func (g *SessionGuard) State() domain.SessionState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *SessionGuard) Session() *domain.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.session
}

// Decide returns the access decision for screen under the current state.
func (g *SessionGuard) Decide(screen domain.Screen) domain.Decision {
	switch g.State() {
	case domain.SessionAbsent:
		if screen == domain.ScreenChat {
			return domain.Decision{Action: domain.ActionRedirect, Location: domain.ScreenLogin.Path()}
		}
	case domain.SessionPresent:
		if screen == domain.ScreenLogin {
			return domain.Decision{Action: domain.ActionRedirect, Location: domain.ScreenChat.Path()}
		}
	default:
		return domain.Decision{Action: domain.ActionSuspend}
	}
	return domain.Decision{Action: domain.ActionRender}
}

// Release removes the provider subscription. Later provider events no longer
// affect the guard. Safe to call more than once.
func (g *SessionGuard) Release() {
	g.releaseOnce.Do(func() {
		g.mu.Lock()
		g.released = true
		unsubscribe := g.unsubscribe
		g.unsubscribe = nil
		g.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}
