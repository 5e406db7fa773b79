package handler

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"assistant-web/internal/branding"
	"assistant-web/internal/usecase"
)

// browser is the server-side state of one browser, identified by a cookie.
type browser struct {
	id    string
	auth  BrowserAuth
	flash *flashNotifier

	loginOnce sync.Once
	login     *loginScreen
	loginErr  error

	mu        sync.Mutex
	chats     map[string]*chatScreen
	lastEmail string
	lastSeen  time.Time
}

type loginScreen struct {
	guard *usecase.SessionGuard
	flow  *usecase.LoginFlow
}

type chatScreen struct {
	id         string
	guard      *usecase.SessionGuard
	dispatcher *usecase.Dispatcher
	lastSeen   time.Time
}

// browser returns the state for the request's browser cookie, creating both
// when needed. It returns false after writing an error response.
func (h *Handler) browser(c *gin.Context) (*browser, bool) {
	id, err := c.Cookie(browserCookie)
	if err != nil || uuid.Validate(id) != nil {
		id = uuid.NewString()
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(browserCookie, id, browserCookieMaxAge, "/", "", h.secure, true)

	now := h.now()
	h.mu.Lock()
	defer h.mu.Unlock()
	if b, ok := h.browsers[id]; ok {
		b.touch(now)
		return b, true
	}

	auth, err := h.newAuth(id)
	if err != nil {
		h.internalError(c, err)
		return nil, false
	}
	b := &browser{
		id:       id,
		auth:     auth,
		flash:    &flashNotifier{},
		chats:    make(map[string]*chatScreen),
		lastSeen: now,
	}
	h.browsers[id] = b
	return b, true
}

// loginScreen builds the browser's login screen on first use. The login flow
// subscribes before the guard resolves so a restored session is announced.
func (b *browser) loginScreen(ctx context.Context, brand branding.Branding) (*loginScreen, error) {
	b.loginOnce.Do(func() {
		guard, err := usecase.NewSessionGuard(b.auth)
		if err != nil {
			b.loginErr = err
			return
		}
		flow, err := usecase.NewLoginFlow(b.auth, guard, b.flash,
			usecase.WithSignedInNotice(brand.SignedInNotice),
			usecase.WithMissingCredentialsNotice(brand.MissingLogin),
		)
		if err != nil {
			b.loginErr = err
			return
		}
		flow.Watch()
		guard.Start(ctx)
		b.login = &loginScreen{guard: guard, flow: flow}
	})
	if b.login == nil && b.loginErr == nil {
		return nil, errors.New("handler: browser state released")
	}
	return b.login, b.loginErr
}

func (b *browser) touch(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeen = now
}

func (b *browser) rememberEmail(email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastEmail = email
}

func (b *browser) takeEmail() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	email := b.lastEmail
	b.lastEmail = ""
	return email
}

func (b *browser) addChat(id string, guard *usecase.SessionGuard, d *usecase.Dispatcher, now time.Time) *chatScreen {
	s := &chatScreen{id: id, guard: guard, dispatcher: d, lastSeen: now}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chats[id] = s
	return s
}

func (b *browser) chat(id string, now time.Time) *chatScreen {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.chats[id]
	if !ok {
		return nil
	}
	s.lastSeen = now
	return s
}

// closeChat discards a chat screen: its guard stops listening and an
// in-flight assistant reply is dropped.
func (b *browser) closeChat(id string) {
	b.mu.Lock()
	s, ok := b.chats[id]
	delete(b.chats, id)
	b.mu.Unlock()
	if ok {
		s.close()
	}
}

func (s *chatScreen) close() {
	s.guard.Release()
	s.dispatcher.Discard()
}

// sweep discards chat screens idle since before cutoff and reports whether
// the browser itself is idle with no screens left.
func (b *browser) sweep(cutoff time.Time) (closed int, idle bool) {
	b.mu.Lock()
	var stale []*chatScreen
	for id, s := range b.chats {
		if s.lastSeen.Before(cutoff) {
			stale = append(stale, s)
			delete(b.chats, id)
		}
	}
	idle = len(b.chats) == 0 && b.lastSeen.Before(cutoff)
	b.mu.Unlock()

	for _, s := range stale {
		s.close()
	}
	return len(stale), idle
}

func (b *browser) release() {
	// Settles the once so a racing loginScreen cannot build a new screen.
	b.loginOnce.Do(func() {})
	if b.login != nil {
		b.login.flow.Release()
		b.login.guard.Release()
	}
}

// Sweep discards screens and browsers untouched for longer than the idle
// timeout and returns the number of chat screens closed.
func (h *Handler) Sweep(now time.Time) int {
	cutoff := now.Add(-h.idleTimeout)

	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for id, b := range h.browsers {
		closed, idle := b.sweep(cutoff)
		total += closed
		if idle {
			b.release()
			delete(h.browsers, id)
		}
	}
	return total
}

// RunJanitor calls Sweep every interval until ctx is done.
func (h *Handler) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if closed := h.Sweep(h.now()); closed > 0 {
				h.logger.Info("discarded idle chat screens", "count", closed)
			}
		}
	}
}
