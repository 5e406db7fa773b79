package usecase

import (
	"context"
	"sync"

	"assistant-web/internal/domain"
)

type fakeProvider struct {
	mu        sync.Mutex
	session   *domain.Session
	getErr    error
	getCalls  int
	listeners map[int]domain.AuthListener
	nextID    int
	unsubs    int

	signInSession *domain.Session
	signInErr     error
	signInCalls   int
	signInEmail   string
	// signInGate, when set, blocks SignInWithPassword until closed.
	signInGate chan struct{}
	// emitOnSignIn mimics providers that also broadcast SIGNED_IN.
	emitOnSignIn bool
}

func newFakeProvider(s *domain.Session) *fakeProvider {
	return &fakeProvider{session: s, listeners: map[int]domain.AuthListener{}}
}

func (p *fakeProvider) GetSession(_ context.Context) (*domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	return p.session, nil
}

func (p *fakeProvider) OnAuthStateChange(l domain.AuthListener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = l
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
		p.unsubs++
	}
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, _ string) (*domain.Session, error) {
	p.mu.Lock()
	p.signInCalls++
	p.signInEmail = email
	gate := p.signInGate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	if p.emitOnSignIn {
		p.emit(domain.EventSignedIn, p.signInSession)
	}
	return p.signInSession, nil
}

func (p *fakeProvider) emit(event domain.AuthEvent, s *domain.Session) {
	p.mu.Lock()
	p.session = s
	ls := make([]domain.AuthListener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.mu.Unlock()
	for _, l := range ls {
		l(event, s)
	}
}

func (p *fakeProvider) listenerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.listeners)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type providerErr struct{ msg string }

func (e *providerErr) Error() string           { return "gotrue: " + e.msg }
func (e *providerErr) ProviderMessage() string { return e.msg }

func validSession(token string) *domain.Session {
	return &domain.Session{AccessToken: token, RefreshToken: "r-" + token, User: domain.User{ID: "u1", Email: "juan@example.com"}}
}
