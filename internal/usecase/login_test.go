package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"assistant-web/internal/domain"
)

func newTestLogin(t *testing.T, p *fakeProvider) (*LoginFlow, *SessionGuard, *recordingNotifier) {
	t.Helper()
	g, err := NewSessionGuard(p)
	require.NoError(t, err)
	n := &recordingNotifier{}
	f, err := NewLoginFlow(p, g, n)
	require.NoError(t, err)
	g.Start(context.Background())
	return f, g, n
}

func TestNewLoginFlow_ValidatesDependencies(t *testing.T) {
	p := newFakeProvider(nil)
	g, err := NewSessionGuard(p)
	require.NoError(t, err)

	_, err = NewLoginFlow(nil, g, &recordingNotifier{})
	require.Error(t, err)
	_, err = NewLoginFlow(p, nil, &recordingNotifier{})
	require.Error(t, err)
	_, err = NewLoginFlow(p, g, nil)
	require.Error(t, err)
}

func TestSubmit_Success(t *testing.T) {
	p := newFakeProvider(nil)
	p.signInSession = validSession("tok")
	f, g, n := newTestLogin(t, p)
	require.Equal(t, domain.SessionAbsent, g.State())

	s, err := f.Submit(context.Background(), "juan@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, "tok", s.AccessToken)
	require.Equal(t, domain.SessionPresent, g.State())
	require.Equal(t, domain.Decision{Action: domain.ActionRedirect, Location: "/chat"}, g.Decide(domain.ScreenLogin))
	require.Equal(t, []string{defaultSignedInNotice}, n.successes)
	require.Empty(t, n.errors)
	require.False(t, f.Submitting())
}

func TestSubmit_FailureSurfacesProviderMessage(t *testing.T) {
	p := newFakeProvider(nil)
	p.signInErr = &providerErr{msg: "Invalid login credentials"}
	f, g, n := newTestLogin(t, p)

	_, err := f.Submit(context.Background(), "juan@example.com", "wrong")
	require.True(t, IsCode(err, ErrorAuthFailed))
	require.Equal(t, []string{"Error: Invalid login credentials"}, n.errors)
	require.Empty(t, n.successes)
	require.Equal(t, domain.SessionAbsent, g.State())

	// The form stays usable.
	p.signInErr = nil
	p.signInSession = validSession("tok")
	_, err = f.Submit(context.Background(), "juan@example.com", "right")
	require.NoError(t, err)
	require.Equal(t, 2, p.signInCalls)
}

func TestSubmit_EmptyCredentials(t *testing.T) {
	p := newFakeProvider(nil)
	f, _, n := newTestLogin(t, p)

	_, err := f.Submit(context.Background(), "  ", "secret")
	require.True(t, IsCode(err, ErrorInvalidInput))
	_, err = f.Submit(context.Background(), "juan@example.com", "")
	require.True(t, IsCode(err, ErrorInvalidInput))
	require.Zero(t, p.signInCalls)
	require.Len(t, n.errors, 2)
}

func TestSubmit_EmailPassedAsEntered(t *testing.T) {
	p := newFakeProvider(nil)
	p.signInSession = validSession("tok")
	f, _, _ := newTestLogin(t, p)

	_, err := f.Submit(context.Background(), " juan@example.com ", "secret")
	require.NoError(t, err)
	require.Equal(t, " juan@example.com ", p.signInEmail)
}

func TestSubmit_MissingCredentialsNotice(t *testing.T) {
	p := newFakeProvider(nil)
	g, err := NewSessionGuard(p)
	require.NoError(t, err)
	n := &recordingNotifier{}
	f, err := NewLoginFlow(p, g, n, WithMissingCredentialsNotice("Faltan datos"))
	require.NoError(t, err)

	_, err = f.Submit(context.Background(), "", "")
	require.True(t, IsCode(err, ErrorInvalidInput))
	require.Equal(t, []string{"Faltan datos"}, n.errors)
}

func TestSubmit_RejectsConcurrentSubmission(t *testing.T) {
	p := newFakeProvider(nil)
	p.signInSession = validSession("tok")
	p.signInGate = make(chan struct{})
	f, _, n := newTestLogin(t, p)

	done := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background(), "juan@example.com", "secret")
		done <- err
	}()
	require.Eventually(t, f.Submitting, time.Second, 5*time.Millisecond)

	_, err := f.Submit(context.Background(), "juan@example.com", "secret")
	require.True(t, IsCode(err, ErrorBusy))

	close(p.signInGate)
	require.NoError(t, <-done)
	require.Equal(t, 1, p.signInCalls)
	require.Len(t, n.successes, 1)
	require.Empty(t, n.errors)
}

func TestWatch_SignedInEventNotifiesOnce(t *testing.T) {
	p := newFakeProvider(nil)
	p.signInSession = validSession("tok")
	p.emitOnSignIn = true
	f, g, n := newTestLogin(t, p)
	f.Watch()

	_, err := f.Submit(context.Background(), "juan@example.com", "secret")
	require.NoError(t, err)
	require.Equal(t, domain.SessionPresent, g.State())
	require.Len(t, n.successes, 1)
}

func TestWatch_RestoredSessionTransitions(t *testing.T) {
	p := newFakeProvider(nil)
	f, g, n := newTestLogin(t, p)
	f.Watch()

	p.emit(domain.EventSignedIn, validSession("restored"))
	require.Equal(t, domain.SessionPresent, g.State())
	require.Equal(t, []string{defaultSignedInNotice}, n.successes)

	p.emit(domain.EventTokenRefreshed, validSession("refreshed"))
	require.Len(t, n.successes, 1)
}

func TestWatch_ReleaseStopsNotifications(t *testing.T) {
	p := newFakeProvider(nil)
	g, err := NewSessionGuard(p)
	require.NoError(t, err)
	n := &recordingNotifier{}
	f, err := NewLoginFlow(p, g, n, WithSignedInNotice("welcome"))
	require.NoError(t, err)

	f.Watch()
	f.Watch()
	require.Equal(t, 1, p.listenerCount())

	f.Release()
	require.Equal(t, 0, p.listenerCount())
	p.emit(domain.EventSignedIn, validSession("x"))
	require.Empty(t, n.successes)
}
