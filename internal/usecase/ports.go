package usecase

import (
	"context"

	"assistant-web/internal/domain"
)

// SessionProvider is the read side of the external auth provider.
type SessionProvider interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	// OnAuthStateChange registers l and returns a function that removes it.
	OnAuthStateChange(l domain.AuthListener) (unsubscribe func())
}

// Authenticator submits credentials to the external auth provider.
type Authenticator interface {
	SessionProvider
	SignInWithPassword(ctx context.Context, email, password string) (*domain.Session, error)
}

// AssistantCaller performs one atomic request/response against the remote
// assistant function.
type AssistantCaller interface {
	Invoke(ctx context.Context, req domain.AssistantRequest) (domain.AssistantResponse, error)
}

// Notifier surfaces one-time notifications. Calls are fire-and-forget.
type Notifier interface {
	Success(message string)
	Error(message string)
}
