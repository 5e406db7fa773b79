package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"assistant-web/internal/domain"
)

const (
	// FallbackReply is appended when the assistant answered without a usable
	// response.
	FallbackReply = "Hubo un problema procesando tu solicitud con la IA."
	// ConnectionErrorReply is appended when the assistant call failed.
	ConnectionErrorReply = "Error de conexión con la IA."

	defaultAssistantUserID = "demo-user"
	defaultCallTimeout     = 30 * time.Second
)

// Dispatcher sends one user message at a time to the assistant and records
// exactly one assistant reply per admitted message.
type Dispatcher struct {
	conv      *Conversation
	assistant AssistantCaller
	userID    string
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	busy      bool
	discarded bool
	inflight  sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

// WithAssistantUserID sets the caller identity sent with every prompt.
func WithAssistantUserID(id string) DispatcherOption {
	return func(d *Dispatcher) {
		if strings.TrimSpace(id) != "" {
			d.userID = id
		}
	}
}

// WithCallTimeout bounds each assistant call.
func WithCallTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDispatcher(conv *Conversation, assistant AssistantCaller, opts ...DispatcherOption) (*Dispatcher, error) {
	if conv == nil {
		return nil, errors.New("usecase: conversation must not be nil")
	}
	if assistant == nil {
		return nil, errors.New("usecase: assistant caller must not be nil")
	}
	d := &Dispatcher{
		conv:      conv,
		assistant: assistant,
		userID:    defaultAssistantUserID,
		timeout:   defaultCallTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Send appends text as a user message and starts the assistant call. It
// returns false, without touching the transcript, when text is blank or a
// call is already outstanding.
func (d *Dispatcher) Send(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	d.mu.Lock()
	if d.busy || d.discarded {
		d.mu.Unlock()
		return false
	}
	d.busy = true
	d.conv.Append(NewMessage(domain.SenderUser, text))
	d.inflight.Add(1)
	d.mu.Unlock()

	go d.dispatch(text)
	return true
}

func (d *Dispatcher) dispatch(text string) {
	defer d.inflight.Done()
	defer func() {
		d.mu.Lock()
		d.busy = false
		d.mu.Unlock()
	}()

	res := d.call(text)
	if !res.ok {
		d.logger.Warn("assistant call failed", "reason", res.reason)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.discarded {
		return
	}
	d.conv.Append(NewMessage(domain.SenderAssistant, res.reply()))
}

// callResult is the settled outcome of one assistant call.
type callResult struct {
	ok     bool
	text   string
	reason string
}

func (r callResult) reply() string {
	switch {
	case !r.ok:
		return ConnectionErrorReply
	case strings.TrimSpace(r.text) == "":
		return FallbackReply
	default:
		return r.text
	}
}

// call invokes the assistant and folds every error, including a panic in the
// caller, into a failed result.
func (d *Dispatcher) call(text string) (res callResult) {
	defer func() {
		if r := recover(); r != nil {
			res = callResult{reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	resp, err := d.assistant.Invoke(ctx, domain.AssistantRequest{Prompt: text, UserID: d.userID})
	if err != nil {
		return callResult{reason: err.Error()}
	}
	return callResult{ok: true, text: resp.AIResponse}
}

// Busy reports whether an assistant call is outstanding.
func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// Wait blocks until no assistant call is outstanding.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

// Discard detaches the dispatcher from its screen. Later sends are ignored and
// the outcome of an in-flight call is dropped.
func (d *Dispatcher) Discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.discarded = true
}

func (d *Dispatcher) Conversation() *Conversation {
	return d.conv
}
