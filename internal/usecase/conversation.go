package usecase

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"assistant-web/internal/domain"
)

// Conversation is an append-only, memory-resident transcript scoped to one
// chat screen.
type Conversation struct {
	mu       sync.RWMutex
	messages []domain.Message
	version  uint64
}

// NewConversation returns a transcript holding a single assistant greeting.
func NewConversation(greeting string) *Conversation {
	c := &Conversation{}
	c.Append(NewMessage(domain.SenderAssistant, greeting))
	return c
}

// NewMessage builds a message with a fresh identifier.
func NewMessage(sender domain.Sender, text string) domain.Message {
	return domain.Message{
		ID:        newUUID(),
		Text:      text,
		Sender:    sender,
		CreatedAt: now(),
	}
}

// Append adds m after every existing entry.
func (c *Conversation) Append(m domain.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
	c.version++
}

// Messages returns a copy of the transcript in insertion order.
func (c *Conversation) Messages() []domain.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Version increases by one on every Append.
func (c *Conversation) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

var newUUID = func() string {
	return uuid.NewString()
}

var now = func() time.Time {
	return time.Now().UTC()
}
