package domain

import "time"

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a single immutable transcript entry.
type Message struct {
	ID        string
	Text      string
	Sender    Sender
	CreatedAt time.Time
}

// AssistantRequest is the payload sent to the remote assistant function.
type AssistantRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"user_id"`
}

// AssistantResponse is the minimal payload shape returned by the assistant
// function. AIResponse is empty when the function produced nothing usable.
type AssistantResponse struct {
	AIResponse string `json:"ai_response,omitempty"`
}
