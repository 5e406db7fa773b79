package handler

import "sync"

type flashKind string

const (
	flashSuccess flashKind = "success"
	flashError   flashKind = "error"
)

// flash is a transient notification shown once on the next rendered page.
type flash struct {
	Kind    flashKind
	Message string
}

// flashNotifier queues notifications for a browser until a page drains them.
type flashNotifier struct {
	mu    sync.Mutex
	items []flash
}

func (n *flashNotifier) Success(msg string) {
	n.push(flash{Kind: flashSuccess, Message: msg})
}

func (n *flashNotifier) Error(msg string) {
	n.push(flash{Kind: flashError, Message: msg})
}

func (n *flashNotifier) push(f flash) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.items = append(n.items, f)
}

// Drain returns the queued notifications and empties the queue.
func (n *flashNotifier) Drain() []flash {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := n.items
	n.items = nil
	return out
}
