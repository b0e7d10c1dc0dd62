package agent

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"hearth/internal/config"
	"hearth/internal/tools"
)

const previewLimit = 80

// ConfirmRequest asks a human to approve one confirm-tier tool call.
type ConfirmRequest struct {
	Token    string
	ToolName string
	Preview  string
}

// Confirmer obtains human approval. Implementations must respect ctx; the
// runtime bounds every request with the confirmation timeout.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// Preview renders a short human-readable description of a tool input.
func Preview(name string, input tools.Input) string {
	var s string
	switch name {
	case "shell_execute":
		s = input.String("command")
	case "file_write", "file_delete", "file_move":
		s = input.String("path")
	case "cron_schedule":
		s = input.String("action") + " " + input.String("cron_expr")
	default:
		s = name
	}
	if len(s) > previewLimit {
		s = s[:previewLimit-3] + "..."
	}
	return s
}

// Broker is a Confirmer for asynchronous channels: the gateway shows the
// request to the user and later resolves it by token. Each pending request
// holds a rendezvous channel; resolution and timeout race cleanly.
type Broker struct {
	mu      sync.Mutex
	pending map[string]chan bool
	notify  func(ConfirmRequest)
}

// NewBroker creates a broker. notify is called with each new request so the
// gateway can present it; it must not block.
func NewBroker(notify func(ConfirmRequest)) *Broker {
	return &Broker{
		pending: make(map[string]chan bool),
		notify:  notify,
	}
}

// Confirm registers a pending request and waits for Resolve or ctx.
func (b *Broker) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	if req.Token == "" {
		req.Token = uuid.NewString()
	}
	ch := make(chan bool, 1)

	b.mu.Lock()
	b.pending[req.Token] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, req.Token)
		b.mu.Unlock()
	}()

	if b.notify != nil {
		b.notify(req)
	}

	select {
	case approved := <-ch:
		return approved, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve answers a pending request, reporting whether the token was known.
// Late answers after timeout return false and are ignored.
func (b *Broker) Resolve(token string, approved bool) bool {
	b.mu.Lock()
	ch, ok := b.pending[token]
	b.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- approved:
	default:
	}
	return true
}

// confirm runs one confirmation with the fixed timeout. Timeout and decline
// are both reported as sentinel errors so the runtime can phrase the tool
// result precisely.
func confirm(ctx context.Context, c Confirmer, name string, input tools.Input) error {
	cctx, cancel := context.WithTimeout(ctx, config.ConfirmationTimeout)
	defer cancel()

	approved, err := c.Confirm(cctx, ConfirmRequest{
		Token:    uuid.NewString(),
		ToolName: name,
		Preview:  Preview(name, input),
	})
	if err != nil {
		if cctx.Err() != nil {
			return tools.ErrConfirmTimeout
		}
		return err
	}
	if !approved {
		return tools.ErrConfirmDeclined
	}
	return nil
}
