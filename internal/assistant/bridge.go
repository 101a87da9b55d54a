// Package assistant relays the chat transcript for a list and triggers a
// refresh when a reply looks like it changed the list.
package assistant

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"grocer-cli/internal/gateway"
	"grocer-cli/internal/model"
)

type Chatter interface {
	Chat(ctx context.Context, in gateway.ChatRequest) (gateway.ChatReply, error)
}

type Bridge struct {
	chat       Chatter
	listID     int64
	onMutate   func()
	onAuthFail func()
	detector   Detector
	log        *slog.Logger

	mu         sync.Mutex
	transcript []model.ChatMessage
	gen        uint64
	pending    int
}

type Option func(*Bridge)

func WithDetector(d Detector) Option {
	return func(b *Bridge) {
		if d != nil {
			b.detector = d
		}
	}
}

func WithAuthFailure(fn func()) Option {
	return func(b *Bridge) { b.onAuthFail = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.log = l
		}
	}
}

// New returns a bridge for listID. onMutate runs (outside any lock) after a
// reply the detector flags; callers typically run a silent refresh there.
func New(chat Chatter, listID int64, onMutate func(), opts ...Option) *Bridge {
	b := &Bridge{chat: chat, listID: listID, onMutate: onMutate, detector: KeywordDetector{}, log: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Bridge) ListID() int64 { return b.listID }

func (b *Bridge) Transcript() []model.ChatMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.ChatMessage(nil), b.transcript...)
}

// Pending reports a send awaiting its reply.
func (b *Bridge) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending > 0
}

// Reset clears the transcript. Replies still in flight are dropped.
func (b *Bridge) Reset() {
	b.mu.Lock()
	b.transcript = nil
	b.gen++
	b.pending = 0
	b.mu.Unlock()
}

// IsError reports whether m is a synthetic error turn.
func IsError(m model.ChatMessage) bool {
	return m.Role == model.RoleAssistant && strings.HasPrefix(m.Content, "Error:")
}

// Send appends the user turn, sends the whole transcript and appends the
// reply. On failure the appended turn is "Error: <message>" and the error is
// also returned.
func (b *Bridge) Send(ctx context.Context, text string) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, gateway.Precondition("Message is empty.", nil)
	}
	b.mu.Lock()
	b.transcript = append(b.transcript, model.ChatMessage{Role: model.RoleUser, Content: text})
	msgs := append([]model.ChatMessage(nil), b.transcript...)
	gen := b.gen
	b.pending++
	b.mu.Unlock()

	reply, err := b.chat.Chat(ctx, gateway.ChatRequest{Messages: msgs, ListID: b.listID})

	var out model.ChatMessage
	if err != nil {
		out = model.ChatMessage{Role: model.RoleAssistant, Content: "Error: " + gateway.Message(err)}
	} else {
		out = reply.Message
	}
	b.mu.Lock()
	stale := b.gen != gen
	if !stale {
		b.transcript = append(b.transcript, out)
		b.pending--
	}
	b.mu.Unlock()

	if err != nil {
		b.log.Warn("chat failed", "list_id", b.listID, "err", err)
		if gateway.IsAuth(err) && b.onAuthFail != nil {
			b.onAuthFail()
		}
		return out, err
	}
	if stale {
		return out, nil
	}
	if b.detector.Mutated(reply) {
		b.log.Debug("assistant reply changed the list", "list_id", b.listID)
		if b.onMutate != nil {
			b.onMutate()
		}
	}
	return out, nil
}
