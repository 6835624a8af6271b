// Package messagingtest provides recording notifiers and senders for tests.
package messagingtest

import (
	"context"
	"sync"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/messaging"
)

// Notifier records notifications.
type Notifier struct {
	mu   sync.Mutex
	sent []messaging.Notification
}

func (n *Notifier) Notify(ctx context.Context, msg messaging.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (n *Notifier) Sent() []messaging.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]messaging.Notification, len(n.sent))
	copy(out, n.sent)
	return out
}

// ByTemplate returns the recorded notifications with template t.
func (n *Notifier) ByTemplate(t messaging.Template) []messaging.Notification {
	var out []messaging.Notification
	for _, msg := range n.Sent() {
		if msg.Template == t {
			out = append(out, msg)
		}
	}
	return out
}

// Sender records direct sends. Errors maps user ids to send errors.
type Sender struct {
	mu     sync.Mutex
	sent   []messaging.Notification
	Errors map[int64]error
}

func (s *Sender) Send(ctx context.Context, n messaging.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.Errors[n.UserID]; err != nil {
		return err
	}
	s.sent = append(s.sent, n)
	return nil
}

func (s *Sender) Sent() []messaging.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]messaging.Notification, len(s.sent))
	copy(out, s.sent)
	return out
}

// BroadcastSender records broadcast deliveries. Script returns the error for
// a delivery attempt; nil Script means every send succeeds.
type BroadcastSender struct {
	mu       sync.Mutex
	attempts map[int64]int
	order    []int64
	Script   func(userID int64, attempt int) error
}

func (b *BroadcastSender) SendBroadcast(ctx context.Context, userID int64, payload models.BroadcastPayload) error {
	b.mu.Lock()
	if b.attempts == nil {
		b.attempts = map[int64]int{}
	}
	b.attempts[userID]++
	attempt := b.attempts[userID]
	script := b.Script
	b.mu.Unlock()

	if script != nil {
		if err := script(userID, attempt); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.order = append(b.order, userID)
	b.mu.Unlock()
	return nil
}

// Delivered returns the users that received the message, in order,
// including repeats.
func (b *BroadcastSender) Delivered() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, len(b.order))
	copy(out, b.order)
	return out
}

// Attempts returns how often userID was tried.
func (b *BroadcastSender) Attempts(userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[userID]
}
