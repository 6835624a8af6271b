// Package gatewaytest provides an in-memory gateway for tests.
package gatewaytest

import (
	"context"
	"sync"

	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
)

// Call is one recorded gateway invocation.
type Call struct {
	Action        gateway.Action
	UserID        int64
	DestinationID int64
}

// Recorder records every call and fails calls for users configured with Fail.
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[int64]error
}

func NewRecorder() *Recorder {
	return &Recorder{fail: map[int64]error{}}
}

// Fail makes every call for userID return err until Heal is called.
func (r *Recorder) Fail(userID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[userID] = err
}

func (r *Recorder) Heal(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.fail, userID)
}

func (r *Recorder) Grant(ctx context.Context, userID, destinationID int64) error {
	return r.record(gateway.ActionGrant, userID, destinationID)
}

func (r *Recorder) Revoke(ctx context.Context, userID, destinationID int64) error {
	return r.record(gateway.ActionRevoke, userID, destinationID)
}

func (r *Recorder) record(action gateway.Action, userID, destinationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Action: action, UserID: userID, DestinationID: destinationID})
	return r.fail[userID]
}

// Calls returns a copy of all recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsFor returns the calls of one action for one user.
func (r *Recorder) CallsFor(action gateway.Action, userID int64) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Action == action && c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}
