// Package gateway defines the channel access contract and a retrying
// decorator around it.
package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Gateway adds and removes a user from a gated destination. Both calls must
// be idempotent at the destination.
type Gateway interface {
	Grant(ctx context.Context, userID, destinationID int64) error
	Revoke(ctx context.Context, userID, destinationID int64) error
}

// ErrTransient marks failures worth retrying (timeouts, 5xx, throttling).
var ErrTransient = errors.New("transient gateway failure")

// Action is the access change applied to a destination.
type Action string

const (
	ActionGrant  Action = "grant"
	ActionRevoke Action = "revoke"
)

// Apply runs action for userID on destinationID.
func Apply(ctx context.Context, g Gateway, action Action, userID, destinationID int64) error {
	switch action {
	case ActionGrant:
		return g.Grant(ctx, userID, destinationID)
	case ActionRevoke:
		return g.Revoke(ctx, userID, destinationID)
	default:
		return fmt.Errorf("unknown gateway action %q", action)
	}
}

// Transient wraps err so errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
