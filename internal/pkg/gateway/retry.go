package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v2/log"
)

// RetryOptions bounds every gateway call.
type RetryOptions struct {
	Timeout         time.Duration
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying retries transient failures of the wrapped gateway with
// exponential backoff. Every attempt gets its own timeout.
type Retrying struct {
	next Gateway
	opts RetryOptions
}

// NewRetrying wraps next.
func NewRetrying(next Gateway, opts RetryOptions) *Retrying {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 500 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 5 * time.Second
	}
	return &Retrying{next: next, opts: opts}
}

func (r *Retrying) Grant(ctx context.Context, userID, destinationID int64) error {
	return r.do(ctx, ActionGrant, userID, destinationID)
}

func (r *Retrying) Revoke(ctx context.Context, userID, destinationID int64) error {
	return r.do(ctx, ActionRevoke, userID, destinationID)
}

func (r *Retrying) do(ctx context.Context, action Action, userID, destinationID int64) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.InitialInterval
	b.MaxInterval = r.opts.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		err := Apply(callCtx, r.next, action, userID, destinationID)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = Transient(err)
		}
		if !errors.Is(err, ErrTransient) {
			return backoff.Permanent(err)
		}
		log.Warnf("[Gateway] %s user=%d dest=%d attempt %d failed: %v", action, userID, destinationID, attempt, err)
		return err
	}

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.opts.MaxRetries), ctx))
}
