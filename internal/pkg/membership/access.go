package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChannelPass/app/models"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/gateway"
	"github.com/ManuelReschke/ChannelPass/internal/pkg/metrics"
)

// Access maps a membership status onto gateway calls for every gated
// destination.
type Access struct {
	gw           gateway.Gateway
	destinations []int64
}

// NewAccess creates an access controller for the given destinations.
func NewAccess(gw gateway.Gateway, destinations []int64) *Access {
	return &Access{gw: gw, destinations: destinations}
}

// ActionFor returns the gateway action status requires, or "" for pending.
func ActionFor(status string) gateway.Action {
	switch status {
	case models.MembershipStatusActive, models.MembershipStatusGrace:
		return gateway.ActionGrant
	case models.MembershipStatusExpired, models.MembershipStatusRevoked:
		return gateway.ActionRevoke
	default:
		return ""
	}
}

// Sync applies the action of status on every destination. A failing
// destination does not stop the others; all failures are joined.
func (a *Access) Sync(ctx context.Context, userID int64, status string) (gateway.Action, error) {
	action := ActionFor(status)
	if action == "" {
		return "", nil
	}

	var errs []error
	for _, dest := range a.destinations {
		err := gateway.Apply(ctx, a.gw, action, userID, dest)
		metrics.GatewayCalls.WithLabelValues(string(action), metrics.Result(err)).Inc()
		if err != nil {
			log.Errorf("[Access] %s user=%d dest=%d failed: %v", action, userID, dest, err)
			errs = append(errs, fmt.Errorf("%s %d on %d: %w", action, userID, dest, err))
		}
	}
	return action, errors.Join(errs...)
}

// Destinations returns the gated chat ids.
func (a *Access) Destinations() []int64 {
	return a.destinations
}
