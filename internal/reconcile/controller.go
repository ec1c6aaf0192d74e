package reconcile

import (
	"context"
	"fmt"
	"net/url"

	"github.com/restreamctl/restreamer/internal/model"
)

// DesiredFromRestreams computes the worker set that should be running for a
// restream snapshot: one worker per enabled restream with at least one
// enabled output, keyed by the input's fingerprint.
func DesiredFromRestreams(rs []model.Restream) []Desired {
	desired := make([]Desired, 0, len(rs))
	for _, r := range rs {
		if !r.Enabled {
			continue
		}
		var dsts []*url.URL
		for _, o := range r.Outputs {
			if o.Enabled {
				dsts = append(dsts, o.Dst)
			}
		}
		if len(dsts) == 0 {
			continue
		}
		desired = append(desired, Desired{
			Key:     fmt.Sprintf("%x", r.Input.Fingerprint()),
			Src:     r.Input.BrokerURL(),
			Outputs: dsts,
		})
	}
	return desired
}

// Controller subscribes to a restream stream and drives a Pool to match it.
type Controller struct {
	pool *Pool
}

// NewController pairs a Pool with the subscription that feeds it.
func NewController(pool *Pool) *Controller {
	return &Controller{pool: pool}
}

// Subscribe registers the controller against source, reconciling the pool
// on every distinct restream-list change until ctx is cancelled.
func (c *Controller) Subscribe(ctx context.Context, source interface {
	Subscribe(context.Context, string, func(context.Context, []model.Restream))
}) {
	source.Subscribe(ctx, "reconcile_restreams", func(ctx context.Context, rs []model.Restream) {
		c.pool.Reconcile(ctx, DesiredFromRestreams(rs))
	})
}
