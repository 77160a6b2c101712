package scheduler

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Group collects the deferred work of one request so the caller can wait on
// it, in the manner of a serverless waitUntil. Failures are reported to OnError
// and the first one is also returned from Wait.
type Group struct {
	g       errgroup.Group
	ctx     context.Context
	OnError ErrorHandler
}

var _ Scheduler = (*Group)(nil)

// NewGroup detaches tasks from ctx cancellation but keeps its values.
// limit <= 0 means unbounded concurrency.
func NewGroup(ctx context.Context, limit int) *Group {
	g := &Group{ctx: context.WithoutCancel(ctx)}
	if limit > 0 {
		g.g.SetLimit(limit)
	}
	return g
}

func (g *Group) Schedule(name string, t Task) {
	g.g.Go(func() error {
		if err := run(g.ctx, t); err != nil {
			report(g.OnError, name, err)
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	})
}

func (g *Group) Wait() error { return g.g.Wait() }
