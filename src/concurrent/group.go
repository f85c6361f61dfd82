package concurrent

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Group is an errgroup.Group whose functions report their failures.
// Cancellation errors are not reported.
type Group struct {
	tracker Tracker
	group   *errgroup.Group
}

// NewGroup returns a group and a context canceled when a function of the
// group fails.
func NewGroup(ctx context.Context, t Tracker) (*Group, context.Context) {
	g, ctx := errgroup.WithContext(ctx)
	return &Group{tracker: t, group: g}, ctx
}

func (g *Group) SetLimit(n int) {
	g.group.SetLimit(n)
}

// Go runs fn on a new goroutine. A panic in fn is reported and returned
// from Wait as a *errtrack.PanicError.
func (g *Group) Go(fn func() error) {
	g.group.Go(func() error {
		var err error
		if pe, fresh := catch(func() { err = fn() }); pe != nil {
			if fresh {
				g.tracker.TrackError(pe)
			}
			return pe
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			g.tracker.TrackError(err)
		}
		return err
	})
}

func (g *Group) Wait() error {
	return g.group.Wait()
}
