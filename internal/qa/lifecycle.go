package qa

import (
	"context"
	"errors"
)

// ErrClosed is returned when a result arrives after the page was torn down.
// The result is discarded.
var ErrClosed = errors.New("qa: page closed")

// lifecycle is shared by the stores of one page. Commits check alive under
// the store lock; Close cancels every call still in flight.
type lifecycle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newLifecycle() *lifecycle {
	ctx, cancel := context.WithCancel(context.Background())
	return &lifecycle{ctx: ctx, cancel: cancel}
}

func (l *lifecycle) alive() bool {
	return l.ctx.Err() == nil
}

func (l *lifecycle) close() {
	l.cancel()
}

// join derives a context cancelled by either the caller or the page.
func (l *lifecycle) join(ctx context.Context) (context.Context, context.CancelFunc) {
	joined, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(l.ctx, cancel)
	return joined, func() {
		stop()
		cancel()
	}
}
