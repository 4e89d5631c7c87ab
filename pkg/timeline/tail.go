package timeline

import (
	"context"

	"trellis/pkg/logger"
	"trellis/pkg/models"
)

// tailWindow is deliberately minimal: backward pagination owns historical
// delivery, so the tail only needs the stream of messages appended after
// subscription start.
const tailWindow = 1

// liveTail pumps store deliveries into the session in arrival order. One
// goroutine per session keeps ordering trivial.
type liveTail struct {
	cancel func()
	done   chan struct{}
}

func startTail(ctx context.Context, store EventStore, convID string, apply func(models.Message)) *liveTail {
	ch, cancel := store.SubscribeLatest(ctx, convID, tailWindow)
	t := &liveTail{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				apply(msg)
			}
		}
	}()
	logger.Debug("live_tail_started", "conv", convID)
	return t
}

func (t *liveTail) stop() {
	t.cancel()
}
