package store

import (
	"context"
	"sync"

	"trellis/pkg/logger"
	"trellis/pkg/models"
	"trellis/pkg/telemetry"
)

const minTailBuffer = 64

// tailRegistry fans appended messages out to live subscribers, per
// conversation. Delivery is non-blocking: a subscriber that stops draining
// its buffer loses messages rather than stalling appends for everyone else.
type tailRegistry struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]*tailSub
}

type tailSub struct {
	ch   chan models.Message
	done chan struct{}
	once sync.Once
}

func newTailRegistry() *tailRegistry {
	return &tailRegistry{subs: make(map[string]map[uint64]*tailSub)}
}

func (r *tailRegistry) subscribe(ctx context.Context, convID string, window int) (<-chan models.Message, func()) {
	buf := window
	if buf < minTailBuffer {
		buf = minTailBuffer
	}
	sub := &tailSub{
		ch:   make(chan models.Message, buf),
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	if r.subs[convID] == nil {
		r.subs[convID] = make(map[uint64]*tailSub)
	}
	r.subs[convID][id] = sub
	telemetry.TailSubscribers.Inc()
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if m := r.subs[convID]; m != nil {
			if _, ok := m[id]; ok {
				delete(m, id)
				telemetry.TailSubscribers.Dec()
			}
			if len(m) == 0 {
				delete(r.subs, convID)
			}
		}
		r.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
	}

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-sub.done:
			}
		}()
	}
	logger.Debug("tail_subscribed", "conv", convID, "window", window)
	return sub.ch, cancel
}

func (r *tailRegistry) notify(convID string, msg models.Message) {
	r.mu.Lock()
	targets := make([]*tailSub, 0, len(r.subs[convID]))
	for _, s := range r.subs[convID] {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		select {
		case <-s.done:
			continue
		default:
		}
		select {
		case s.ch <- msg:
			telemetry.TailDeliveries.Inc()
		default:
			// Drop rather than block the append path; the subscriber's next
			// fresh load resynchronizes it.
			telemetry.TailDropped.Inc()
			logger.Warn("tail_delivery_dropped", "conv", convID, "id", msg.ID)
		}
	}
}

func (r *tailRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conv, m := range r.subs {
		for id, s := range m {
			s.once.Do(func() { close(s.done) })
			delete(m, id)
			telemetry.TailSubscribers.Dec()
		}
		delete(r.subs, conv)
	}
}
