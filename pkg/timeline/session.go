// Package timeline is the chat synchronization engine behind a messaging
// view: it reconciles optimistic local sends with the confirmed event
// stream, pages history backward, and applies live deliveries, keeping
// exactly one visible entry per logical message.
package timeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trellis/pkg/external"
	"trellis/pkg/logger"
	"trellis/pkg/models"
)

// DefaultProvisionalTimeout bounds how long an unconfirmed send stays
// pending before it is surfaced as failed rather than silently retried.
const DefaultProvisionalTimeout = 30 * time.Second

// EventStore is the persistence contract the engine consumes. Implemented
// by pkg/store; tests substitute fakes.
type EventStore interface {
	Append(ctx context.Context, convID string, draft models.Message) (models.Message, error)
	ReadBackward(ctx context.Context, convID, cursor string, limit int) ([]models.Message, string, bool, error)
	SubscribeLatest(ctx context.Context, convID string, window int) (<-chan models.Message, func())
}

// Gate is the membership check applied on every send and read attempt. No
// verdict is cached across calls.
type Gate interface {
	CanRead(convID, userID string) error
	CanWrite(convID, userID string) error
}

// Options tune a session.
type Options struct {
	PageSize           int
	ProvisionalTimeout time.Duration
	Match              MatchFunc
	// Uploader resolves local media placeholders after the provisional entry
	// is already visible. Optional.
	Uploader external.MediaUploader
}

// Session owns one conversation's visible timeline. All buffer and cursor
// mutations are serialized behind a single mutex; the live tail, sends, and
// pagination only interleave at that boundary. Sessions are independent
// across conversations.
type Session struct {
	store  EventStore
	gate   Gate
	auth   external.AuthProvider
	convID string
	opts   Options

	ctx    context.Context
	cancel context.CancelFunc
	tail   *liveTail

	mu     sync.Mutex
	buf    *Buffer
	cur    *Cursor
	closed bool
}

// Open gates read access, starts a fresh live tail, and performs the
// initial backward load. A failed initial load leaves an empty, usable
// session (retry via LoadMore); a failed gate check returns the gate error.
func Open(ctx context.Context, store EventStore, gate Gate, auth external.AuthProvider, convID string, opts Options) (*Session, error) {
	userID := auth.CurrentUserID()
	if err := gate.CanRead(convID, userID); err != nil {
		return nil, err
	}
	if opts.ProvisionalTimeout <= 0 {
		opts.ProvisionalTimeout = DefaultProvisionalTimeout
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		store:  store,
		gate:   gate,
		auth:   auth,
		convID: convID,
		opts:   opts,
		ctx:    sctx,
		cancel: cancel,
		buf:    NewBuffer(opts.Match),
		cur:    NewCursor(convID, opts.PageSize),
	}
	s.tail = startTail(sctx, store, convID, s.applyConfirmed)
	if err := s.LoadMore(ctx); err != nil {
		logger.Warn("initial_load_failed", "conv", convID, "error", err)
	}
	return s, nil
}

// Send inserts a provisional entry at the head and writes it to the store
// asynchronously. The returned token identifies the entry until the
// confirmed message replaces it. Membership is re-checked on every call.
func (s *Session) Send(ctx context.Context, draft models.Message) (string, error) {
	userID := s.auth.CurrentUserID()
	if err := s.gate.CanWrite(s.convID, userID); err != nil {
		return "", err
	}
	draft.Conv = s.convID
	draft.Sender = userID
	draft.CreatedAt = time.Now().UTC().UnixNano()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	token := s.buf.InsertProvisional(draft)
	s.mu.Unlock()

	time.AfterFunc(s.opts.ProvisionalTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if s.buf.MarkFailed(token) {
			logger.Warn("send_timed_out", "conv", s.convID, "token", token)
		}
	})

	go s.performSend(token, draft)
	return token, nil
}

// performSend uploads any local media, then appends. Runs under the session
// context so teardown abandons it.
func (s *Session) performSend(token string, draft models.Message) {
	for i := range draft.Media {
		if !draft.Media[i].Local {
			continue
		}
		if s.opts.Uploader == nil {
			s.failSend(token, fmt.Errorf("local media without uploader"))
			return
		}
		remote, err := s.opts.Uploader.Upload(s.ctx, draft.Media[i].URL)
		if err != nil {
			s.failSend(token, err)
			return
		}
		draft.Media[i].URL = remote
		draft.Media[i].Local = false
		s.mu.Lock()
		s.buf.ResolveMediaURL(token, i, remote)
		s.mu.Unlock()
	}

	confirmed, err := s.store.Append(s.ctx, s.convID, draft)
	if err != nil {
		s.failSend(token, err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf.Confirm(token, confirmed)
}

func (s *Session) failSend(token string, cause error) {
	logger.Error("send_failed", "conv", s.convID, "token", token, "error", cause)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf.MarkFailed(token)
}

// Retry re-issues a failed send. The failed entry is removed and a fresh
// provisional entry takes its place at the head.
func (s *Session) Retry(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	msg, ok := s.buf.Get(token)
	if !ok || !msg.FailedSend {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: no failed entry for token", ErrWriteFailed)
	}
	s.buf.Remove(token)
	s.mu.Unlock()

	msg.Provisional = false
	msg.FailedSend = false
	return s.Send(ctx, msg)
}

// LoadMore extends the visible window backward by one page. Calls while a
// page is in flight, or after exhaustion, are no-ops. The store read runs
// without the session lock so live deliveries are never stalled behind it.
func (s *Session) LoadMore(ctx context.Context) error {
	if err := s.gate.CanRead(s.convID, s.auth.CurrentUserID()); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.cur.begin() {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	msgs, next, _, err := s.cur.fetch(ctx, s.store)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		// Result arrived after teardown; discard rather than apply.
		s.cur.abort()
		return ErrClosed
	}
	if err != nil {
		s.cur.abort()
		return fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	s.buf.AppendHistory(msgs)
	s.cur.complete(len(msgs), next)
	return nil
}

// applyConfirmed is the tail delivery path; arrival order is preserved by
// the single tail goroutine.
func (s *Session) applyConfirmed(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf.ObserveConfirmed(msg)
}

// Snapshot copies the visible timeline, newest-first.
func (s *Session) Snapshot() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Snapshot()
}

// Exhausted reports whether backward history is fully loaded.
func (s *Session) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Exhausted()
}

// Close tears the session down: the tail subscription is cancelled and any
// in-flight page read or send acknowledgment is discarded on arrival. A new
// Open starts with fresh state.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.tail.stop()
	logger.Debug("session_closed", "conv", s.convID)
}
