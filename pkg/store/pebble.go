package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"trellis/pkg/logger"
	"trellis/pkg/models"
	"trellis/pkg/telemetry"
	"trellis/pkg/utils"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is a Pebble-backed append-only conversation log.
type Store struct {
	db   *pebble.DB
	path string
	// seq breaks key collisions when appends share a nanosecond timestamp
	// and provides the createdAt tie-break ordering.
	seq   uint64
	tails *tailRegistry
}

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Info("opening_pebble_db", "path", path)
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return nil, err
	}
	logger.Info("pebble_opened", "path", path)
	return &Store{db: db, path: path, tails: newTailRegistry()}, nil
}

// Close closes the database and cancels all tail subscriptions.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.tails.closeAll()
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Info("pebble_closed", "path", s.path)
	return nil
}

// Ready reports whether the store is opened and usable.
func (s *Store) Ready() bool {
	return s != nil && s.db != nil
}

// Append assigns an id, timestamp, and sequence to draft and writes it to
// the conversation log. The stored message is returned and delivered to all
// live tail subscribers of the conversation.
func (s *Store) Append(ctx context.Context, convID string, draft models.Message) (models.Message, error) {
	if !s.Ready() {
		return models.Message{}, fmt.Errorf("store: not open")
	}
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}

	msg := draft
	msg.Conv = convID
	msg.Provisional = false
	msg.FailedSend = false
	if msg.ID == "" {
		msg.ID = utils.GenMessageID()
	}
	msg.CreatedAt = time.Now().UTC().UnixNano()
	msg.Seq = atomic.AddUint64(&s.seq, 1)

	key, err := MsgKey(convID, msg.CreatedAt, msg.Seq)
	if err != nil {
		return models.Message{}, err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("marshal message: %w", err)
	}

	batch := s.db.NewBatch()
	_ = batch.Set(key, data, nil)
	_ = batch.Set(latestMsgKey(msg.ID), data, nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("append_message_failed", "conv", convID, "key", string(key), "error", err)
		return models.Message{}, err
	}
	telemetry.StoreAppends.Inc()
	logger.Debug("message_appended", "conv", convID, "id", msg.ID)

	s.tails.notify(convID, msg)
	return msg, nil
}

// ReadBackward reads up to limit messages older than cursor, newest-first.
// An empty cursor starts from the newest entry. nextCursor addresses the
// oldest returned entry; exhausted is set when the page came back short.
func (s *Store) ReadBackward(ctx context.Context, convID, cursor string, limit int) ([]models.Message, string, bool, error) {
	if !s.Ready() {
		return nil, "", false, fmt.Errorf("store: not open")
	}
	if err := ctx.Err(); err != nil {
		return nil, "", false, err
	}
	if limit <= 0 {
		return nil, cursor, true, nil
	}

	prefix := msgPrefix(convID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, "", false, err
	}
	defer iter.Close()

	// Position just past the window: before the cursor key, or past the whole
	// prefix when starting fresh.
	var ok bool
	if cursor == "" {
		upper := append(append([]byte(nil), prefix...), 0xff)
		ok = iter.SeekLT(upper)
	} else {
		ok = iter.SeekLT([]byte(cursor))
	}

	var out []models.Message
	nextCursor := cursor
	for ; ok && len(out) < limit; ok = iter.Prev() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			logger.Error("read_backward_bad_record", "conv", convID, "key", string(iter.Key()), "error", err)
			continue
		}
		out = append(out, m)
		nextCursor = string(iter.Key())
	}
	if err := iter.Error(); err != nil {
		return nil, "", false, err
	}
	telemetry.StorePageReads.Inc()
	return out, nextCursor, len(out) < limit, nil
}

// SubscribeLatest registers a live tail for convID delivering messages
// appended after the call, in arrival order. The window hint sizes the
// delivery buffer. Cancel the subscription via the returned func or ctx.
func (s *Store) SubscribeLatest(ctx context.Context, convID string, window int) (<-chan models.Message, func()) {
	return s.tails.subscribe(ctx, convID, window)
}

// GetMessage returns the latest version of a message by id.
func (s *Store) GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	if !s.Ready() {
		return m, fmt.Errorf("store: not open")
	}
	v, closer, err := s.db.Get(latestMsgKey(msgID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return m, ErrNotFound
		}
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// UpdateMessage rewrites a message's log entry in place (same key, so the
// log order is untouched) and appends a version row recording the previous
// latest state. Used for edits and reaction changes.
func (s *Store) UpdateMessage(msg models.Message) error {
	if !s.Ready() {
		return fmt.Errorf("store: not open")
	}
	if msg.ID == "" || msg.Conv == "" || msg.CreatedAt == 0 {
		return fmt.Errorf("store: message missing identity fields")
	}
	key, err := MsgKey(msg.Conv, msg.CreatedAt, msg.Seq)
	if err != nil {
		return err
	}
	// Record the superseded version before overwriting.
	prev, perr := s.GetMessage(msg.ID)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	batch := s.db.NewBatch()
	if perr == nil {
		pb, _ := json.Marshal(prev)
		vseq := atomic.AddUint64(&s.seq, 1)
		_ = batch.Set(versionKey(msg.ID, time.Now().UTC().UnixNano(), vseq), pb, nil)
	}
	_ = batch.Set(key, data, nil)
	_ = batch.Set(latestMsgKey(msg.ID), data, nil)
	if err := batch.Commit(pebble.Sync); err != nil {
		logger.Error("update_message_failed", "conv", msg.Conv, "id", msg.ID, "error", err)
		return err
	}
	logger.Debug("message_updated", "conv", msg.Conv, "id", msg.ID)
	return nil
}

// ListMessageVersions returns superseded versions of a message in
// chronological order.
func (s *Store) ListMessageVersions(msgID string) ([]models.Message, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("store: not open")
	}
	prefix := []byte("version:msg:" + msgID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Message
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, iter.Error()
}

// SaveConversation stores the conversation record.
func (s *Store) SaveConversation(conv models.Conversation) error {
	if !s.Ready() {
		return fmt.Errorf("store: not open")
	}
	if conv.ID == "" {
		return fmt.Errorf("store: conversation missing id")
	}
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	if err := s.db.Set(convMetaKey(conv.ID), data, pebble.Sync); err != nil {
		logger.Error("save_conversation_failed", "conv", conv.ID, "error", err)
		return err
	}
	logger.Debug("conversation_saved", "conv", conv.ID)
	return nil
}

// GetConversation returns the conversation record for the given id.
func (s *Store) GetConversation(convID string) (models.Conversation, error) {
	var c models.Conversation
	if !s.Ready() {
		return c, fmt.Errorf("store: not open")
	}
	v, closer, err := s.db.Get(convMetaKey(convID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return c, ErrNotFound
		}
		return c, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &c); err != nil {
		return c, fmt.Errorf("invalid stored conversation: %w", err)
	}
	return c, nil
}

// ListConversations returns all conversation records.
func (s *Store) ListConversations() ([]models.Conversation, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("store: not open")
	}
	prefix := []byte("conv:")
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.Conversation
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		if !bytes.HasSuffix(k, []byte(":meta")) {
			continue
		}
		var c models.Conversation
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			continue
		}
		out = append(out, c)
	}
	return out, iter.Error()
}

// SaveJoinRequest persists a join-request row.
func (s *Store) SaveJoinRequest(req models.JoinRequest) error {
	if !s.Ready() {
		return fmt.Errorf("store: not open")
	}
	if req.ID == "" || req.Conv == "" || req.User == "" {
		return fmt.Errorf("store: join request missing identity fields")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}
	if err := s.db.Set(joinReqKey(req.Conv, req.User, req.ID), data, pebble.Sync); err != nil {
		logger.Error("save_join_request_failed", "conv", req.Conv, "user", req.User, "error", err)
		return err
	}
	return nil
}

// ListJoinRequests returns all join-request rows for a conversation,
// oldest-first. When userID is non-empty only that user's rows are returned.
func (s *Store) ListJoinRequests(convID, userID string) ([]models.JoinRequest, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("store: not open")
	}
	prefix := joinReqPrefix(convID, userID)
	iter, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []models.JoinRequest
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var r models.JoinRequest
		if err := json.Unmarshal(iter.Value(), &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, iter.Error()
}

// PendingJoinRequest returns the pending row for (convID, userID), or
// ErrNotFound. Row ids are ULIDs so the last matching row is the newest.
func (s *Store) PendingJoinRequest(convID, userID string) (models.JoinRequest, error) {
	rows, err := s.ListJoinRequests(convID, userID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Status == models.JoinPending {
			return rows[i], nil
		}
	}
	return models.JoinRequest{}, ErrNotFound
}

// LatestJoinRequest returns the most recent row for (convID, userID)
// regardless of status, or ErrNotFound.
func (s *Store) LatestJoinRequest(convID, userID string) (models.JoinRequest, error) {
	rows, err := s.ListJoinRequests(convID, userID)
	if err != nil {
		return models.JoinRequest{}, err
	}
	if len(rows) == 0 {
		return models.JoinRequest{}, ErrNotFound
	}
	return rows[len(rows)-1], nil
}
