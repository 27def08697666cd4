package session

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zulandar/coinchat/internal/kvstore"
	"go.uber.org/zap"
)

// KeyPrefix namespaces session blobs in the key-value store.
const KeyPrefix = "coinchat/session/"

// Key returns the storage key of userID's session state.
func Key(userID string) string {
	return KeyPrefix + userID
}

// StoreOpts configures a Store.
type StoreOpts struct {
	KV     kvstore.Store
	UserID string
	Bounds Bounds // zero value selects DefaultBounds
	Logger *zap.Logger

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Store owns one user's SessionState: the thread registry and every
// thread's message log. Every mutation is written to the key-value store
// before it returns.
type Store struct {
	kv     kvstore.Store
	key    string
	bounds Bounds
	log    *zap.Logger
	now    func() time.Time
	newID  func() string

	mu    sync.Mutex
	state State
	// lastThreadAt orders thread creation even when the wall clock stalls.
	lastThreadAt time.Time
}

// NewStore returns a Store holding an empty state. Nothing is read from KV.
func NewStore(opts StoreOpts) (*Store, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("session: store: kv is required")
	}
	if opts.UserID == "" {
		return nil, fmt.Errorf("session: store: user id is required")
	}
	b := opts.Bounds.orDefault()
	if b.Min < 1 || b.Max < b.Min {
		return nil, fmt.Errorf("session: store: invalid bounds %d..%d", b.Min, b.Max)
	}
	s := &Store{
		kv:     opts.KV,
		key:    Key(opts.UserID),
		bounds: b,
		log:    opts.Logger,
		now:    opts.Now,
		newID:  opts.NewID,
		state:  State{Threads: make(map[string]Thread)},
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Load returns a Store restored from the blob saved under the user's key,
// or an empty Store when none exists.
func Load(ctx context.Context, opts StoreOpts) (*Store, error) {
	s, err := NewStore(opts)
	if err != nil {
		return nil, err
	}
	blob, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w: %w", s.key, ErrPersistence, err)
	}
	if !ok {
		s.log.Debug("no saved session", zap.String("key", s.key))
		return s, nil
	}
	state, err := Decode([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", s.key, err)
	}
	s.state = state
	for _, t := range state.Threads {
		if t.CreatedAt.After(s.lastThreadAt) {
			s.lastThreadAt = t.CreatedAt
		}
	}
	s.log.Debug("session loaded",
		zap.String("key", s.key),
		zap.Int("threads", len(state.Threads)),
		zap.String("active_thread", state.ActiveThreadID),
	)
	return s, nil
}

// Bounds returns the content bounds applied to user messages.
func (s *Store) Bounds() Bounds {
	return s.bounds
}

// Append adds a message to the end of threadID. User content must be
// within the store's bounds; assistant content must be non-empty.
//
// When the state cannot be saved the appended message is still returned,
// together with an error wrapping ErrPersistence.
func (s *Store) Append(ctx context.Context, threadID string, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("session: append: %w: unknown role %q", ErrInvalidContent, role)
	}
	if role == RoleUser {
		if err := s.bounds.Check(content); err != nil {
			return Message{}, fmt.Errorf("session: append: %w", err)
		}
	} else if content == "" {
		return Message{}, fmt.Errorf("session: append: %w: empty %s message", ErrInvalidContent, role)
	} else if !utf8.ValidString(content) {
		return Message{}, fmt.Errorf("session: append: %w: %s message is not valid UTF-8", ErrInvalidContent, role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.Threads[threadID]
	if !ok {
		return Message{}, fmt.Errorf("session: append to %q: %w", threadID, ErrInvalidThread)
	}

	at := s.now()
	if last, ok := t.last(); ok && at.Before(last.CreatedAt) {
		at = last.CreatedAt
	}
	msg := Message{
		ID:        s.newID(),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: at,
		Seq:       len(t.Messages) + 1,
	}
	t.Messages = append(t.Messages, msg)
	s.state.Threads[threadID] = t

	return msg, s.saveLocked(ctx, "append")
}

// History returns a copy of threadID's messages in append order.
func (s *Store) History(threadID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.Threads[threadID]
	if !ok {
		return nil, fmt.Errorf("session: history of %q: %w", threadID, ErrUnknownThread)
	}
	return t.clone().Messages, nil
}

// Clear drops every message of threadID. The thread itself is kept.
func (s *Store) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.Threads[threadID]
	if !ok {
		return fmt.Errorf("session: clear %q: %w", threadID, ErrUnknownThread)
	}
	t.Messages = []Message{}
	s.state.Threads[threadID] = t
	return s.saveLocked(ctx, "clear")
}

// CreateThread adds an empty thread and makes it active.
func (s *Store) CreateThread(ctx context.Context) (Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.createLocked()
	return t.clone(), s.saveLocked(ctx, "create thread")
}

func (s *Store) createLocked() Thread {
	at := s.now()
	if at.Before(s.lastThreadAt) {
		at = s.lastThreadAt
	}
	s.lastThreadAt = at

	t := Thread{ID: s.newID(), CreatedAt: at, Messages: []Message{}}
	s.state.Threads[t.ID] = t
	s.state.ActiveThreadID = t.ID
	s.log.Info("thread created", zap.String("thread_id", t.ID))
	return t
}

// EnsureThread returns the active thread, creating one when the session has
// none. created reports whether a thread was created.
func (s *Store) EnsureThread(ctx context.Context) (t Thread, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active, ok := s.state.Threads[s.state.ActiveThreadID]; ok {
		return active.clone(), false, nil
	}
	t = s.createLocked()
	return t.clone(), true, s.saveLocked(ctx, "create thread")
}

// SwitchTo makes threadID active. Switching to the active thread does not
// write to the store.
func (s *Store) SwitchTo(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Threads[threadID]; !ok {
		return fmt.Errorf("session: switch to %q: %w", threadID, ErrUnknownThread)
	}
	if s.state.ActiveThreadID == threadID {
		return nil
	}
	s.state.ActiveThreadID = threadID
	return s.saveLocked(ctx, "switch thread")
}

// DeleteThread removes threadID and its messages. When it was active the
// earliest remaining thread becomes active.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.Threads[threadID]; !ok {
		return fmt.Errorf("session: delete %q: %w", threadID, ErrUnknownThread)
	}
	delete(s.state.Threads, threadID)
	if s.state.ActiveThreadID == threadID {
		s.state.ActiveThreadID = ""
		if ids := orderedIDs(s.state.Threads); len(ids) > 0 {
			s.state.ActiveThreadID = ids[0]
		}
	}
	s.log.Info("thread deleted", zap.String("thread_id", threadID))
	return s.saveLocked(ctx, "delete thread")
}

// ActiveThread returns a copy of the active thread. ok is false only when
// the session has no threads.
func (s *Store) ActiveThread() (Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.state.Threads[s.state.ActiveThreadID]
	if !ok {
		return Thread{}, false
	}
	return t.clone(), true
}

// HasThread reports whether threadID exists.
func (s *Store) HasThread(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.state.Threads[threadID]
	return ok
}

// ListThreads returns summaries ordered by creation time, oldest first.
func (s *Store) ListThreads() []ThreadSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := orderedIDs(s.state.Threads)
	out := make([]ThreadSummary, 0, len(ids))
	for _, id := range ids {
		t := s.state.Threads[id]
		out = append(out, ThreadSummary{
			ID:           t.ID,
			CreatedAt:    t.CreatedAt,
			MessageCount: len(t.Messages),
			Active:       id == s.state.ActiveThreadID,
		})
	}
	return out
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() State {
	out := State{ActiveThreadID: s.state.ActiveThreadID, Threads: make(map[string]Thread, len(s.state.Threads))}
	for id, t := range s.state.Threads {
		out.Threads[id] = t.clone()
	}
	return out
}

// Save writes the current state to the store.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx, "save")
}

// saveLocked persists the state. s.mu must be held so saves land in
// mutation order.
func (s *Store) saveLocked(ctx context.Context, op string) error {
	data, err := Encode(s.state)
	if err != nil {
		return fmt.Errorf("session: %s: %w: %w", op, ErrPersistence, err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.log.Warn("session state not saved",
			zap.String("op", op),
			zap.String("key", s.key),
			zap.Error(err),
		)
		return fmt.Errorf("session: %s: %w: %w", op, ErrPersistence, err)
	}
	return nil
}
