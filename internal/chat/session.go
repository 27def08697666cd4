// Package chat wires the session store, billing gate, exchange controller
// and presentation feed into one user-facing chat session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/coinchat/internal/billing"
	"github.com/zulandar/coinchat/internal/exchange"
	"github.com/zulandar/coinchat/internal/feed"
	"github.com/zulandar/coinchat/internal/kvstore"
	"github.com/zulandar/coinchat/internal/session"
	"go.uber.org/zap"
)

// Opts configures a Session.
type Opts struct {
	UserID    string
	KV        kvstore.Store
	Ledger    billing.Ledger
	Completer exchange.Completer

	Currency       string
	CostPerMessage int64
	Bounds         session.Bounds
	// WelcomeMessage is posted by the assistant into empty threads. Empty
	// disables it.
	WelcomeMessage string
	PurchasePrompt string

	Hub    *feed.Hub // created when nil
	Logger *zap.Logger
}

// Session is one user's chat. It is safe for concurrent use.
type Session struct {
	userID  string
	store   *session.Store
	gate    *billing.Gate
	ctl     *exchange.Controller
	hub     *feed.Hub
	welcome string
	log     *zap.Logger
}

// Open restores the user's saved session, making sure there is an active
// thread, and greets the user when that thread is empty.
//
// A failure to save the restored session is reported on the feed and does
// not fail Open.
func Open(ctx context.Context, opts Opts) (*Session, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("chat: open: ledger is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("chat: open: completer is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("user_id", opts.UserID))

	hub := opts.Hub
	if hub == nil {
		hub = feed.NewHub()
	}

	store, err := session.Load(ctx, session.StoreOpts{
		KV:     opts.KV,
		UserID: opts.UserID,
		Bounds: opts.Bounds,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: open: %w", err)
	}
	gate, err := billing.NewGate(billing.GateOpts{
		Ledger:   opts.Ledger,
		Currency: opts.Currency,
		Cost:     opts.CostPerMessage,
		Notifier: hub,
		Logger:   log,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: open: %w", err)
	}
	ctl, err := exchange.NewController(exchange.ControllerOpts{
		Store:          store,
		Gate:           gate,
		Completer:      opts.Completer,
		Feed:           hub,
		Logger:         log,
		PurchasePrompt: opts.PurchasePrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: open: %w", err)
	}

	s := &Session{
		userID:  opts.UserID,
		store:   store,
		gate:    gate,
		ctl:     ctl,
		hub:     hub,
		welcome: opts.WelcomeMessage,
		log:     log,
	}

	th, created, err := store.EnsureThread(ctx)
	if err != nil {
		s.warn(err)
	}
	if created {
		log.Info("first thread created", zap.String("thread_id", th.ID))
	}
	if len(th.Messages) == 0 {
		s.greet(ctx, th.ID)
	}
	return s, nil
}

// Hub returns the presentation feed of the session.
func (s *Session) Hub() *feed.Hub { return s.hub }

// UserID returns the user the session belongs to.
func (s *Session) UserID() string { return s.userID }

// Bounds returns the accepted length of user messages.
func (s *Session) Bounds() session.Bounds { return s.store.Bounds() }

// greet posts the welcome message into threadID.
func (s *Session) greet(ctx context.Context, threadID string) {
	if s.welcome == "" {
		return
	}
	_, err := s.store.Append(ctx, threadID, session.RoleAssistant, s.welcome)
	if err != nil {
		s.warn(err)
	}
}

func (s *Session) warn(err error) {
	if errors.Is(err, session.ErrPersistence) {
		s.hub.PersistenceWarning(err.Error())
	}
	s.log.Warn("session", zap.Error(err))
}

// Normalize strips line breaks from user input.
func Normalize(text string) string {
	return strings.NewReplacer("\r\n", "", "\n", "", "\r", "").Replace(text)
}

// Submit sends text to the active thread.
func (s *Session) Submit(ctx context.Context, text string) (exchange.Result, error) {
	th, ok := s.store.ActiveThread()
	if !ok {
		return exchange.Result{}, fmt.Errorf("chat: submit: %w", session.ErrInvalidThread)
	}
	return s.ctl.Send(ctx, th.ID, Normalize(text))
}

// SendTo sends text to a specific thread.
func (s *Session) SendTo(ctx context.Context, threadID, text string) (exchange.Result, error) {
	return s.ctl.Send(ctx, threadID, Normalize(text))
}

// State returns the exchange state of threadID.
func (s *Session) State(threadID string) exchange.State {
	return s.ctl.State(threadID)
}

// NewThread creates a thread, makes it active and greets the user in it.
func (s *Session) NewThread(ctx context.Context) (session.Thread, error) {
	th, err := s.store.CreateThread(ctx)
	if err != nil && !errors.Is(err, session.ErrPersistence) {
		return session.Thread{}, fmt.Errorf("chat: new thread: %w", err)
	}
	if err != nil {
		s.warn(err)
	}
	s.greet(ctx, th.ID)
	th, _ = s.store.ActiveThread()
	return th, nil
}

// Switch makes threadID active and replays it to the feed.
func (s *Session) Switch(ctx context.Context, threadID string) error {
	err := s.store.SwitchTo(ctx, threadID)
	if errors.Is(err, session.ErrPersistence) {
		s.warn(err)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("chat: switch: %w", err)
	}
	return s.Replay(ctx)
}

// DeleteThread removes threadID. Deleting the last thread starts a fresh
// one so the session always has an active thread.
func (s *Session) DeleteThread(ctx context.Context, threadID string) error {
	if s.ctl.State(threadID) != exchange.StateIdle {
		return fmt.Errorf("chat: delete thread %q: %w", threadID, exchange.ErrRequestInFlight)
	}
	err := s.store.DeleteThread(ctx, threadID)
	if errors.Is(err, session.ErrPersistence) {
		s.warn(err)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("chat: delete thread: %w", err)
	}
	th, created, err := s.store.EnsureThread(ctx)
	if err != nil {
		s.warn(err)
	}
	if created {
		s.greet(ctx, th.ID)
	}
	return nil
}

// ActiveThread returns the active thread.
func (s *Session) ActiveThread() (session.Thread, bool) {
	return s.store.ActiveThread()
}

// Threads lists every thread, oldest first.
func (s *Session) Threads() []session.ThreadSummary {
	return s.store.ListThreads()
}

// History returns the messages of threadID. An empty id selects the active
// thread.
func (s *Session) History(threadID string) ([]session.Message, error) {
	if threadID == "" {
		th, ok := s.store.ActiveThread()
		if !ok {
			return nil, fmt.Errorf("chat: history: %w", session.ErrUnknownThread)
		}
		threadID = th.ID
	}
	return s.store.History(threadID)
}

// ClearHistory empties threadID, or the active thread when threadID is
// empty. The welcome message is posted again.
func (s *Session) ClearHistory(ctx context.Context, threadID string) error {
	if threadID == "" {
		th, ok := s.store.ActiveThread()
		if !ok {
			return fmt.Errorf("chat: clear: %w", session.ErrUnknownThread)
		}
		threadID = th.ID
	}
	if s.ctl.State(threadID) != exchange.StateIdle {
		return fmt.Errorf("chat: clear %q: %w", threadID, exchange.ErrRequestInFlight)
	}
	err := s.store.Clear(ctx, threadID)
	if errors.Is(err, session.ErrPersistence) {
		s.warn(err)
		err = nil
	}
	if err != nil {
		return fmt.Errorf("chat: clear: %w", err)
	}
	s.greet(ctx, threadID)
	return nil
}

// Balance reads the current balance.
func (s *Session) Balance(ctx context.Context) (billing.LedgerSnapshot, error) {
	return s.gate.Snapshot(ctx)
}

// Replay publishes the balance and the active thread's history to the feed,
// for a freshly attached presentation layer. Every subscriber receives it.
func (s *Session) Replay(ctx context.Context) error {
	for _, e := range s.ReplayEvents(ctx) {
		s.hub.Publish(e)
	}
	return nil
}

// ReplayEvents returns the events Replay would publish without publishing
// them, for a presentation layer that delivers them to one client only.
// An unreadable balance is logged and left out.
func (s *Session) ReplayEvents(ctx context.Context) []feed.Event {
	now := time.Now()
	var evs []feed.Event
	snap, err := s.gate.Snapshot(ctx)
	if err != nil {
		s.log.Warn("balance unavailable for replay", zap.Error(err))
	} else {
		evs = append(evs, feed.Event{Kind: feed.KindBalance, Currency: snap.Currency, Balance: snap.Balance, At: now})
	}
	th, ok := s.store.ActiveThread()
	if !ok {
		return evs
	}
	for _, m := range th.Messages {
		evs = append(evs, feed.Event{Kind: feed.KindMessage, ThreadID: m.ThreadID, Message: &m, Replay: true, At: now})
	}
	return evs
}

// Close releases every feed subscription.
func (s *Session) Close() {
	s.hub.Close()
}
