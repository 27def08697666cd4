// Package feed carries presentation events from the session core to
// whatever renders them: the terminal chat, the SSE stream, tests.
package feed

import (
	"sync"
	"time"

	"github.com/zulandar/coinchat/internal/session"
)

// Kind names an event type.
type Kind string

const (
	KindMessage            Kind = "message"
	KindLoading            Kind = "loading"
	KindBalance            Kind = "balance"
	KindPurchasePrompt     Kind = "purchase_prompt"
	KindError              Kind = "error"
	KindPersistenceWarning Kind = "persistence_warning"
)

// Event is one presentation update. Fields not relevant to Kind are zero.
type Event struct {
	Kind     Kind             `json:"kind"`
	ThreadID string           `json:"thread_id,omitempty"`
	Message  *session.Message `json:"message,omitempty"`
	Loading  bool             `json:"loading,omitempty"`
	Currency string           `json:"currency,omitempty"`
	Balance  int64            `json:"balance,omitempty"`
	Text     string           `json:"text,omitempty"`
	// Replay marks messages re-sent from history rather than new ones.
	Replay bool      `json:"replay,omitempty"`
	At     time.Time `json:"at"`
}

// Handler receives events. It runs on the publishing goroutine and must not
// publish to the same hub.
type Handler func(Event)

// Hub fans events out to subscribers synchronously, in publish order.
type Hub struct {
	pubMu sync.Mutex // serializes delivery

	mu     sync.Mutex
	subs   []*Subscription
	closed bool
	now    func() time.Time
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{now: time.Now}
}

// Subscription is a registered handler. Close it to stop delivery.
type Subscription struct {
	hub  *Hub
	fn   Handler
	once sync.Once
}

// Subscribe registers fn. On a closed hub the returned subscription is
// already inactive.
func (h *Hub) Subscribe(fn Handler) *Subscription {
	sub := &Subscription{hub: h, fn: fn}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.subs = append(h.subs, sub)
	}
	return sub
}

// Close deregisters the subscription. Once Close returns, fn receives no
// further events unless it is the one currently being delivered to.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of active subscriptions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close releases every subscription. Later publishes are dropped.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = nil
}

// Publish delivers e to every subscriber. A zero At is stamped with the
// current time.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = h.now()
	}
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	subs := make([]*Subscription, len(h.subs))
	copy(subs, h.subs)
	h.mu.Unlock()

	for _, s := range subs {
		s.fn(e)
	}
}

// Message publishes a new or replayed message.
func (h *Hub) Message(m session.Message, replay bool) {
	h.Publish(Event{Kind: KindMessage, ThreadID: m.ThreadID, Message: &m, Replay: replay})
}

// Loading toggles the loading indicator of a thread.
func (h *Hub) Loading(threadID string, on bool) {
	h.Publish(Event{Kind: KindLoading, ThreadID: threadID, Loading: on})
}

// BalanceChanged implements billing.Notifier.
func (h *Hub) BalanceChanged(currency string, balance int64) {
	h.Publish(Event{Kind: KindBalance, Currency: currency, Balance: balance})
}

// PurchasePrompt asks the user to acquire currency.
func (h *Hub) PurchasePrompt(threadID, text string) {
	h.Publish(Event{Kind: KindPurchasePrompt, ThreadID: threadID, Text: text})
}

// Error reports a retryable failure.
func (h *Hub) Error(threadID, text string) {
	h.Publish(Event{Kind: KindError, ThreadID: threadID, Text: text})
}

// PersistenceWarning reports that history may not survive a restart.
func (h *Hub) PersistenceWarning(text string) {
	h.Publish(Event{Kind: KindPersistenceWarning, Text: text})
}

// Recorder is a Handler that keeps every event, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Handle records e.
func (r *Recorder) Handle(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}
