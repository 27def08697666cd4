// Package exchange runs the request/response lifecycle between a user
// message and the remote completion service, charging for delivered
// replies only.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zulandar/coinchat/internal/billing"
	"github.com/zulandar/coinchat/internal/session"
	"go.uber.org/zap"
)

// RetryMessage is shown when a remote call fails.
const RetryMessage = "Something went wrong while contacting the assistant. Please try again."

// State is a thread's position in the exchange lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingReply
	StateDelivered
	StateRejected
	StateFailed
)

var stateNames = map[State]string{
	StateIdle:          "idle",
	StateSending:       "sending",
	StateAwaitingReply: "awaiting_reply",
	StateDelivered:     "delivered",
	StateRejected:      "rejected",
	StateFailed:        "failed",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Outcome is the terminal state of one Send.
type Outcome int

const (
	OutcomeDelivered Outcome = iota + 1
	OutcomeRejected
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result describes a completed Send.
type Result struct {
	Outcome Outcome
	// Err classifies a Rejected or Failed outcome: billing.ErrInsufficientFunds,
	// ErrEconomyRejection or ErrTransport.
	Err              error
	UserMessage      *session.Message
	AssistantMessage *session.Message
	// Prompt is the purchase prompt shown instead of a reply.
	Prompt string
	// PersistErr is set when a message was kept in memory but not saved.
	PersistErr error
	// BillingErr is set when the ledger could not be read or debited.
	BillingErr error
}

// MessageStore is the part of session.Store the controller uses.
type MessageStore interface {
	Append(ctx context.Context, threadID string, role session.Role, content string) (session.Message, error)
	History(threadID string) ([]session.Message, error)
	HasThread(threadID string) bool
	Bounds() session.Bounds
}

// Feed receives presentation events.
type Feed interface {
	Message(m session.Message, replay bool)
	Loading(threadID string, on bool)
	PurchasePrompt(threadID, text string)
	Error(threadID, text string)
	PersistenceWarning(text string)
}

// ControllerOpts configures a Controller.
type ControllerOpts struct {
	Store     MessageStore
	Gate      *billing.Gate
	Completer Completer
	Feed      Feed
	Logger    *zap.Logger
	// PurchasePrompt overrides billing.PurchasePrompt.
	PurchasePrompt string
}

// Controller drives Send for every thread of a session. Different threads
// may be driven concurrently; a thread has at most one request
// outstanding.
type Controller struct {
	store     MessageStore
	gate      *billing.Gate
	completer Completer
	feed      Feed
	log       *zap.Logger
	prompt    string

	mu     sync.Mutex
	states map[string]State
}

// NewController validates opts and returns a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("exchange: controller: store is required")
	}
	if opts.Gate == nil {
		return nil, fmt.Errorf("exchange: controller: gate is required")
	}
	if opts.Completer == nil {
		return nil, fmt.Errorf("exchange: controller: completer is required")
	}
	if opts.Feed == nil {
		return nil, fmt.Errorf("exchange: controller: feed is required")
	}
	c := &Controller{
		store:     opts.Store,
		gate:      opts.Gate,
		completer: opts.Completer,
		feed:      opts.Feed,
		log:       opts.Logger,
		prompt:    opts.PurchasePrompt,
		states:    make(map[string]State),
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	if c.prompt == "" {
		c.prompt = billing.PurchasePrompt
	}
	return c, nil
}

// State returns threadID's current state. Threads never sent to are idle.
func (c *Controller) State(threadID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[threadID]
}

func (c *Controller) setState(threadID string, s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == StateIdle {
		delete(c.states, threadID)
		return
	}
	c.states[threadID] = s
}

// acquire moves an idle thread to Sending.
func (c *Controller) acquire(threadID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states[threadID] != StateIdle {
		return false
	}
	c.states[threadID] = StateSending
	return true
}

// Send posts text to threadID and waits for the reply.
//
// Content and thread errors (session.ErrInvalidContent,
// session.ErrInvalidThread, ErrRequestInFlight) are returned as errors
// with no state change. Every other condition, including insufficient
// funds and transport failures, is reported through Result.
func (c *Controller) Send(ctx context.Context, threadID, text string) (Result, error) {
	if err := c.store.Bounds().Check(text); err != nil {
		return Result{}, fmt.Errorf("exchange: send: %w", err)
	}
	if !c.store.HasThread(threadID) {
		return Result{}, fmt.Errorf("exchange: send to %q: %w", threadID, session.ErrInvalidThread)
	}
	if !c.acquire(threadID) {
		return Result{}, fmt.Errorf("exchange: send to %q: %w", threadID, ErrRequestInFlight)
	}
	defer c.setState(threadID, StateIdle)

	log := c.log.With(zap.String("thread_id", threadID))

	res, err := c.gate.Reserve(ctx)
	if errors.Is(err, billing.ErrInsufficientFunds) {
		c.setState(threadID, StateRejected)
		log.Info("send rejected locally", zap.Error(err))
		c.feed.PurchasePrompt(threadID, c.prompt)
		return Result{Outcome: OutcomeRejected, Err: err, Prompt: c.prompt}, nil
	}
	if err != nil {
		c.setState(threadID, StateFailed)
		log.Error("balance check failed", zap.Error(err))
		c.feed.Error(threadID, RetryMessage)
		return Result{Outcome: OutcomeFailed, Err: err, BillingErr: err}, nil
	}

	history, err := c.store.History(threadID)
	if err != nil {
		c.release(ctx, res, log)
		return Result{}, fmt.Errorf("exchange: send to %q: %w", threadID, session.ErrInvalidThread)
	}

	var result Result
	userMsg, err := c.store.Append(ctx, threadID, session.RoleUser, text)
	switch {
	case errors.Is(err, session.ErrPersistence):
		result.PersistErr = err
		c.feed.PersistenceWarning(err.Error())
	case err != nil:
		c.release(ctx, res, log)
		return Result{}, fmt.Errorf("exchange: send: %w", err)
	}
	result.UserMessage = &userMsg
	c.feed.Message(userMsg, false)

	c.setState(threadID, StateAwaitingReply)
	c.feed.Loading(threadID, true)
	reply, err := c.completer.Complete(ctx, Request{ThreadID: threadID, History: history, Text: text})
	c.feed.Loading(threadID, false)

	// Once the remote call has returned, the reply is stored and charged
	// even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	reply = strings.ToValidUTF8(reply, "\uFFFD")

	if err == nil && strings.Contains(reply, EconomySentinel) {
		err = fmt.Errorf("%w: reply carried %s", ErrEconomyRejection, EconomySentinel)
	}
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("%w: empty reply", ErrTransport)
	}

	switch {
	case errors.Is(err, ErrEconomyRejection):
		c.setState(threadID, StateRejected)
		st, serr := c.gate.Settle(ctx, res, billing.OutcomeInsufficientFunds)
		if serr != nil {
			result.BillingErr = serr
			log.Error("settle failed", zap.Error(serr))
		}
		result.Outcome = OutcomeRejected
		result.Err = fmt.Errorf("exchange: %w: %w", err, billing.ErrInsufficientFunds)
		if st.PromptPurchase || serr != nil {
			result.Prompt = c.prompt
			c.feed.PurchasePrompt(threadID, c.prompt)
		}
		log.Info("send rejected by remote service")
		return result, nil

	case err != nil:
		c.setState(threadID, StateFailed)
		c.release(ctx, res, log)
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("exchange: %w", err)
		log.Warn("completion failed", zap.Error(err))
		c.feed.Error(threadID, RetryMessage)
		return result, nil
	}

	assistantMsg, err := c.store.Append(ctx, threadID, session.RoleAssistant, reply)
	switch {
	case errors.Is(err, session.ErrPersistence):
		if result.PersistErr == nil {
			result.PersistErr = err
		}
		c.feed.PersistenceWarning(err.Error())
	case err != nil:
		// The thread went away while the call was outstanding.
		c.setState(threadID, StateFailed)
		c.release(ctx, res, log)
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("exchange: %w", err)
		log.Warn("reply dropped", zap.Error(err))
		c.feed.Error(threadID, RetryMessage)
		return result, nil
	}

	c.setState(threadID, StateDelivered)
	result.Outcome = OutcomeDelivered
	result.AssistantMessage = &assistantMsg

	// The charge lands before the reply is published.
	if _, err := c.gate.Settle(ctx, res, billing.OutcomeSuccess); err != nil {
		result.BillingErr = err
		log.Error("charge failed after delivery", zap.Error(err))
	}
	c.feed.Message(assistantMsg, false)
	log.Debug("reply delivered", zap.String("message_id", assistantMsg.ID))
	return result, nil
}

// release settles a reservation without charging.
func (c *Controller) release(ctx context.Context, res *billing.Reservation, log *zap.Logger) {
	if _, err := c.gate.Settle(ctx, res, billing.OutcomeTransportFailure); err != nil {
		log.Error("release reservation", zap.Error(err))
	}
}
