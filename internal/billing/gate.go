// Package billing meters user messages against a virtual-currency balance.
// A message is charged only after the remote service has produced a
// reply; failed and rejected exchanges cost nothing.
package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var (
	// ErrInsufficientFunds is returned when the balance cannot cover the
	// cost of a message.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySettled is returned when a reservation is settled twice.
	ErrAlreadySettled = errors.New("reservation already settled")
)

// PurchasePrompt is shown instead of a reply when the user runs out of
// currency.
const PurchasePrompt = "It looks like you have run out of coins. Coins are needed to send messages and can be obtained by inviting friends, viewing ads or buying them."

// Ledger is the external currency balance.
type Ledger interface {
	Balance(ctx context.Context, currency string) (int64, error)
	// Debit subtracts amount and returns the new balance. It fails with
	// ErrInsufficientFunds rather than going negative.
	Debit(ctx context.Context, currency string, amount int64) (int64, error)
}

// Notifier receives balance changes made by the gate.
type Notifier interface {
	BalanceChanged(currency string, balance int64)
}

// Outcome is the result of an exchange, as far as billing is concerned.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeInsufficientFunds
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeInsufficientFunds:
		return "insufficient_funds"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// LedgerSnapshot is a point-in-time view of the balance.
type LedgerSnapshot struct {
	Currency       string `json:"currency"`
	Balance        int64  `json:"balance"`
	CostPerMessage int64  `json:"cost_per_message"`
}

// Reservation is the token returned by Reserve. It is settled at most once.
type Reservation struct {
	balance int64 // balance seen by the pre-check
	settled bool
}

// Settlement describes what Settle did.
type Settlement struct {
	Outcome Outcome
	Debited int64
	Balance int64
	// PromptPurchase asks the presentation layer to offer currency instead
	// of showing a reply.
	PromptPurchase bool
}

// GateOpts configures a Gate.
type GateOpts struct {
	Ledger   Ledger
	Currency string
	Cost     int64
	Notifier Notifier // optional
	Logger   *zap.Logger
}

// Gate enforces the pay-per-message policy.
type Gate struct {
	ledger   Ledger
	currency string
	cost     int64
	notifier Notifier
	log      *zap.Logger

	mu sync.Mutex // guards Reservation.settled
}

// NewGate returns a Gate charging opts.Cost per delivered message.
func NewGate(opts GateOpts) (*Gate, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("billing: gate: ledger is required")
	}
	if opts.Currency == "" {
		return nil, fmt.Errorf("billing: gate: currency is required")
	}
	if opts.Cost < 0 {
		return nil, fmt.Errorf("billing: gate: cost must not be negative")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		ledger:   opts.Ledger,
		currency: opts.Currency,
		cost:     opts.Cost,
		notifier: opts.Notifier,
		log:      log,
	}, nil
}

// Currency returns the currency code messages are charged in.
func (g *Gate) Currency() string { return g.currency }

// Cost returns the price of one message.
func (g *Gate) Cost() int64 { return g.cost }

// CanAfford reports whether the current balance covers one message.
func (g *Gate) CanAfford(ctx context.Context) (bool, error) {
	bal, err := g.ledger.Balance(ctx, g.currency)
	if err != nil {
		return false, fmt.Errorf("billing: balance: %w", err)
	}
	return bal >= g.cost, nil
}

// Reserve pre-checks the balance. It never changes the balance; the debit
// happens in Settle.
func (g *Gate) Reserve(ctx context.Context) (*Reservation, error) {
	bal, err := g.ledger.Balance(ctx, g.currency)
	if err != nil {
		return nil, fmt.Errorf("billing: reserve: %w", err)
	}
	if bal < g.cost {
		return nil, fmt.Errorf("billing: reserve: %w: balance %d, cost %d", ErrInsufficientFunds, bal, g.cost)
	}
	return &Reservation{balance: bal}, nil
}

// Settle closes a reservation. Only OutcomeSuccess debits the ledger.
func (g *Gate) Settle(ctx context.Context, res *Reservation, outcome Outcome) (Settlement, error) {
	if res == nil {
		return Settlement{}, fmt.Errorf("billing: settle: reservation is required")
	}
	g.mu.Lock()
	if res.settled {
		g.mu.Unlock()
		return Settlement{}, fmt.Errorf("billing: settle: %w", ErrAlreadySettled)
	}
	res.settled = true
	g.mu.Unlock()

	st := Settlement{Outcome: outcome, Balance: res.balance}
	switch outcome {
	case OutcomeSuccess:
		if g.cost == 0 {
			return st, nil
		}
		bal, err := g.ledger.Debit(ctx, g.currency, g.cost)
		if err != nil {
			g.log.Error("debit failed",
				zap.String("currency", g.currency),
				zap.Int64("cost", g.cost),
				zap.Error(err),
			)
			return st, fmt.Errorf("billing: settle: debit: %w", err)
		}
		st.Debited = g.cost
		st.Balance = bal
		g.log.Debug("message charged",
			zap.String("currency", g.currency),
			zap.Int64("cost", g.cost),
			zap.Int64("balance", bal),
		)
		if g.notifier != nil {
			g.notifier.BalanceChanged(g.currency, bal)
		}
	case OutcomeInsufficientFunds:
		st.PromptPurchase = true
	case OutcomeTransportFailure:
	default:
		return st, fmt.Errorf("billing: settle: unknown outcome %v", outcome)
	}
	return st, nil
}

// Snapshot reads the current balance.
func (g *Gate) Snapshot(ctx context.Context) (LedgerSnapshot, error) {
	bal, err := g.ledger.Balance(ctx, g.currency)
	if err != nil {
		return LedgerSnapshot{}, fmt.Errorf("billing: snapshot: %w", err)
	}
	return LedgerSnapshot{Currency: g.currency, Balance: bal, CostPerMessage: g.cost}, nil
}
