package exchange

import (
	"context"
	"errors"

	"github.com/zulandar/coinchat/internal/session"
)

var (
	// ErrRequestInFlight is returned when a thread already has an
	// outstanding request.
	ErrRequestInFlight = errors.New("request in flight")

	// ErrTransport wraps remote call failures and timeouts.
	ErrTransport = errors.New("transport failure")

	// ErrEconomyRejection is returned by a Completer when the remote service
	// refused the call because the user is out of currency.
	ErrEconomyRejection = errors.New("economy rejection")
)

// EconomySentinel in a reply body marks an economy rejection by the remote
// service.
const EconomySentinel = "INSUFFICIENT_FUNDS"

// Request is one call to the remote completion service.
type Request struct {
	ThreadID string
	// History is the thread's messages before Text, oldest first.
	History []session.Message
	Text    string
}

// Completer produces the assistant reply for a request. Failures are
// transport errors unless they wrap ErrEconomyRejection.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
