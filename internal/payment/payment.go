// Package payment implements the two-phase payment protocol against the
// external gateway.
//
// Phase 1 creates an order on the gateway and registers a single-use payment
// intent keyed by the gateway's order id. Phase 2 verifies the gateway
// callback signature, consumes the intent exactly once, and extends the
// tenant's paid period. The money itself moves inside the gateway, outside
// this system's transactional boundary, which is why both phases exist.
package payment

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrInvalidMonths      = errors.New("payment: months must be positive")
	ErrAmountMismatch     = errors.New("payment: amount does not match months * monthly price")
	ErrVerificationFailed = errors.New("payment: callback signature verification failed")
	ErrReplayOrUnknown    = errors.New("payment: order unknown or already consumed")
	ErrGatewayTimeout     = errors.New("payment: gateway timed out")
	ErrGatewayUnavailable = errors.New("payment: gateway request failed")
)

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentPending  IntentStatus = "pending"
	IntentConsumed IntentStatus = "consumed"
)

// Intent bridges order creation and the verified callback. It is consumed
// exactly once; a second callback for the same order must not apply credit.
type Intent struct {
	OrderID    string       `json:"order_id"`
	TenantID   string       `json:"tenant_id"`
	Months     int          `json:"months"`
	Amount     int64        `json:"amount"`
	Status     IntentStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	ConsumedAt *time.Time   `json:"consumed_at,omitempty"`
}

// IntentStore persists payment intents. Consume is the idempotency gate: the
// pending→consumed transition must be atomic relative to concurrent attempts
// for the same order id.
type IntentStore interface {
	Create(ctx context.Context, in *Intent) error
	Get(ctx context.Context, orderID string) (*Intent, error)
	Consume(ctx context.Context, orderID string, at time.Time) (*Intent, error)
	ListPending(ctx context.Context, limit int) ([]*Intent, error)
}
