package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campuskit/campuskit/internal/ledger"
	"github.com/campuskit/campuskit/internal/metrics"
	"github.com/campuskit/campuskit/internal/subscription"
	"github.com/campuskit/campuskit/internal/traces"
	"github.com/campuskit/campuskit/internal/validation"
)

// Processor drives both phases of the payment protocol.
type Processor struct {
	intents  IntentStore
	gateway  Gateway
	signer   *Signer
	subs     *subscription.Service
	ledger   *ledger.Ledger
	currency string
	logger   *slog.Logger
	now      func() time.Time
}

// ProcessorOption configures the processor.
type ProcessorOption func(*Processor)

// WithClock overrides the processor clock (for tests).
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a new payment processor.
func NewProcessor(intents IntentStore, gw Gateway, signer *Signer, subs *subscription.Service,
	led *ledger.Ledger, currency string, logger *slog.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		intents:  intents,
		gateway:  gw,
		signer:   signer,
		subs:     subs,
		ledger:   led,
		currency: currency,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CreateOrder validates the requested amount against the tenant's configured
// price, registers the order with the gateway, and stores a pending intent.
// The amount check runs before any gateway call so a tampered client cannot
// buy months below the configured price. Nothing on the settings row changes
// here.
func (p *Processor) CreateOrder(ctx context.Context, tenantID string, months int, amount int64) (*Intent, error) {
	ctx, span := traces.StartSpan(ctx, "payment.CreateOrder",
		traces.TenantID(tenantID), traces.Months(months), traces.Amount(amount))
	defer span.End()

	if months <= 0 {
		return nil, ErrInvalidMonths
	}

	settings, _, err := p.subs.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if amount != int64(months)*settings.MonthlyPrice {
		metrics.PaymentOrdersTotal.WithLabelValues("amount_mismatch").Inc()
		return nil, ErrAmountMismatch
	}

	orderID, err := p.gateway.CreateOrder(ctx, amount, p.currency, tenantID)
	if err != nil {
		result := "gateway_error"
		if errors.Is(err, ErrGatewayTimeout) {
			result = "gateway_timeout"
		}
		metrics.PaymentOrdersTotal.WithLabelValues(result).Inc()
		p.logger.Warn("gateway order creation failed", "tenant", tenantID, "error", err)
		return nil, err
	}

	intent := &Intent{
		OrderID:   orderID,
		TenantID:  tenantID,
		Months:    months,
		Amount:    amount,
		Status:    IntentPending,
		CreatedAt: p.now().UTC(),
	}
	if err := p.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to store payment intent: %w", err)
	}

	metrics.PaymentOrdersTotal.WithLabelValues("created").Inc()
	p.logger.Info("payment order created",
		"tenant", tenantID, "order", orderID, "months", months, "amount", amount)
	return intent, nil
}

// VerifyAndApply processes a gateway callback. Verification fails closed:
// a bad signature or an unknown/consumed order leaves settings and ledger
// untouched and writes no trace of success. On success the paid period is
// extended after whichever is later of now and the current expiry, a PAYMENT
// ledger entry is appended, and the new state is pushed to the tenant and
// admin topics. The returned status is resolved against the processor clock
// so it always matches the settings row in the same result.
func (p *Processor) VerifyAndApply(ctx context.Context, tenantID, orderID, paymentID, signature string) (*subscription.Settings, subscription.Status, error) {
	ctx, span := traces.StartSpan(ctx, "payment.VerifyAndApply",
		traces.TenantID(tenantID), traces.OrderID(orderID))
	defer span.End()

	// Verification runs over the raw callback bytes so a legitimate
	// signature never fails on our own rewriting. Only log and ledger
	// output gets sanitized.
	logPayment := validation.SanitizeString(paymentID, 128)

	if !p.signer.Verify(orderID, paymentID, signature) {
		metrics.PaymentVerificationsTotal.WithLabelValues("signature_mismatch").Inc()
		// Security-relevant: forged or corrupted callback. Keep for manual
		// reconciliation; never credit.
		p.logger.Warn("payment callback signature mismatch",
			"tenant", tenantID, "order", orderID, "payment", logPayment)
		return nil, "", ErrVerificationFailed
	}

	intent, err := p.intents.Get(ctx, orderID)
	if err != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues("unknown_order").Inc()
		return nil, "", ErrReplayOrUnknown
	}
	if intent.TenantID != tenantID {
		metrics.PaymentVerificationsTotal.WithLabelValues("tenant_mismatch").Inc()
		p.logger.Warn("payment callback for wrong tenant",
			"tenant", tenantID, "order", orderID, "intent_tenant", intent.TenantID)
		return nil, "", ErrReplayOrUnknown
	}

	// The atomic pending→consumed transition is the idempotency gate: a
	// callback delivered twice applies the credit at most once.
	intent, err = p.intents.Consume(ctx, orderID, p.now().UTC())
	if err != nil {
		metrics.PaymentVerificationsTotal.WithLabelValues("replay").Inc()
		p.logger.Info("duplicate payment callback ignored", "tenant", tenantID, "order", orderID)
		return nil, "", ErrReplayOrUnknown
	}

	settings, err := p.subs.ExtendPaid(ctx, tenantID, intent.Months)
	if err != nil {
		// Intent is already burned; this needs manual reconciliation rather
		// than an automatic retry that could double-credit.
		metrics.PaymentVerificationsTotal.WithLabelValues("extend_failed").Inc()
		p.logger.Error("verified payment could not be applied",
			"tenant", tenantID, "order", orderID, "payment", logPayment, "error", err)
		return nil, "", err
	}

	amount := intent.Amount
	if _, err := p.ledger.Record(ctx, tenantID, ledger.ActionPayment, &amount,
		fmt.Sprintf("payment %s for order %s: %d month(s)", logPayment, orderID, intent.Months)); err != nil {
		p.logger.Error("ledger append failed after payment", "tenant", tenantID, "order", orderID, "error", err)
	}

	p.subs.Publish(tenantID, settings)

	metrics.PaymentVerificationsTotal.WithLabelValues("verified").Inc()
	p.logger.Info("payment verified and applied",
		"tenant", tenantID, "order", orderID, "payment", logPayment,
		"months", intent.Months, "amount", intent.Amount)
	return settings, subscription.Resolve(settings, p.now()), nil
}

// ListPending returns unconsumed intents for manual reconciliation.
func (p *Processor) ListPending(ctx context.Context, limit int) ([]*Intent, error) {
	if limit <= 0 {
		limit = 100
	}
	return p.intents.ListPending(ctx, limit)
}
