package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/campuskit/campuskit/internal/idgen"
	"github.com/campuskit/campuskit/internal/retry"
)

// Gateway creates orders on the external payment gateway.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (orderID string, err error)
}

// HTTPGateway talks to the gateway's order API over HTTP with basic auth.
type HTTPGateway struct {
	baseURL string
	keyID   string
	secret  string
	client  *http.Client
}

// NewHTTPGateway creates a gateway client with a bounded request timeout.
func NewHTTPGateway(baseURL, keyID, secret string, timeout time.Duration) *HTTPGateway {
	return &HTTPGateway{
		baseURL: baseURL,
		keyID:   keyID,
		secret:  secret,
		client:  &http.Client{Timeout: timeout},
	}
}

// Order creation is idempotent-safe: nothing local changes until the intent
// is stored, so transient connection failures are retried with backoff.
const (
	orderAttempts  = 3
	orderBaseDelay = 200 * time.Millisecond
)

// CreateOrder registers an order with the gateway and returns its order id.
// Timeouts surface as ErrGatewayTimeout so callers can distinguish a hung
// gateway from a rejecting one. Rejections (4xx) and timeouts are not
// retried; connection failures and 5xx responses are.
func (g *HTTPGateway) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	var orderID string
	err = retry.Do(ctx, orderAttempts, orderBaseDelay, func() error {
		id, err := g.createOrderOnce(ctx, body)
		if err != nil {
			return err
		}
		orderID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return orderID, nil
}

func (g *HTTPGateway) createOrderOnce(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: %v", ErrGatewayUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.keyID, g.secret)

	resp, err := g.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			// The caller already waited the full budget once.
			return "", retry.Permanent(ErrGatewayTimeout)
		}
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", retry.Permanent(fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", retry.Permanent(fmt.Errorf("%w: malformed response", ErrGatewayUnavailable))
	}
	if out.ID == "" {
		return "", retry.Permanent(fmt.Errorf("%w: response missing order id", ErrGatewayUnavailable))
	}
	return out.ID, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StubGateway mints local order ids without any network call. Used in
// development when no gateway is configured; checkout is then driven by the
// locally signed callback.
type StubGateway struct{}

func (StubGateway) CreateOrder(_ context.Context, _ int64, _, _ string) (string, error) {
	return idgen.WithPrefix("ord_"), nil
}

var (
	_ Gateway = (*HTTPGateway)(nil)
	_ Gateway = StubGateway{}
)
