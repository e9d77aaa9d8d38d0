package payment

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"activation-code-service/internal/domain/ports/adapter"

	"github.com/oklog/ulid/v2"
)

var _ adapter.PaymentGateway = (*NoopPaymentGateway)(nil)

// NoopPaymentGateway accepts every payment request and returns a link back to
// the local redirect callback, so a whole purchase can be exercised without MoMo.
type NoopPaymentGateway struct {
	mu          sync.Mutex
	redirectURL string
	orders      map[string]int64 // order id -> amount
}

func NewNoopPaymentGateway(redirectURL string) *NoopPaymentGateway {
	return &NoopPaymentGateway{redirectURL: redirectURL, orders: make(map[string]int64)}
}

// Name reports momo so orders opened in dev look like real ones.
func (g *NoopPaymentGateway) Name() string { return "momo" }

func (g *NoopPaymentGateway) NewOrderID() string { return "NOOP" + ulid.Make().String() }

func (g *NoopPaymentGateway) CreatePayment(ctx context.Context, req adapter.PaymentRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, dup := g.orders[req.OrderID]; dup {
		return "", fmt.Errorf("noop: order %s already requested", req.OrderID)
	}
	g.orders[req.OrderID] = req.Amount

	q := url.Values{}
	q.Set("orderId", req.OrderID)
	q.Set("resultCode", "0")
	q.Set("amount", fmt.Sprint(req.Amount))
	q.Set("transId", "NOOP")
	q.Set("message", "Successful.")
	return g.redirectURL + "?" + q.Encode(), nil
}

func (g *NoopPaymentGateway) VerifyCallback(fields map[string]string, signature string) bool {
	return true
}
