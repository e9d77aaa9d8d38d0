package adapter

import "context"

// PaymentRequest describes a wallet payment to initiate for an already opened order.
type PaymentRequest struct {
	OrderID   string
	RequestID string
	Amount    int64
	OrderInfo string
	ExtraData string
}

// PaymentGateway is the hex port for payment providers.
type PaymentGateway interface {
	Name() string
	// NewOrderID returns a fresh provider-compatible order id.
	NewOrderID() string
	// CreatePayment asks the provider for a payment page and returns its URL.
	CreatePayment(ctx context.Context, req PaymentRequest) (payURL string, err error)
}
