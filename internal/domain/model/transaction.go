package model

import "time"

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusSuccess   TransactionStatus = "success"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed,
		TransactionStatusCancelled, TransactionStatusRefunded:
		return true
	}
	return false
}

// CanAdvance reports whether a transaction may move from one status to another.
// A terminal transaction never goes back to pending and success is final.
func CanAdvance(from, to TransactionStatus) bool {
	switch {
	case !to.Valid():
		return false
	case from == TransactionStatusSuccess:
		return to == TransactionStatusSuccess
	default:
		return !(from != TransactionStatusPending && to == TransactionStatusPending)
	}
}

// PaymentContext is the original request input captured when the order was
// opened, needed later to resume issuance from a callback.
type PaymentContext struct {
	ProductType CodeKind `json:"productType"`
	Email       string   `json:"email"`
	NameCompany string   `json:"nameCompany"`
	NationalID  string   `json:"cccd"`
}

// Transaction is one payment attempt, keyed by the caller-chosen order id.
type Transaction struct {
	ID           string
	OrderID      string
	UserID       *string
	CodeID       *string // set at most once
	Amount       int64
	Currency     string
	Gateway      string
	Status       TransactionStatus
	GatewayTxnID *string
	ResultCode   *string
	Message      *string
	Context      PaymentContext
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CallbackReceived is true once any callback moved the order out of pending.
func (t *Transaction) CallbackReceived() bool {
	return t.Status != TransactionStatusPending
}

func (t *Transaction) HasCode() bool { return t.CodeID != nil && *t.CodeID != "" }

// ProductKind defaults to premium, the only product sold through the gateway.
func (t *Transaction) ProductKind() CodeKind {
	if t.Context.ProductType.Valid() {
		return t.Context.ProductType
	}
	return CodeKindPremium
}

// CallbackUpdate carries the optional fields a callback may fill in.
// Nil fields are left untouched.
type CallbackUpdate struct {
	GatewayTxnID *string
	ResultCode   *string
	Message      *string
}
