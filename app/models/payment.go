package models

import "time"

// Gateway transaction statuses we act on. Settlement and capture are the
// settled states that trigger the premium upgrade; everything else is
// persisted without a role change.
const (
	TxSettlement = "settlement"
	TxCapture    = "capture"
	TxPending    = "pending"
	TxDeny       = "deny"
	TxCancel     = "cancel"
	TxExpire     = "expire"
)

// PaymentNotification is the inbound server-to-server webhook payload.
type PaymentNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	TransactionStatus string `json:"transaction_status"`
	SignatureKey      string `json:"signature_key"`
	PaymentType       string `json:"payment_type"`
}

// Transaction is the persisted webhook row, upserted by order id.
type Transaction struct {
	OrderID           string    `json:"order_id"`
	TransactionStatus string    `json:"transaction_status"`
	StatusCode        string    `json:"status_code"`
	GrossAmount       string    `json:"gross_amount"`
	PaymentType       string    `json:"payment_type"`
	SignatureKey      string    `json:"signature_key"`
	Raw               []byte    `json:"raw"`
	ReceivedAt        time.Time `json:"received_at"`
}

// PaymentIntent is the outbound create-transaction request to the gateway.
type PaymentIntent struct {
	OrderID     string `json:"order_id"`
	Description string `json:"description"`
	UserID      string `json:"user_id"`
}

// PaymentIntentResponse carries the gateway redirect for the paying user.
type PaymentIntentResponse struct {
	RedirectURL string `json:"redirect_url"`
}
