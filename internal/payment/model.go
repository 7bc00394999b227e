package payment

import (
	"time"
)

const (
	ProviderMidtrans = "MIDTRANS"

	// Synthetic breakdown lines so the gateway's item list sums to the charged amount.
	ItemShippingFee = "SHIPPING_FEE"
	ItemDiscount    = "DISCOUNT"
)

// GatewayItem is one line of the breakdown sent to the gateway. Price may be
// negative for the discount line.
type GatewayItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type TokenRequest struct {
	OrderRef string
	Amount   int64
	Items    []GatewayItem
	Customer Customer
}

type Token struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

// TransactionStatus is the gateway's authoritative view of a charge.
type TransactionStatus struct {
	OrderRef          string
	TransactionID     string
	StatusCode        string
	TransactionStatus string
	FraudStatus       string
	GrossAmount       int64
	PaymentType       string
	Bank              string
	Store             string
	PaymentCode       string
	TransactionTime   string
}

// Notification is the server-to-server message the gateway posts on every
// status change.
type Notification struct {
	OrderID           string     `json:"order_id"`
	TransactionID     string     `json:"transaction_id"`
	StatusCode        string     `json:"status_code"`
	GrossAmount       string     `json:"gross_amount"`
	SignatureKey      string     `json:"signature_key"`
	TransactionStatus string     `json:"transaction_status"`
	FraudStatus       string     `json:"fraud_status"`
	PaymentType       string     `json:"payment_type"`
	TransactionTime   string     `json:"transaction_time"`
	VANumbers         []VANumber `json:"va_numbers"`
	PermataVANumber   string     `json:"permata_va_number"`
	Store             string     `json:"store"`
	PaymentCode       string     `json:"payment_code"`
	BillKey           string     `json:"bill_key"`
	BillerCode        string     `json:"biller_code"`
}

type VANumber struct {
	Bank     string `json:"bank"`
	VANumber string `json:"va_number"`
}

// PaymentOutcome is the raw result the storefront widget reported, staged so
// it survives a reload between the gateway redirect and confirmation.
type PaymentOutcome struct {
	TransactionID     string        `json:"transactionId"`
	OrderRef          string        `json:"orderRef"`
	StatusCode        string        `json:"statusCode"`
	TransactionStatus string        `json:"transactionStatus"`
	FraudStatus       string        `json:"fraudStatus,omitempty"`
	GrossAmount       int64         `json:"grossAmount"`
	PaymentType       string        `json:"paymentType"`
	Bank              string        `json:"bank,omitempty"`
	Store             string        `json:"store,omitempty"`
	PaymentCode       string        `json:"paymentCode,omitempty"`
	Items             []GatewayItem `json:"items,omitempty"`
	ReceivedAt        time.Time     `json:"receivedAt"`
}

// NotificationRecord is a row of the payment_notifications log.
type NotificationRecord struct {
	ID                int64
	Provider          string
	TransactionID     string
	TransactionStatus string
	OrderRef          string
	SignatureValid    bool
	Payload           []byte
	ProcessedAt       *time.Time
	ProcessError      *string
	CreatedAt         time.Time
}
