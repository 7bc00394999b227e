package recovery

import (
	"npcshop-be/internal/order"
)

type State string

const (
	StateResolved   State = "resolved"
	StateUnresolved State = "unresolved"
)

const unresolvedMessage = "Order details are unavailable. Please contact support with your transaction id."

type Result struct {
	State         State        `json:"state"`
	Order         *order.Order `json:"order,omitempty"`
	NeedsPayment  bool         `json:"needsPayment"`
	Fallback      bool         `json:"fallback"`
	TransactionID string       `json:"transactionId,omitempty"`
	Message       string       `json:"message,omitempty"`
}

func resolved(o *order.Order, fallback bool) *Result {
	return &Result{
		State:        StateResolved,
		Order:        o,
		NeedsPayment: o.PaymentStatus != order.PaymentPaid,
		Fallback:     fallback,
	}
}

func unresolved(transactionID string) *Result {
	return &Result{
		State:         StateUnresolved,
		TransactionID: transactionID,
		Message:       unresolvedMessage,
	}
}
