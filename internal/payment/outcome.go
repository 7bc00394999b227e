package payment

import (
	"strings"
)

// Class is the coarse meaning of a raw gateway status.
type Class int

const (
	ClassUnknown Class = iota
	ClassSuccess
	ClassPending
	ClassFailure
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassPending:
		return "pending"
	case ClassFailure:
		return "failure"
	}
	return "unknown"
}

// Classify maps the gateway's (status_code, transaction_status, fraud_status)
// triple onto a Class. Refund and chargeback statuses are ClassUnknown.
func Classify(statusCode, transactionStatus, fraudStatus string) Class {
	fraud := strings.ToLower(fraudStatus)

	switch strings.ToLower(transactionStatus) {
	case "capture":
		switch fraud {
		case "", "accept":
			return ClassSuccess
		case "challenge":
			return ClassPending
		default:
			return ClassFailure
		}
	case "settlement":
		return ClassSuccess
	case "pending":
		return ClassPending
	case "deny", "expire", "cancel", "failure":
		return ClassFailure
	case "":
		switch statusCode {
		case "200":
			return ClassSuccess
		case "201":
			return ClassPending
		case "202", "400", "406", "407", "500":
			return ClassFailure
		}
	}
	return ClassUnknown
}

// Outcome is one of Success, Pending, Failure or Abort.
type Outcome interface {
	Kind() string
	isOutcome()
}

type Success struct {
	TransactionID string
	Method        string
	GrossAmount   int64
}

type Pending struct {
	TransactionID string
	Method        string
	PaymentCode   string
	GrossAmount   int64
}

type Failure struct {
	TransactionID string
	Status        string
}

// Abort means the customer left the payment UI without a result.
type Abort struct {
	Reason string
}

func (Success) Kind() string { return "success" }
func (Pending) Kind() string { return "pending" }
func (Failure) Kind() string { return "failure" }
func (Abort) Kind() string   { return "abort" }

func (Success) isOutcome() {}
func (Pending) isOutcome() {}
func (Failure) isOutcome() {}
func (Abort) isOutcome()   {}

type rawResult struct {
	statusCode        string
	transactionStatus string
	fraudStatus       string
	transactionID     string
	paymentType       string
	bank              string
	store             string
	paymentCode       string
	grossAmount       int64
}

func (r rawResult) outcome() Outcome {
	method := NormalizeMethod(r.paymentType, r.bank, r.store)

	switch Classify(r.statusCode, r.transactionStatus, r.fraudStatus) {
	case ClassSuccess:
		return Success{TransactionID: r.transactionID, Method: method, GrossAmount: r.grossAmount}
	case ClassPending:
		return Pending{TransactionID: r.transactionID, Method: method, PaymentCode: r.paymentCode, GrossAmount: r.grossAmount}
	case ClassFailure:
		return Failure{TransactionID: r.transactionID, Status: strings.ToLower(r.transactionStatus)}
	}
	return Abort{Reason: "unhandled transaction status " + r.transactionStatus}
}

func OutcomeFromStatus(s *TransactionStatus) Outcome {
	return rawResult{
		statusCode:        s.StatusCode,
		transactionStatus: s.TransactionStatus,
		fraudStatus:       s.FraudStatus,
		transactionID:     s.TransactionID,
		paymentType:       s.PaymentType,
		bank:              s.Bank,
		store:             s.Store,
		paymentCode:       s.PaymentCode,
		grossAmount:       s.GrossAmount,
	}.outcome()
}

func OutcomeFromNotification(n Notification, grossAmount int64) Outcome {
	bank, code := "", n.PaymentCode
	switch {
	case len(n.VANumbers) > 0:
		bank, code = n.VANumbers[0].Bank, n.VANumbers[0].VANumber
	case n.PermataVANumber != "":
		bank, code = "permata", n.PermataVANumber
	case n.BillKey != "":
		code = n.BillKey
	}
	return rawResult{
		statusCode:        n.StatusCode,
		transactionStatus: n.TransactionStatus,
		fraudStatus:       n.FraudStatus,
		transactionID:     n.TransactionID,
		paymentType:       n.PaymentType,
		bank:              bank,
		store:             n.Store,
		paymentCode:       code,
		grossAmount:       grossAmount,
	}.outcome()
}

// Outcome classifies the staged widget result.
func (p PaymentOutcome) Outcome() Outcome {
	return rawResult{
		statusCode:        p.StatusCode,
		transactionStatus: p.TransactionStatus,
		fraudStatus:       p.FraudStatus,
		transactionID:     p.TransactionID,
		paymentType:       p.PaymentType,
		bank:              p.Bank,
		store:             p.Store,
		paymentCode:       p.PaymentCode,
		grossAmount:       p.GrossAmount,
	}.outcome()
}

// IsSuccess reports whether the staged result claims a completed charge.
func (p PaymentOutcome) IsSuccess() bool {
	return Classify(p.StatusCode, p.TransactionStatus, p.FraudStatus) == ClassSuccess
}

// NormalizeMethod turns the gateway's payment_type (plus bank or store) into
// the method code stored on the order.
func NormalizeMethod(paymentType, bank, store string) string {
	switch strings.ToLower(paymentType) {
	case "bank_transfer":
		if bank == "" {
			return "BANK_TRANSFER"
		}
		return strings.ToUpper(bank) + "_VA"
	case "echannel":
		return MethodMandiriBill
	case "gopay":
		return MethodGoPay
	case "qris":
		return MethodQRIS
	case "credit_card":
		return MethodCreditCard
	case "shopeepay":
		return MethodShopeePay
	case "cstore":
		switch strings.ToLower(store) {
		case "indomaret":
			return MethodIndomaret
		case "alfamart":
			return MethodAlfamart
		case "":
			return "CSTORE"
		}
		return strings.ToUpper(store)
	}
	return strings.ToUpper(paymentType)
}
