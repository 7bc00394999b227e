package order

import (
	"fmt"
	"strings"
)

// Trigger identifies who asked for a transition.
type Trigger string

const (
	TriggerAdmin    Trigger = "admin"
	TriggerPayment  Trigger = "payment"
	TriggerCustomer Trigger = "customer"
	TriggerTracking Trigger = "tracking"
	// TriggerReconcile retires a draft whose payment was recorded on another order.
	TriggerReconcile Trigger = "reconcile"
)

// Change is a requested status transition together with the fields that must
// be written atomically with it.
type Change struct {
	To             OrderStatus
	Trigger        Trigger
	TrackingNumber *string
	TransactionID  *string
	PaymentMethod  *string
}

// transitions lists, per source status, the reachable targets and the
// triggers allowed to request them. refunded is handled separately.
var transitions = map[OrderStatus]map[OrderStatus][]Trigger{
	StatusDraft: {
		StatusProcessing: {TriggerPayment, TriggerAdmin},
		StatusCancelled:  {TriggerPayment, TriggerCustomer, TriggerAdmin, TriggerReconcile},
	},
	StatusProcessing: {
		StatusShipped:   {TriggerAdmin},
		StatusCancelled: {TriggerAdmin},
	},
	StatusShipped: {
		StatusDelivered: {TriggerCustomer, TriggerTracking, TriggerAdmin},
	},
}

// TransitionError reports a rejected transition. It matches
// ErrInvalidTransition and, when set, the violated guard.
type TransitionError struct {
	From  OrderStatus
	To    OrderStatus
	Cause error
}

func (e *TransitionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid status transition %s -> %s: %v", e.From, e.To, e.Cause)
}

func (e *TransitionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidTransition}
	}
	return []error{ErrInvalidTransition, e.Cause}
}

func reject(o *Order, to OrderStatus, cause error) error {
	return &TransitionError{From: o.Status, To: to, Cause: cause}
}

func allowed(triggers []Trigger, t Trigger) bool {
	for _, candidate := range triggers {
		if candidate == t {
			return true
		}
	}
	return false
}

// Plan validates c against the current state of o and returns the columns to
// write. o is not modified.
func Plan(o *Order, c Change) (Patch, error) {
	if !c.To.Valid() {
		return Patch{}, reject(o, c.To, fmt.Errorf("unknown status %q", c.To))
	}
	if o.Status.IsTerminal() {
		return Patch{}, reject(o, c.To, ErrTerminalStatus)
	}

	patch := Patch{Status: c.To}

	if c.To == StatusRefunded {
		if c.Trigger != TriggerAdmin {
			return Patch{}, reject(o, c.To, ErrTriggerNotAllowed)
		}
		if o.PaymentStatus == PaymentPaid {
			patch.PaymentStatus = paymentPtr(PaymentRefunded)
		}
		return patch, nil
	}

	triggers, ok := transitions[o.Status][c.To]
	if !ok {
		return Patch{}, reject(o, c.To, nil)
	}
	if !allowed(triggers, c.Trigger) {
		return Patch{}, reject(o, c.To, ErrTriggerNotAllowed)
	}

	switch c.To {
	case StatusProcessing:
		patch.PaymentStatus = paymentPtr(PaymentPaid)
		patch.TransactionID = c.TransactionID
		patch.PaymentMethod = c.PaymentMethod

	case StatusShipped:
		if c.TrackingNumber == nil || strings.TrimSpace(*c.TrackingNumber) == "" {
			return Patch{}, reject(o, c.To, ErrTrackingNumberRequired)
		}
		tn := strings.TrimSpace(*c.TrackingNumber)
		patch.TrackingNumber = &tn

	case StatusDelivered:
		if o.PaymentStatus != PaymentPaid {
			patch.PaymentStatus = paymentPtr(PaymentPaid)
		}

	case StatusCancelled:
		if o.TrackingNumber != nil && *o.TrackingNumber != "" {
			return Patch{}, reject(o, c.To, ErrShipmentDispatched)
		}
		if c.Trigger == TriggerPayment {
			patch.PaymentStatus = paymentPtr(PaymentFailed)
		}
	}

	return patch, nil
}

// Apply writes p onto o.
func (p Patch) Apply(o *Order) {
	o.Status = p.Status
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.PaymentMethod != nil {
		o.PaymentMethod = *p.PaymentMethod
	}
	if p.TrackingNumber != nil {
		tn := *p.TrackingNumber
		o.TrackingNumber = &tn
	}
	if p.TransactionID != nil {
		tx := *p.TransactionID
		o.TransactionID = &tx
	}
}

func paymentPtr(s PaymentStatus) *PaymentStatus {
	return &s
}
