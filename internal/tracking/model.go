package tracking

import "time"

const (
	StatusUnknown   = "UNKNOWN"
	StatusInTransit = "IN_TRANSIT"
	StatusDelivered = "DELIVERED"
	StatusReturned  = "RETURNED"
)

type Event struct {
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
}

// Record is the normalized view of a shipment. Events are ordered oldest first.
type Record struct {
	TrackingNumber string    `json:"trackingNumber"`
	Courier        string    `json:"courier"`
	Service        string    `json:"service,omitempty"`
	Status         string    `json:"status"`
	RawStatus      string    `json:"rawStatus"`
	Events         []Event   `json:"events"`
	Fallback       bool      `json:"fallback"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

func (r *Record) Delivered() bool {
	return r.Status == StatusDelivered
}
