package shipping

import (
	"strings"
	"time"
)

// Option is one courier service offered for a destination.
type Option struct {
	Courier     string `json:"courier"`
	Service     string `json:"service"`
	Description string `json:"description,omitempty"`
	Fee         int64  `json:"fee"`
	ETD         string `json:"etd,omitempty"`
}

// Quote is the set of options fetched for one destination and cart weight.
type Quote struct {
	DestinationPostal string    `json:"destinationPostal"`
	WeightGrams       int       `json:"weightGrams"`
	Options           []Option  `json:"options"`
	FetchedAt         time.Time `json:"fetchedAt"`
}

// Find returns the option matching courier and service, case-insensitively.
func (q *Quote) Find(courier, service string) (Option, bool) {
	for _, opt := range q.Options {
		if strings.EqualFold(opt.Courier, courier) && strings.EqualFold(opt.Service, service) {
			return opt, true
		}
	}
	return Option{}, false
}

type QuoteRequest struct {
	DestinationPostal string   `json:"destinationPostal" validate:"required,numeric,len=5"`
	WeightGrams       int      `json:"weightGrams" validate:"required,gt=0"`
	Couriers          []string `json:"couriers,omitempty"`
}
