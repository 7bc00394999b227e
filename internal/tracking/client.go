package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"npcshop-be/internal/logger"

	"go.uber.org/zap"
)

type Config struct {
	APIKey      string
	BaseURL     string
	FallbackURL string
	Couriers    []string
}

type Client struct {
	apiKey      string
	baseURL     string
	fallbackURL string
	couriers    []string
	httpClient  *http.Client
	now         func() time.Time
}

func NewClient(cfg Config) *Client {
	return &Client{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		fallbackURL: strings.TrimRight(cfg.FallbackURL, "/"),
		couriers:    cfg.Couriers,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

type trackResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Summary struct {
			AWB     string `json:"awb"`
			Courier string `json:"courier"`
			Service string `json:"service"`
			Status  string `json:"status"`
		} `json:"summary"`
		History []struct {
			Date     string `json:"date"`
			Desc     string `json:"desc"`
			Location string `json:"location"`
		} `json:"history"`
	} `json:"data"`
}

var errNotFound = errors.New("awb not found")

// Track looks the shipment up at the primary courier API. Without a courier
// hint every configured courier is tried in turn. When the primary source
// cannot answer, the secondary source is asked and the record is marked
// Fallback.
func (c *Client) Track(ctx context.Context, trackingNumber, courierHint string) (*Record, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "client"),
		zap.String("method", "Track"),
		zap.String("tracking_number", trackingNumber),
		zap.String("courier_hint", courierHint),
	)

	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, ErrMissingTrackingNumber
	}

	couriers := c.couriers
	if hint := strings.ToLower(strings.TrimSpace(courierHint)); hint != "" {
		couriers = []string{hint}
	}

	unavailable := false
	for _, courier := range couriers {
		rec, err := c.fetch(ctx, c.primaryURL(courier, trackingNumber), courier)
		if err == nil {
			rec.TrackingNumber = trackingNumber
			return rec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, errNotFound) {
			unavailable = true
			log.Warn("primary tracking failed", zap.String("courier", courier), zap.Error(err))
		}
	}

	if c.fallbackURL != "" {
		for _, courier := range couriers {
			rec, err := c.fetch(ctx, c.secondaryURL(courier, trackingNumber), courier)
			if err == nil {
				log.Info("tracking served by fallback source", zap.String("courier", courier))
				rec.TrackingNumber = trackingNumber
				rec.Fallback = true
				return rec, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !errors.Is(err, errNotFound) {
				unavailable = true
			}
		}
	}

	if unavailable {
		return nil, ErrTrackingUnavailable
	}
	return nil, ErrShipmentNotFound
}

func (c *Client) primaryURL(courier, awb string) string {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("courier", courier)
	q.Set("awb", awb)
	return c.baseURL + "/v1/track?" + q.Encode()
}

func (c *Client) secondaryURL(courier, awb string) string {
	q := url.Values{}
	q.Set("courier", courier)
	q.Set("awb", awb)
	return c.fallbackURL + "/track?" + q.Encode()
}

func (c *Client) fetch(ctx context.Context, endpoint, courier string) (*Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest:
		return nil, fmt.Errorf("tracking status %d", resp.StatusCode)
	}

	var parsed trackResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode tracking response: %w", err)
	}
	// the aggregator answers unknown airway bills with status 400 in the body
	if parsed.Status == http.StatusBadRequest || resp.StatusCode == http.StatusBadRequest {
		return nil, errNotFound
	}
	if parsed.Status != http.StatusOK {
		return nil, fmt.Errorf("tracking api: %s", parsed.Message)
	}

	sum := parsed.Data.Summary
	rec := &Record{
		Courier:   strings.ToLower(courier),
		Service:   sum.Service,
		Status:    NormalizeStatus(sum.Status),
		RawStatus: sum.Status,
		FetchedAt: c.now(),
	}
	for _, h := range parsed.Data.History {
		rec.Events = append(rec.Events, Event{
			Time:        parseEventTime(h.Date),
			Description: h.Desc,
			Location:    h.Location,
		})
	}
	sort.SliceStable(rec.Events, func(i, j int) bool {
		return rec.Events[i].Time.Before(rec.Events[j].Time)
	})
	return rec, nil
}

var eventLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
}

// jakarta is WIB; courier timestamps carry no zone.
var jakarta = time.FixedZone("WIB", 7*60*60)

func parseEventTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range eventLayouts {
		if t, err := time.ParseInLocation(layout, s, jakarta); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NormalizeStatus maps courier wording onto the record statuses.
func NormalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "":
		return StatusUnknown
	case strings.Contains(s, "RETUR"):
		return StatusReturned
	case strings.Contains(s, "UNDELIVER"), strings.Contains(s, "GAGAL"):
		return StatusInTransit
	case strings.Contains(s, "DELIVERED"), strings.Contains(s, "DITERIMA"), s == "POD", s == "SUCCESS":
		return StatusDelivered
	case strings.Contains(s, "PROCESS"), strings.Contains(s, "TRANSIT"),
		strings.Contains(s, "MANIFEST"), strings.Contains(s, "PICK"),
		strings.Contains(s, "DELIVERY"), strings.Contains(s, "DIKIRIM"),
		strings.Contains(s, "SHIPPED"):
		return StatusInTransit
	}
	return StatusUnknown
}
