package shipping

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"npcshop-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type RateConfig struct {
	APIKey       string
	BaseURL      string
	OriginPostal string
	Couriers     []string
}

// RateClient asks the courier aggregator for shipping costs.
type RateClient struct {
	apiKey     string
	baseURL    string
	origin     string
	couriers   []string
	httpClient *http.Client
	now        func() time.Time
}

func NewRateClient(cfg RateConfig) *RateClient {
	return &RateClient{
		apiKey:   cfg.APIKey,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		origin:   cfg.OriginPostal,
		couriers: cfg.Couriers,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

type costResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Costs []struct {
			Code      string          `json:"code"`
			Name      string          `json:"name"`
			Service   string          `json:"service"`
			Type      string          `json:"type"`
			Price     decimal.Decimal `json:"price"`
			Estimated string          `json:"estimated"`
		} `json:"costs"`
	} `json:"data"`
}

// Rates queries every requested courier and merges their services into one
// quote. A courier that fails is skipped; the call fails only when none answer.
func (c *RateClient) Rates(ctx context.Context, req QuoteRequest) (*Quote, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "client"),
		zap.String("method", "ShippingRates"),
		zap.String("destination", req.DestinationPostal),
		zap.Int("weight_grams", req.WeightGrams),
	)

	if req.DestinationPostal == "" || req.WeightGrams <= 0 {
		return nil, ErrInvalidDestination
	}

	couriers := req.Couriers
	if len(couriers) == 0 {
		couriers = c.couriers
	}

	quote := &Quote{
		DestinationPostal: req.DestinationPostal,
		WeightGrams:       req.WeightGrams,
		FetchedAt:         c.now(),
	}

	var lastErr error
	for _, courier := range couriers {
		opts, err := c.courierRates(ctx, courier, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("courier rates failed", zap.String("courier", courier), zap.Error(err))
			lastErr = err
			continue
		}
		quote.Options = append(quote.Options, opts...)
	}

	if len(quote.Options) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrRatesUnavailable, lastErr)
		}
		return nil, ErrRatesUnavailable
	}

	log.Debug("shipping rates fetched", zap.Int("options", len(quote.Options)))
	return quote, nil
}

func (c *RateClient) courierRates(ctx context.Context, courier string, req QuoteRequest) ([]Option, error) {
	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("courier", courier)
	q.Set("origin", c.origin)
	q.Set("destination", req.DestinationPostal)
	q.Set("weight", strconv.Itoa(req.WeightGrams))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/cost?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate api status %d", resp.StatusCode)
	}

	var parsed costResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode rate response: %w", err)
	}
	if parsed.Status != 0 && parsed.Status != http.StatusOK {
		return nil, fmt.Errorf("rate api: %s", parsed.Message)
	}

	opts := make([]Option, 0, len(parsed.Data.Costs))
	for _, cost := range parsed.Data.Costs {
		if cost.Service == "" || cost.Price.IsNegative() {
			continue
		}
		code := cost.Code
		if code == "" {
			code = courier
		}
		opts = append(opts, Option{
			Courier:     strings.ToLower(code),
			Service:     cost.Service,
			Description: cost.Type,
			Fee:         cost.Price.Round(0).IntPart(),
			ETD:         cost.Estimated,
		})
	}
	return opts, nil
}
