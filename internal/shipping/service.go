package shipping

import (
	"context"

	"npcshop-be/internal/logger"

	"go.uber.org/zap"
)

type RateSource interface {
	Rates(ctx context.Context, req QuoteRequest) (*Quote, error)
}

// QuoteCache holds the last quote a user fetched for a destination and weight.
// LoadQuote returns nil, nil on a miss.
type QuoteCache interface {
	SaveQuote(ctx context.Context, userID int64, q Quote) error
	LoadQuote(ctx context.Context, userID int64, postal string, weightGrams int) (*Quote, error)
}

type Service interface {
	FetchQuote(ctx context.Context, userID int64, req QuoteRequest) (*Quote, error)
	Lookup(ctx context.Context, userID int64, postal string, weightGrams int, courier, service string) (Option, error)
}

type service struct {
	rates RateSource
	cache QuoteCache
}

func NewService(rates RateSource, cache QuoteCache) Service {
	return &service{rates: rates, cache: cache}
}

func (s *service) FetchQuote(ctx context.Context, userID int64, req QuoteRequest) (*Quote, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "FetchQuote"),
		zap.Int64("user_id", userID),
	)

	q, err := s.rates.Rates(ctx, req)
	if err != nil {
		log.Error("failed to fetch shipping rates", zap.Error(err))
		return nil, err
	}

	if err := s.cache.SaveQuote(ctx, userID, *q); err != nil {
		log.Error("failed to stage shipping quote", zap.Error(err))
		return nil, err
	}
	return q, nil
}

// Lookup finds the fee for a service in the quote previously fetched for the
// same destination and weight.
func (s *service) Lookup(
	ctx context.Context,
	userID int64,
	postal string,
	weightGrams int,
	courier, svc string,
) (Option, error) {
	q, err := s.cache.LoadQuote(ctx, userID, postal, weightGrams)
	if err != nil {
		return Option{}, err
	}
	if q == nil {
		return Option{}, ErrQuoteNotFound
	}

	opt, ok := q.Find(courier, svc)
	if !ok {
		return Option{}, ErrServiceNotQuoted
	}
	return opt, nil
}
