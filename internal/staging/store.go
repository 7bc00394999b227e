package staging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"npcshop-be/internal/payment"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/tracking"

	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "npc"
	outcomePrefix     = "outcome"
	saveAddressPrefix = "save_address"
	quotePrefix       = "quote"
	trackingPrefix    = "tracking"
	notifiedPrefix    = "notified"
	defaultTTL        = 24 * time.Hour
	trackingRecordTTL = 10 * time.Minute
	notifiedMarkerTTL = 30 * 24 * time.Hour
	errNotInitialized = "staging store not initialized"
)

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	GetDel(context.Context, string) *redis.StringCmd
	SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd
	Del(context.Context, ...string) *redis.IntCmd
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Store keeps short-lived per-user state between requests: the last payment
// widget result, the save-address choice made at checkout, shipping quotes,
// tracking records and the delivered-notification markers.
type Store struct {
	store cmdable
	raw   *redis.Client
	ttl   time.Duration
}

// New connects to Redis and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	raw := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return newStore(raw, raw, cfg.TTL), nil
}

func newStore(c cmdable, raw *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{store: c, raw: raw, ttl: ttl}
}

// ----------------- Payment outcome -----------------

func (s *Store) SaveOutcome(ctx context.Context, userID int64, outcome payment.PaymentOutcome) error {
	return s.setJSON(ctx, s.outcomeKey(userID), outcome, s.ttl)
}

// LoadOutcome returns nil, nil when nothing is staged for the user.
func (s *Store) LoadOutcome(ctx context.Context, userID int64) (*payment.PaymentOutcome, error) {
	var out payment.PaymentOutcome
	found, err := s.getJSON(ctx, s.outcomeKey(userID), &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ClearOutcome(ctx context.Context, userID int64) error {
	return s.Del(ctx, s.outcomeKey(userID))
}

// ----------------- Save-address preference -----------------

func (s *Store) StageSaveAddress(ctx context.Context, orderNumber string) error {
	if s.store == nil {
		return errors.New(errNotInitialized)
	}
	return s.store.Set(ctx, s.saveAddressKey(orderNumber), "1", s.ttl).Err()
}

// TakeSaveAddress reports whether the customer asked to keep the address used
// for orderNumber and forgets the choice.
func (s *Store) TakeSaveAddress(ctx context.Context, orderNumber string) (bool, error) {
	if s.store == nil {
		return false, errors.New(errNotInitialized)
	}
	v, err := s.store.GetDel(ctx, s.saveAddressKey(orderNumber)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// ----------------- Shipping quotes -----------------

func (s *Store) SaveQuote(ctx context.Context, userID int64, q shipping.Quote) error {
	return s.setJSON(ctx, s.quoteKey(userID, q.DestinationPostal, q.WeightGrams), q, s.ttl)
}

func (s *Store) LoadQuote(ctx context.Context, userID int64, postal string, weightGrams int) (*shipping.Quote, error) {
	var q shipping.Quote
	found, err := s.getJSON(ctx, s.quoteKey(userID, postal, weightGrams), &q)
	if err != nil || !found {
		return nil, err
	}
	return &q, nil
}

// ----------------- Tracking -----------------

func (s *Store) SaveTrackingRecord(ctx context.Context, rec tracking.Record) error {
	return s.setJSON(ctx, s.trackingKey(rec.TrackingNumber), rec, trackingRecordTTL)
}

func (s *Store) LoadTrackingRecord(ctx context.Context, trackingNumber string) (*tracking.Record, error) {
	var rec tracking.Record
	found, err := s.getJSON(ctx, s.trackingKey(trackingNumber), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// MarkNotified sets the delivered marker for trackingNumber and reports
// whether this call was the one that set it.
func (s *Store) MarkNotified(ctx context.Context, trackingNumber string) (bool, error) {
	if s.store == nil {
		return false, errors.New(errNotInitialized)
	}
	return s.store.SetNX(ctx, s.notifiedKey(trackingNumber), "1", notifiedMarkerTTL).Result()
}

func (s *Store) ReleaseNotified(ctx context.Context, trackingNumber string) error {
	return s.Del(ctx, s.notifiedKey(trackingNumber))
}

// ----------------- Plumbing -----------------

func (s *Store) Del(ctx context.Context, keys ...string) error {
	if s.store == nil {
		return errors.New(errNotInitialized)
	}
	return s.store.Del(ctx, keys...).Err()
}

func (s *Store) Ping(ctx context.Context) error {
	if s.store == nil {
		return errors.New(errNotInitialized)
	}
	return s.store.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s.raw == nil {
		return nil
	}
	return s.raw.Close()
}

func (s *Store) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if s.store == nil {
		return errors.New(errNotInitialized)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.store.Set(ctx, key, string(b), ttl).Err()
}

func (s *Store) getJSON(ctx context.Context, key string, v any) (bool, error) {
	if s.store == nil {
		return false, errors.New(errNotInitialized)
	}
	raw, err := s.store.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) outcomeKey(userID int64) string {
	return buildKey(outcomePrefix, strconv.FormatInt(userID, 10))
}

func (s *Store) saveAddressKey(orderNumber string) string {
	return buildKey(saveAddressPrefix, orderNumber)
}

func (s *Store) quoteKey(userID int64, postal string, weightGrams int) string {
	return buildKey(quotePrefix, strconv.FormatInt(userID, 10), postal, strconv.Itoa(weightGrams))
}

func (s *Store) trackingKey(trackingNumber string) string {
	return buildKey(trackingPrefix, strings.ToUpper(trackingNumber))
}

func (s *Store) notifiedKey(trackingNumber string) string {
	return buildKey(notifiedPrefix, strings.ToUpper(trackingNumber))
}

func buildKey(parts ...string) string {
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
