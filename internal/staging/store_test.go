package staging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"npcshop-be/internal/payment"
	"npcshop-be/internal/shipping"
	"npcshop-be/internal/tracking"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCmdable struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mockCmdable) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.err != nil {
		return redis.NewStringResult("", m.err)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *mockCmdable) GetDel(ctx context.Context, key string) *redis.StringCmd {
	cmd := m.Get(ctx, key)
	delete(m.data, key)
	return cmd
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestStore_Outcome(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	s := newStore(mock, nil, time.Hour)

	got, err := s.LoadOutcome(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)

	outcome := payment.PaymentOutcome{
		TransactionID:     "tx-1",
		OrderRef:          "NPC-1",
		StatusCode:        "200",
		TransactionStatus: "settlement",
		GrossAmount:       215000,
		Items:             []payment.GatewayItem{{ID: "p-1", Name: "Kaos", Price: 100000, Quantity: 2}},
		ReceivedAt:        time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.SaveOutcome(ctx, 7, outcome))
	assert.Equal(t, time.Hour, mock.ttls["npc:outcome:7"])

	got, err = s.LoadOutcome(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, outcome.TransactionID, got.TransactionID)
	assert.Equal(t, outcome.Items, got.Items)
	assert.True(t, outcome.ReceivedAt.Equal(got.ReceivedAt))

	other, err := s.LoadOutcome(ctx, 8)
	require.NoError(t, err)
	assert.Nil(t, other)

	require.NoError(t, s.ClearOutcome(ctx, 7))
	got, err = s.LoadOutcome(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_SaveAddressIsTakenOnce(t *testing.T) {
	ctx := context.Background()
	s := newStore(newMockCmdable(), nil, 0)

	save, err := s.TakeSaveAddress(ctx, "NPC-1")
	require.NoError(t, err)
	assert.False(t, save)

	require.NoError(t, s.StageSaveAddress(ctx, "NPC-1"))

	save, err = s.TakeSaveAddress(ctx, "NPC-1")
	require.NoError(t, err)
	assert.True(t, save)

	save, err = s.TakeSaveAddress(ctx, "NPC-1")
	require.NoError(t, err)
	assert.False(t, save)
}

func TestStore_QuoteKeyedByDestinationAndWeight(t *testing.T) {
	ctx := context.Background()
	s := newStore(newMockCmdable(), nil, 0)

	q := shipping.Quote{
		DestinationPostal: "10110",
		WeightGrams:       1000,
		Options:           []shipping.Option{{Courier: "jne", Service: "REG", Fee: 15000}},
	}
	require.NoError(t, s.SaveQuote(ctx, 7, q))

	got, err := s.LoadQuote(ctx, 7, "10110", 1000)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, q.Options, got.Options)

	got, err = s.LoadQuote(ctx, 7, "10110", 1001)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_TrackingAndNotified(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	s := newStore(mock, nil, 0)

	rec := tracking.Record{TrackingNumber: "jp123", Courier: "jnt", Status: tracking.StatusDelivered}
	require.NoError(t, s.SaveTrackingRecord(ctx, rec))
	assert.Equal(t, trackingRecordTTL, mock.ttls["npc:tracking:JP123"])

	got, err := s.LoadTrackingRecord(ctx, "JP123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tracking.StatusDelivered, got.Status)

	first, err := s.MarkNotified(ctx, "JP123")
	require.NoError(t, err)
	assert.True(t, first)

	again, err := s.MarkNotified(ctx, "jp123")
	require.NoError(t, err)
	assert.False(t, again)

	require.NoError(t, s.ReleaseNotified(ctx, "JP123"))
	first, err = s.MarkNotified(ctx, "JP123")
	require.NoError(t, err)
	assert.True(t, first)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.err = errors.New("connection refused")
	s := newStore(mock, nil, 0)

	assert.Error(t, s.SaveOutcome(ctx, 7, payment.PaymentOutcome{}))
	_, err := s.LoadOutcome(ctx, 7)
	assert.Error(t, err)
	_, err = s.MarkNotified(ctx, "X")
	assert.Error(t, err)
	assert.Error(t, s.Ping(ctx))

	var empty Store
	assert.Error(t, empty.Ping(ctx))
	assert.NoError(t, empty.Close())
}

func TestStore_CorruptValue(t *testing.T) {
	ctx := context.Background()
	mock := newMockCmdable()
	mock.data["npc:outcome:7"] = "{not json"
	s := newStore(mock, nil, 0)

	_, err := s.LoadOutcome(ctx, 7)
	assert.Error(t, err)
}

func TestBuildKey(t *testing.T) {
	assert.Equal(t, "npc:quote:7:10110:1000", buildKey(quotePrefix, "7", "10110", "1000"))
	assert.Equal(t, "npc:outcome", buildKey(outcomePrefix, ""))
}
