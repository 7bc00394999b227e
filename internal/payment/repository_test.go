package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_SaveNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()
	rec := NotificationRecord{
		Provider:          ProviderMidtrans,
		TransactionID:     "tx-1",
		TransactionStatus: "settlement",
		OrderRef:          "NPC-1",
		SignatureValid:    true,
		Payload:           []byte(`{"order_id":"NPC-1"}`),
	}

	t.Run("Inserted", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payment_notifications .* ON CONFLICT \(provider, transaction_id, transaction_status\) DO UPDATE .* WHERE payment_notifications.processed_at IS NULL RETURNING id`).
			WithArgs(ProviderMidtrans, "tx-1", "settlement", "NPC-1", true, []byte(`{"order_id":"NPC-1"}`)).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))

		id, dup, err := repo.SaveNotification(ctx, rec)
		require.NoError(t, err)
		assert.False(t, dup)
		assert.Equal(t, int64(5), id)
	})

	t.Run("Duplicate", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payment_notifications`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		id, dup, err := repo.SaveNotification(ctx, rec)
		require.NoError(t, err)
		assert.True(t, dup)
		assert.Zero(t, id)
	})

	t.Run("DBError", func(t *testing.T) {
		mock.ExpectQuery(`INSERT INTO payment_notifications`).
			WillReturnError(errors.New("db error"))

		_, dup, err := repo.SaveNotification(ctx, rec)
		assert.Error(t, err)
		assert.False(t, dup)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_MarkNotification(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	ctx := context.Background()

	mock.ExpectExec(`UPDATE payment_notifications SET processed_at = now\(\)`).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkNotificationProcessed(ctx, 5))

	mock.ExpectExec(`UPDATE payment_notifications SET process_error = \$2`).
		WithArgs(int64(6), "order not found").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkNotificationFailed(ctx, 6, "order not found"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
