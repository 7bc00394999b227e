package payment

import (
	"context"
	"database/sql"
	"errors"
)

// Repository keeps the log of gateway notifications used to drop duplicates.
// A redelivery of a notification that was never processed is handed out
// again so a transient failure can be retried.
type Repository interface {
	SaveNotification(
		ctx context.Context,
		rec NotificationRecord,
	) (notificationID int64, isDuplicate bool, err error)

	MarkNotificationProcessed(ctx context.Context, notificationID int64) error
	MarkNotificationFailed(ctx context.Context, notificationID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveNotification(
	ctx context.Context,
	rec NotificationRecord,
) (int64, bool, error) {

	const q = `
	INSERT INTO payment_notifications (
		provider,
		transaction_id,
		transaction_status,
		order_ref,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, transaction_id, transaction_status)
	DO UPDATE SET payload = EXCLUDED.payload, signature_valid = EXCLUDED.signature_valid
	WHERE payment_notifications.processed_at IS NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(
		ctx,
		q,
		rec.Provider,
		rec.TransactionID,
		rec.TransactionStatus,
		rec.OrderRef,
		rec.SignatureValid,
		rec.Payload,
	).Scan(&id)

	if err != nil {
		// Duplicate notification → idempotent success
		if errors.Is(err, sql.ErrNoRows) {
			return 0, true, nil
		}
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkNotificationProcessed(
	ctx context.Context,
	notificationID int64,
) error {

	const q = `
	UPDATE payment_notifications
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, notificationID)
	return err
}

func (r *repository) MarkNotificationFailed(
	ctx context.Context,
	notificationID int64,
	reason string,
) error {

	const q = `
	UPDATE payment_notifications
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, notificationID, reason)
	return err
}
