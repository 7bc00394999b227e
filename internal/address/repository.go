package address

import (
	"context"
	"database/sql"
	"errors"

	"npcshop-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	// PersistAddress saves addr to the user's address book unless an identical
	// active entry exists. The first address of a user becomes the default.
	PersistAddress(ctx context.Context, userID int64, addr Address) (*Address, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) PersistAddress(
	ctx context.Context,
	userID int64,
	addr Address,
) (*Address, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Address"),
		zap.String("method", "PersistAddress"),
		zap.Int64("user_id", userID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const findQ = `
		SELECT id, is_default
		FROM addresses
		WHERE user_id = $1
		  AND is_active = true
		  AND address_line1 = $2
		  AND postal_code = $3
		  AND phone = $4
		LIMIT 1
	`

	var (
		existingID uuid.UUID
		isDefault  bool
	)
	err = tx.QueryRowContext(ctx, findQ, userID, addr.Address1, addr.Postal, addr.Phone).
		Scan(&existingID, &isDefault)
	switch {
	case err == nil:
		log.Debug("address already saved", zap.String("address_id", existingID.String()))
		addr.ID = existingID
		addr.UserID = userID
		addr.IsDefault = isDefault
		addr.IsActive = true
		return &addr, nil
	case !errors.Is(err, sql.ErrNoRows):
		log.Error("lookup failed", zap.Error(err))
		return nil, err
	}

	var hasDefault bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM addresses
			WHERE user_id = $1 AND is_default = true AND is_active = true
		)
	`, userID).Scan(&hasDefault); err != nil {
		log.Error("default lookup failed", zap.Error(err))
		return nil, err
	}

	addr.ID = uuid.New()
	addr.UserID = userID
	addr.IsActive = true
	addr.IsDefault = !hasDefault
	if addr.Country == "" {
		addr.Country = "ID"
	}

	const insertQ = `
		INSERT INTO addresses (
			id, user_id,
			name, phone,
			address_line1,
			city, province, postal_code, country,
			is_default, is_active
		) VALUES (
			$1, $2,
			$3, $4,
			$5,
			$6, $7, $8, $9,
			$10, $11
		)
	`

	_, err = tx.ExecContext(
		ctx, insertQ,
		addr.ID, addr.UserID,
		addr.Name, addr.Phone,
		addr.Address1,
		addr.City, addr.Province, addr.Postal, addr.Country,
		addr.IsDefault, addr.IsActive,
	)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		log.Error("commit failed", zap.Error(err))
		return nil, err
	}
	committed = true

	log.Info("address saved",
		zap.String("address_id", addr.ID.String()),
		zap.Bool("is_default", addr.IsDefault),
	)
	return &addr, nil
}
