package cart

import (
	"context"
	"database/sql"
	"fmt"

	"npcshop-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// RemoveItems deletes the given products from the user's cart and returns
	// how many rows went away. Products not in the cart are ignored.
	RemoveItems(ctx context.Context, userID int64, productIDs []string) (int64, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) RemoveItems(ctx context.Context, userID int64, productIDs []string) (int64, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "RemoveItems"),
		zap.Int64("user_id", userID),
		zap.Int("product_count", len(productIDs)),
	)

	if userID <= 0 {
		return 0, ErrUserNotAuthenticated
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM carts
		WHERE user_id = $1 AND product_id = ANY($2)
	`, userID, pq.Array(productIDs))
	if err != nil {
		log.Error("failed to remove cart items", zap.Error(err))
		return 0, fmt.Errorf("%w: %w", ErrFailedRemoveCart, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	log.Debug("cart items removed", zap.Int64("removed", rowsAffected))
	return rowsAffected, nil
}
