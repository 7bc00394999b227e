package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"npcshop-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Expectation is the state a conditional update requires the row to still be in.
type Expectation struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
}

type Repository interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*Order, error)
	GetOrderByTransactionID(ctx context.Context, transactionID string) (*Order, error)
	GetLatestOrderByUser(ctx context.Context, userID int64) (*Order, error)
	ListOrdersByUser(
		ctx context.Context,
		userID int64,
		filter OrderFilter,
		limit, offset int32,
	) ([]*Order, error)
	UpdateOrderStatus(
		ctx context.Context,
		id int64,
		expected Expectation,
		patch Patch,
	) (time.Time, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, order_number, user_id, status, payment_status, payment_method,
	transaction_id, tracking_number, shipping_courier, shipping_service,
	ship_name, ship_phone, ship_address, ship_city, ship_province, ship_postal_code,
	subtotal, shipping_fee, discount, grand_total, coupon_code, is_fallback,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o             Order
		paymentMethod sql.NullString
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.PaymentStatus, &paymentMethod,
		&o.TransactionID, &o.TrackingNumber, &o.ShippingCourier, &o.ShippingService,
		&o.ShippingAddress.Name, &o.ShippingAddress.Phone, &o.ShippingAddress.Address,
		&o.ShippingAddress.City, &o.ShippingAddress.Province, &o.ShippingAddress.PostalCode,
		&o.Subtotal, &o.ShippingFee, &o.Discount, &o.GrandTotal, &o.CouponCode, &o.IsFallback,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = paymentMethod.String
	return &o, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == PgUniqueViolation &&
		(constraint == "" || pqErr.Constraint == constraint)
}

const transactionIDConstraint = "orders_transaction_id_key"

// CreateOrder inserts the order and its items in one transaction and fills in
// the generated id and timestamps.
func (r *repository) CreateOrder(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.String("order_number", o.OrderNumber),
		zap.Int("item_count", len(o.Items)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return err
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	var paymentMethod *string
	if o.PaymentMethod != "" {
		paymentMethod = &o.PaymentMethod
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_number, user_id, status, payment_status, payment_method,
			transaction_id, tracking_number, shipping_courier, shipping_service,
			ship_name, ship_phone, ship_address, ship_city, ship_province, ship_postal_code,
			subtotal, shipping_fee, discount, grand_total, coupon_code, is_fallback
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING id, created_at, updated_at
	`,
		o.OrderNumber, o.UserID, o.Status, o.PaymentStatus, paymentMethod,
		o.TransactionID, o.TrackingNumber, o.ShippingCourier, o.ShippingService,
		o.ShippingAddress.Name, o.ShippingAddress.Phone, o.ShippingAddress.Address,
		o.ShippingAddress.City, o.ShippingAddress.Province, o.ShippingAddress.PostalCode,
		o.Subtotal, o.ShippingFee, o.Discount, o.GrandTotal, o.CouponCode, o.IsFallback,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, transactionIDConstraint) {
			log.Warn("transaction already has an order", zap.Stringp("transaction_id", o.TransactionID))
			return ErrDuplicateTransaction
		}
		log.Error("failed to insert order", zap.Error(err))
		return err
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (
				order_id, product_id, product_name, quantity, unit_price, line_total
			) VALUES ($1,$2,$3,$4,$5,$6)
			RETURNING id
		`,
			o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.LineTotal,
		).Scan(&item.ID)
		if err != nil {
			log.Error("failed to insert order item",
				zap.Int("item_index", i),
				zap.String("product_id", item.ProductID),
				zap.Error(err),
			)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err, transactionIDConstraint) {
			return ErrDuplicateTransaction
		}
		log.Error("failed to commit order transaction", zap.Error(err))
		return err
	}
	committed = true

	log.Info("order created", zap.Int64("order_id", o.ID))
	return nil
}

func (r *repository) getOne(ctx context.Context, where string, arg any) (*Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := r.fetchItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *repository) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *repository) GetOrderByNumber(ctx context.Context, number string) (*Order, error) {
	return r.getOne(ctx, "order_number = $1", number)
}

func (r *repository) GetOrderByTransactionID(ctx context.Context, transactionID string) (*Order, error) {
	return r.getOne(ctx, "transaction_id = $1", transactionID)
}

// GetLatestOrderByUser returns the most recently created order of the user.
func (r *repository) GetLatestOrderByUser(ctx context.Context, userID int64) (*Order, error) {
	return r.getOne(ctx, "user_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1", userID)
}

func (r *repository) ListOrdersByUser(
	ctx context.Context,
	userID int64,
	filter OrderFilter,
	limit, offset int32,
) ([]*Order, error) {

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ListOrdersByUser"),
		zap.Int32("limit", limit),
		zap.Int32("offset", offset),
	)

	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []any{userID}
	argIndex := 2

	if filter.Status != nil && *filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, *filter.Status)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var (
		orders []*Order
		ids    []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, err
	}

	if len(ids) == 0 {
		return orders, nil
	}

	items, err := r.fetchItems(ctx, ids)
	if err != nil {
		log.Error("failed to fetch order items", zap.Error(err))
		return nil, err
	}
	for _, o := range orders {
		o.Items = items[o.ID]
	}

	log.Debug("list orders success", zap.Int("count", len(orders)))
	return orders, nil
}

func (r *repository) fetchItems(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, unit_price, line_total
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64][]OrderItem, len(orderIDs))
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Quantity, &it.UnitPrice, &it.LineTotal,
		); err != nil {
			return nil, err
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, rows.Err()
}

// UpdateOrderStatus writes patch only if the row is still in the expected
// state. A row that moved on in the meantime yields ErrConcurrentUpdate.
func (r *repository) UpdateOrderStatus(
	ctx context.Context,
	id int64,
	expected Expectation,
	patch Patch,
) (time.Time, error) {

	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, `
		UPDATE orders
		SET
			status = $1,
			payment_status = COALESCE($2, payment_status),
			payment_method = COALESCE($3, payment_method),
			tracking_number = COALESCE($4, tracking_number),
			transaction_id = COALESCE($5, transaction_id),
			updated_at = NOW()
		WHERE id = $6
		  AND status = $7
		  AND payment_status = $8
		RETURNING updated_at
	`,
		patch.Status,
		patch.PaymentStatus,
		patch.PaymentMethod,
		patch.TrackingNumber,
		patch.TransactionID,
		id,
		expected.Status,
		expected.PaymentStatus,
	).Scan(&updatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrConcurrentUpdate
	}
	if err != nil {
		if isUniqueViolation(err, transactionIDConstraint) {
			return time.Time{}, ErrDuplicateTransaction
		}
		return time.Time{}, err
	}
	return updatedAt, nil
}
