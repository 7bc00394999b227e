package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"npcshop-be/internal/address"
	"npcshop-be/internal/order"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ---- mocks ----

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetByTransactionID(ctx context.Context, txID string) (*order.Order, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, id int64, change order.Change) (*order.Order, error) {
	args := m.Called(ctx, id, change)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) MarkPaymentPending(ctx context.Context, id int64, method string) (*order.Order, error) {
	args := m.Called(ctx, id, method)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

type MockCart struct {
	mock.Mock
}

func (m *MockCart) RemoveItems(ctx context.Context, userID int64, productIDs []string) (int64, error) {
	args := m.Called(ctx, userID, productIDs)
	return args.Get(0).(int64), args.Error(1)
}

type MockAddresses struct {
	mock.Mock
}

func (m *MockAddresses) PersistAddress(ctx context.Context, userID int64, addr address.Address) (*address.Address, error) {
	args := m.Called(ctx, userID, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*address.Address), args.Error(1)
}

type MockStage struct {
	mock.Mock
}

func (m *MockStage) SaveOutcome(ctx context.Context, userID int64, outcome PaymentOutcome) error {
	args := m.Called(ctx, userID, outcome)
	return args.Error(0)
}

func (m *MockStage) ClearOutcome(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *MockStage) TakeSaveAddress(ctx context.Context, orderNumber string) (bool, error) {
	args := m.Called(ctx, orderNumber)
	return args.Bool(0), args.Error(1)
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) RequestToken(ctx context.Context, in TokenRequest) (*Token, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Token), args.Error(1)
}

func (m *MockGateway) GetTransactionStatus(ctx context.Context, orderRef string) (*TransactionStatus, error) {
	args := m.Called(ctx, orderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TransactionStatus), args.Error(1)
}

func (m *MockGateway) VerifyNotification(n Notification) error {
	return m.Called(n).Error(0)
}

// ---- fixtures ----

type handlerDeps struct {
	orders    *MockOrderService
	gateway   *MockGateway
	cart      *MockCart
	addresses *MockAddresses
	stage     *MockStage
}

func newTestHandler() (*OutcomeHandler, handlerDeps) {
	d := handlerDeps{
		orders:    new(MockOrderService),
		gateway:   new(MockGateway),
		cart:      new(MockCart),
		addresses: new(MockAddresses),
		stage:     new(MockStage),
	}
	h := NewOutcomeHandler(d.orders, d.gateway, d.cart, d.addresses, d.stage, nil)
	h.now = func() time.Time { return time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC) }
	return h, d
}

func draftOrder() *order.Order {
	return &order.Order{
		ID:            42,
		OrderNumber:   "NPC-20260101-ABCDEF",
		UserID:        7,
		Status:        order.StatusDraft,
		PaymentStatus: order.PaymentUnpaid,
		ShippingAddress: order.ShippingAddress{
			Name:       "Budi",
			Phone:      "08123456789",
			Address:    "Jl. Merdeka 1",
			City:       "Bandung",
			Province:   "Jawa Barat",
			PostalCode: "40111",
		},
		Subtotal:    200000,
		ShippingFee: 15000,
		GrandTotal:  215000,
		Items: []order.OrderItem{
			{ProductID: "p-1", Quantity: 2, UnitPrice: 100000, LineTotal: 200000},
		},
	}
}

func paid(o *order.Order, txID, method string) *order.Order {
	cp := *o
	cp.Status = order.StatusProcessing
	cp.PaymentStatus = order.PaymentPaid
	cp.PaymentMethod = method
	cp.TransactionID = &txID
	return &cp
}

func TestOutcomeHandler_Success(t *testing.T) {
	ctx := context.Background()

	t.Run("FirstSuccessAppliesAndRunsSideEffects", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.MatchedBy(func(c order.Change) bool {
			return c.To == order.StatusProcessing &&
				c.Trigger == order.TriggerPayment &&
				c.TransactionID != nil && *c.TransactionID == "tx-1" &&
				c.PaymentMethod != nil && *c.PaymentMethod == MethodBCAVA
		})).Return(paid(o, "tx-1", MethodBCAVA), nil)
		d.cart.On("RemoveItems", ctx, int64(7), []string{"p-1"}).Return(int64(1), nil)
		d.stage.On("TakeSaveAddress", ctx, o.OrderNumber).Return(true, nil)
		d.addresses.On("PersistAddress", ctx, int64(7), address.Address{
			Name:     "Budi",
			Phone:    "08123456789",
			Address1: "Jl. Merdeka 1",
			City:     "Bandung",
			Province: "Jawa Barat",
			Postal:   "40111",
		}).Return(&address.Address{}, nil)
		d.stage.On("ClearOutcome", ctx, int64(7)).Return(nil)

		res, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", Method: MethodBCAVA, GrossAmount: 215000})
		require.NoError(t, err)
		assert.False(t, res.AlreadyApplied)
		assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
		assert.Equal(t, "success", res.Outcome)
		d.orders.AssertExpectations(t)
		d.cart.AssertExpectations(t)
		d.addresses.AssertExpectations(t)
		d.stage.AssertExpectations(t)
	})

	t.Run("SecondSuccessIsNoOp", func(t *testing.T) {
		h, d := newTestHandler()
		o := paid(draftOrder(), "tx-1", MethodBCAVA)

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)

		res, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", Method: MethodBCAVA, GrossAmount: 215000})
		require.NoError(t, err)
		assert.True(t, res.AlreadyApplied)
		d.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
		d.cart.AssertNotCalled(t, "RemoveItems", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("LostRaceToAnotherSuccess", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.Anything).
			Return(nil, &order.TransitionError{From: order.StatusProcessing, To: order.StatusProcessing})
		d.orders.On("GetByID", ctx, int64(42)).Return(paid(o, "tx-1", MethodQRIS), nil)

		res, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", Method: MethodQRIS})
		require.NoError(t, err)
		assert.True(t, res.AlreadyApplied)
		d.cart.AssertNotCalled(t, "RemoveItems", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CancelledOrderRejectsSuccess", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()
		o.Status = order.StatusCancelled
		o.PaymentStatus = order.PaymentFailed

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.Anything).
			Return(nil, &order.TransitionError{From: order.StatusCancelled, To: order.StatusProcessing, Cause: order.ErrTerminalStatus})
		d.orders.On("GetByID", ctx, int64(42)).Return(o, nil)

		_, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1"})
		assert.ErrorIs(t, err, order.ErrInvalidTransition)
	})

	t.Run("AmountMismatch", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)

		_, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", GrossAmount: 1000})
		assert.ErrorIs(t, err, ErrOutcomeNotApplicable)
		d.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("SideEffectFailuresDoNotFailPayment", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.Anything).Return(paid(o, "tx-1", MethodGoPay), nil)
		d.cart.On("RemoveItems", ctx, int64(7), []string{"p-1"}).Return(int64(0), errors.New("db down"))
		d.stage.On("TakeSaveAddress", ctx, o.OrderNumber).Return(false, errors.New("redis down"))
		d.stage.On("ClearOutcome", ctx, int64(7)).Return(errors.New("redis down"))

		res, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", Method: MethodGoPay, GrossAmount: 215000})
		require.NoError(t, err)
		assert.Equal(t, order.StatusProcessing, res.Order.Status)
		d.addresses.AssertNotCalled(t, "PersistAddress", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TransactionOwnedByFallbackOrder", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()
		fallback := paid(draftOrder(), "tx-1", MethodBCAVA)
		fallback.ID = 77
		fallback.OrderNumber = "NPC-FALLBACK"
		fallback.IsFallback = true
		retired := *o
		retired.Status = order.StatusCancelled

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.MatchedBy(func(c order.Change) bool {
			return c.To == order.StatusProcessing
		})).Return(nil, order.ErrDuplicateTransaction).Once()
		d.orders.On("GetByTransactionID", ctx, "tx-1").Return(fallback, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), order.Change{
			To:      order.StatusCancelled,
			Trigger: order.TriggerReconcile,
		}).Return(&retired, nil).Once()

		res, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", Method: MethodBCAVA, GrossAmount: 215000})
		require.NoError(t, err)
		assert.True(t, res.AlreadyApplied)
		assert.Equal(t, "NPC-FALLBACK", res.Order.OrderNumber)
		d.orders.AssertExpectations(t)
		d.cart.AssertNotCalled(t, "RemoveItems", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("TransactionOwnerNotLoadable", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.Anything).Return(nil, order.ErrDuplicateTransaction)
		d.orders.On("GetByTransactionID", ctx, "tx-1").Return(nil, errors.New("db down"))

		_, err := h.Handle(ctx, o.OrderNumber, Success{TransactionID: "tx-1", GrossAmount: 215000})
		assert.Error(t, err)
		d.orders.AssertNumberOfCalls(t, "UpdateStatus", 1)
	})

	t.Run("UnknownOrder", func(t *testing.T) {
		h, d := newTestHandler()
		d.orders.On("GetByNumber", ctx, "TMP-1").Return(nil, order.ErrOrderNotFound)

		_, err := h.Handle(ctx, "TMP-1", Success{TransactionID: "tx-1"})
		assert.ErrorIs(t, err, order.ErrOrderNotFound)
	})
}

func TestOutcomeHandler_Pending(t *testing.T) {
	ctx := context.Background()

	t.Run("RecordsPendingAndReturnsInstructions", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()
		pending := *o
		pending.PaymentStatus = order.PaymentPending
		pending.PaymentMethod = MethodBCAVA

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("MarkPaymentPending", ctx, int64(42), MethodBCAVA).Return(&pending, nil)

		res, err := h.Handle(ctx, o.OrderNumber, Pending{
			TransactionID: "tx-2",
			Method:        MethodBCAVA,
			PaymentCode:   "1234567890",
			GrossAmount:   215000,
		})
		require.NoError(t, err)
		assert.Equal(t, order.StatusDraft, res.Order.Status)
		assert.Equal(t, order.PaymentPending, res.Order.PaymentStatus)
		require.NotEmpty(t, res.Instructions)
		joined := ""
		for _, s := range res.Instructions {
			joined += s + "\n"
		}
		assert.Contains(t, joined, "1234567890")
		assert.Contains(t, joined, "Rp215.000")
	})

	t.Run("PaidOrderUntouched", func(t *testing.T) {
		h, d := newTestHandler()
		o := paid(draftOrder(), "tx-1", MethodQRIS)
		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)

		res, err := h.Handle(ctx, o.OrderNumber, Pending{Method: MethodQRIS})
		require.NoError(t, err)
		assert.True(t, res.AlreadyApplied)
		d.orders.AssertNotCalled(t, "MarkPaymentPending", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOutcomeHandler_Failure(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelsDraft", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()
		cancelled := *o
		cancelled.Status = order.StatusCancelled
		cancelled.PaymentStatus = order.PaymentFailed

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), order.Change{
			To:      order.StatusCancelled,
			Trigger: order.TriggerPayment,
		}).Return(&cancelled, nil)

		res, err := h.Handle(ctx, o.OrderNumber, Failure{TransactionID: "tx-3", Status: "expire"})
		require.NoError(t, err)
		assert.Equal(t, order.StatusCancelled, res.Order.Status)
		assert.Equal(t, order.PaymentFailed, res.Order.PaymentStatus)
	})

	t.Run("IgnoredAfterPayment", func(t *testing.T) {
		h, d := newTestHandler()
		o := paid(draftOrder(), "tx-1", MethodQRIS)
		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)

		res, err := h.Handle(ctx, o.OrderNumber, Failure{Status: "expire"})
		require.NoError(t, err)
		assert.True(t, res.AlreadyApplied)
		assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
		d.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("PaidConcurrently", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.Anything).
			Return(nil, &order.TransitionError{From: order.StatusProcessing, To: order.StatusCancelled, Cause: order.ErrTriggerNotAllowed})
		d.orders.On("GetByID", ctx, int64(42)).Return(paid(o, "tx-1", MethodQRIS), nil)

		res, err := h.Handle(ctx, o.OrderNumber, Failure{Status: "deny"})
		require.NoError(t, err)
		assert.True(t, res.AlreadyApplied)
	})
}

func TestOutcomeHandler_Abort(t *testing.T) {
	h, d := newTestHandler()

	res, err := h.Handle(context.Background(), "NPC-1", Abort{Reason: "closed"})
	require.NoError(t, err)
	assert.Equal(t, "abort", res.Outcome)
	assert.Nil(t, res.Order)
	d.orders.AssertNotCalled(t, "GetByNumber", mock.Anything, mock.Anything)
}

func TestOutcomeHandler_Confirm(t *testing.T) {
	ctx := context.Background()
	report := PaymentOutcome{
		TransactionID:     "tx-1",
		OrderRef:          "NPC-20260101-ABCDEF",
		StatusCode:        "200",
		TransactionStatus: "settlement",
		GrossAmount:       215000,
		PaymentType:       "qris",
	}

	t.Run("VerifiedWithGateway", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.stage.On("SaveOutcome", ctx, int64(7), mock.MatchedBy(func(p PaymentOutcome) bool {
			return p.TransactionID == "tx-1" && !p.ReceivedAt.IsZero()
		})).Return(nil)
		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.gateway.On("GetTransactionStatus", ctx, o.OrderNumber).Return(&TransactionStatus{
			TransactionID:     "tx-1",
			StatusCode:        "200",
			TransactionStatus: "settlement",
			GrossAmount:       215000,
			PaymentType:       "qris",
		}, nil)
		d.orders.On("UpdateStatus", ctx, int64(42), mock.Anything).Return(paid(o, "tx-1", MethodQRIS), nil)
		d.cart.On("RemoveItems", ctx, int64(7), []string{"p-1"}).Return(int64(1), nil)
		d.stage.On("TakeSaveAddress", ctx, o.OrderNumber).Return(false, nil)
		d.stage.On("ClearOutcome", ctx, int64(7)).Return(nil)

		res, err := h.Confirm(ctx, 7, report)
		require.NoError(t, err)
		assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
		d.stage.AssertExpectations(t)
	})

	t.Run("GatewaySaysPendingDespiteReport", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()
		pending := *o
		pending.PaymentStatus = order.PaymentPending

		d.stage.On("SaveOutcome", ctx, int64(7), mock.Anything).Return(nil)
		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.gateway.On("GetTransactionStatus", ctx, o.OrderNumber).Return(&TransactionStatus{
			TransactionID:     "tx-1",
			StatusCode:        "201",
			TransactionStatus: "pending",
			PaymentType:       "qris",
		}, nil)
		d.orders.On("MarkPaymentPending", ctx, int64(42), MethodQRIS).Return(&pending, nil)

		res, err := h.Confirm(ctx, 7, report)
		require.NoError(t, err)
		assert.Equal(t, "pending", res.Outcome)
		d.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("GatewayUnavailableKeepsStagedOutcome", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()

		d.stage.On("SaveOutcome", ctx, int64(7), mock.Anything).Return(nil)
		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)
		d.gateway.On("GetTransactionStatus", ctx, o.OrderNumber).Return(nil, ErrGatewayUnavailable)

		_, err := h.Confirm(ctx, 7, report)
		assert.ErrorIs(t, err, ErrGatewayUnavailable)
		d.stage.AssertNotCalled(t, "ClearOutcome", mock.Anything, mock.Anything)
	})

	t.Run("AnotherUsersOrder", func(t *testing.T) {
		h, d := newTestHandler()
		o := draftOrder()
		o.UserID = 99

		d.stage.On("SaveOutcome", ctx, int64(7), mock.Anything).Return(nil)
		d.orders.On("GetByNumber", ctx, o.OrderNumber).Return(o, nil)

		_, err := h.Confirm(ctx, 7, report)
		assert.ErrorIs(t, err, order.ErrForbidden)
		d.gateway.AssertNotCalled(t, "GetTransactionStatus", mock.Anything, mock.Anything)
	})

	t.Run("ClosedWidgetIsAbort", func(t *testing.T) {
		h, d := newTestHandler()

		res, err := h.Confirm(ctx, 7, PaymentOutcome{OrderRef: "NPC-1"})
		require.NoError(t, err)
		assert.Equal(t, "abort", res.Outcome)
		d.stage.AssertNotCalled(t, "SaveOutcome", mock.Anything, mock.Anything, mock.Anything)
	})
}
