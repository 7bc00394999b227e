package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"npcshop-be/internal/logger"
	"npcshop-be/internal/order"
	"npcshop-be/internal/payment"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type NotificationStore interface {
	SaveNotification(ctx context.Context, rec payment.NotificationRecord) (int64, bool, error)
	MarkNotificationProcessed(ctx context.Context, id int64) error
	MarkNotificationFailed(ctx context.Context, id int64, reason string) error
}

type OutcomeApplier interface {
	Handle(ctx context.Context, orderRef string, outcome payment.Outcome) (*payment.HandleResult, error)
}

type Handler struct {
	gateway  payment.Gateway
	store    NotificationStore
	outcomes OutcomeApplier
}

func NewWebhookHandler(gateway payment.Gateway, store NotificationStore, outcomes OutcomeApplier) *Handler {
	return &Handler{
		gateway:  gateway,
		store:    store,
		outcomes: outcomes,
	}
}

// MidtransNotificationHandler receives the gateway's HTTP notification.
// Every delivery is recorded before the signature is judged; only signed
// notifications reach the order.
func (h *Handler) MidtransNotificationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("provider", payment.ProviderMidtrans),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("failed to read body", zap.Error(err))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var n payment.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		log.Warn("invalid notification payload", zap.Error(err))
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.String("order_ref", n.OrderID),
		zap.String("transaction_id", n.TransactionID),
		zap.String("transaction_status", n.TransactionStatus),
	)

	sigErr := h.gateway.VerifyNotification(n)

	id, duplicate, err := h.store.SaveNotification(ctx, payment.NotificationRecord{
		Provider:          payment.ProviderMidtrans,
		TransactionID:     n.TransactionID,
		TransactionStatus: n.TransactionStatus,
		OrderRef:          n.OrderID,
		SignatureValid:    sigErr == nil,
		Payload:           body,
	})
	if err != nil {
		log.Error("failed to record notification", zap.Error(err))
		http.Error(w, "failed to record notification", http.StatusInternalServerError)
		return
	}
	if duplicate {
		log.Info("duplicate notification ignored")
		writeOK(w)
		return
	}

	if sigErr != nil {
		log.Warn("notification signature rejected")
		h.fail(ctx, id, "invalid signature")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	amount, err := payment.ParseGrossAmount(n.GrossAmount)
	if err != nil {
		log.Warn("invalid gross amount", zap.String("gross_amount", n.GrossAmount))
		h.fail(ctx, id, err.Error())
		http.Error(w, "invalid gross amount", http.StatusBadRequest)
		return
	}

	outcome := payment.OutcomeFromNotification(n, amount)
	if _, err := h.outcomes.Handle(ctx, n.OrderID, outcome); err != nil {
		h.fail(ctx, id, err.Error())

		switch {
		case errors.Is(err, payment.ErrOutcomeNotApplicable):
			log.Error("notification does not match order", zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, order.ErrOrderNotFound),
			errors.Is(err, order.ErrInvalidTransition),
			errors.Is(err, order.ErrDuplicateTransaction):
			// retrying cannot change the answer
			log.Warn("notification not applied", zap.Error(err))
			writeOK(w)
		default:
			log.Error("failed to apply notification", zap.Error(err))
			http.Error(w, "failed to update order", http.StatusInternalServerError)
		}
		return
	}

	if err := h.store.MarkNotificationProcessed(ctx, id); err != nil {
		log.Error("failed to mark notification processed", zap.Int64("notification_id", id), zap.Error(err))
	}

	log.Info("notification applied", zap.String("outcome", outcome.Kind()))
	writeOK(w)
}

func (h *Handler) fail(ctx context.Context, id int64, reason string) {
	if err := h.store.MarkNotificationFailed(ctx, id, reason); err != nil {
		logger.FromCtx(ctx).Error("failed to mark notification failed",
			zap.Int64("notification_id", id),
			zap.Error(err),
		)
	}
}

func writeOK(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}
