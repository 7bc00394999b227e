package payment

import (
	"bytes"
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"npcshop-be/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MidtransConfig struct {
	ServerKey string
	BaseURL   string // core API, e.g. https://api.sandbox.midtrans.com
	SnapURL   string // snap API, e.g. https://app.sandbox.midtrans.com
	FinishURL string
}

type midtransGateway struct {
	serverKey  string
	baseURL    string
	snapURL    string
	finishURL  string
	httpClient *http.Client
}

// ----------------- Constructor -----------------

func NewMidtransGateway(cfg MidtransConfig) Gateway {
	if cfg.ServerKey == "" {
		logger.L().Warn("Midtrans server key is empty")
	}

	return &midtransGateway{
		serverKey: cfg.ServerKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		snapURL:   strings.TrimRight(cfg.SnapURL, "/"),
		finishURL: cfg.FinishURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type snapItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []snapItem `json:"item_details,omitempty"`
	CustomerDetails struct {
		FirstName string `json:"first_name"`
		Email     string `json:"email,omitempty"`
		Phone     string `json:"phone,omitempty"`
	} `json:"customer_details"`
	Callbacks *struct {
		Finish string `json:"finish"`
	} `json:"callbacks,omitempty"`
}

type snapErrorResponse struct {
	ErrorMessages []string `json:"error_messages"`
}

// ----------------- RequestToken -----------------

func (m *midtransGateway) RequestToken(ctx context.Context, in TokenRequest) (*Token, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "RequestToken"),
		zap.String("order_ref", in.OrderRef),
		zap.Int64("amount", in.Amount),
	)

	var body snapRequest
	body.TransactionDetails.OrderID = in.OrderRef
	body.TransactionDetails.GrossAmount = in.Amount
	body.CustomerDetails.FirstName = in.Customer.Name
	body.CustomerDetails.Email = in.Customer.Email
	body.CustomerDetails.Phone = in.Customer.Phone
	for _, it := range in.Items {
		body.ItemDetails = append(body.ItemDetails, snapItem{
			ID:       it.ID,
			Price:    it.Price,
			Quantity: it.Quantity,
			Name:     truncateName(it.Name),
		})
	}
	if m.finishURL != "" {
		body.Callbacks = &struct {
			Finish string `json:"finish"`
		}{Finish: m.finishURL}
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		log.Error("failed to marshal snap request", zap.Error(err))
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.snapURL+"/snap/v1/transactions", bytes.NewReader(jsonBody))
	if err != nil {
		log.Error("failed creating request", zap.Error(err))
		return nil, err
	}
	m.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	log.Info("requesting snap token")

	bodyBytes, status, err := m.do(req)
	if err != nil {
		log.Error("snap request failed", zap.Error(err))
		return nil, err
	}

	if status != http.StatusCreated && status != http.StatusOK {
		var snapErr snapErrorResponse
		_ = json.Unmarshal(bodyBytes, &snapErr)
		log.Error("snap returned non-success status",
			zap.Int("status", status),
			zap.Strings("errors", snapErr.ErrorMessages),
		)
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: snap status %d", ErrGatewayUnavailable, status)
		}
		return nil, fmt.Errorf("%w: %s", ErrGatewayRejected, strings.Join(snapErr.ErrorMessages, "; "))
	}

	var token Token
	if err := json.Unmarshal(bodyBytes, &token); err != nil {
		log.Error("failed decoding snap response", zap.Error(err))
		return nil, err
	}
	if token.Token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrGatewayRejected)
	}

	log.Info("snap token created")
	return &token, nil
}

type statusResponse struct {
	StatusCode        string     `json:"status_code"`
	StatusMessage     string     `json:"status_message"`
	TransactionID     string     `json:"transaction_id"`
	OrderID           string     `json:"order_id"`
	GrossAmount       string     `json:"gross_amount"`
	PaymentType       string     `json:"payment_type"`
	TransactionStatus string     `json:"transaction_status"`
	FraudStatus       string     `json:"fraud_status"`
	TransactionTime   string     `json:"transaction_time"`
	VANumbers         []VANumber `json:"va_numbers"`
	PermataVANumber   string     `json:"permata_va_number"`
	Store             string     `json:"store"`
	PaymentCode       string     `json:"payment_code"`
	BillKey           string     `json:"bill_key"`
}

// ----------------- GetTransactionStatus -----------------

func (m *midtransGateway) GetTransactionStatus(ctx context.Context, orderRef string) (*TransactionStatus, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "gateway"),
		zap.String("method", "GetTransactionStatus"),
		zap.String("order_ref", orderRef),
	)

	if orderRef == "" {
		return nil, ErrMissingOrderRef
	}

	endpoint := fmt.Sprintf("%s/v2/%s/status", m.baseURL, url.PathEscape(orderRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		log.Error("failed building request", zap.Error(err))
		return nil, err
	}
	m.authorize(req)

	bodyBytes, status, err := m.do(req)
	if err != nil {
		log.Error("status request failed", zap.Error(err))
		return nil, err
	}

	if status == http.StatusNotFound {
		return nil, ErrTransactionNotFound
	}
	if status != http.StatusOK {
		log.Error("midtrans returned error", zap.Int("http_status", status), zap.ByteString("response", bodyBytes))
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, status)
	}

	var res statusResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("failed decoding status", zap.Error(err))
		return nil, err
	}

	// the core API reports unknown orders in the body with HTTP 200
	if res.StatusCode == "404" {
		log.Warn("transaction not found")
		return nil, ErrTransactionNotFound
	}

	amount, err := ParseGrossAmount(res.GrossAmount)
	if err != nil {
		log.Error("invalid gross amount", zap.String("gross_amount", res.GrossAmount), zap.Error(err))
		return nil, err
	}

	out := &TransactionStatus{
		OrderRef:          res.OrderID,
		TransactionID:     res.TransactionID,
		StatusCode:        res.StatusCode,
		TransactionStatus: res.TransactionStatus,
		FraudStatus:       res.FraudStatus,
		GrossAmount:       amount,
		PaymentType:       res.PaymentType,
		Store:             res.Store,
		PaymentCode:       res.PaymentCode,
		TransactionTime:   res.TransactionTime,
	}
	switch {
	case len(res.VANumbers) > 0:
		out.Bank = res.VANumbers[0].Bank
		out.PaymentCode = res.VANumbers[0].VANumber
	case res.PermataVANumber != "":
		out.Bank = "permata"
		out.PaymentCode = res.PermataVANumber
	case res.BillKey != "":
		out.PaymentCode = res.BillKey
	}

	log.Debug("transaction status fetched",
		zap.String("transaction_status", out.TransactionStatus),
		zap.Int64("gross_amount", out.GrossAmount),
	)
	return out, nil
}

// ----------------- Verify Notification -----------------

// VerifyNotification checks signature_key = SHA512(order_id + status_code + gross_amount + server_key).
func (m *midtransGateway) VerifyNotification(n Notification) error {
	if m.serverKey == "" {
		return ErrInvalidSignature
	}
	expected := NotificationSignature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

func NotificationSignature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// ParseGrossAmount reads the gateway's decimal string ("215000.00") as whole Rupiah.
func ParseGrossAmount(s string) (int64, error) {
	if s == "" {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	if !d.Equal(d.Truncate(0)) || d.IsNegative() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, s)
	}
	return d.IntPart(), nil
}

func (m *midtransGateway) authorize(req *http.Request) {
	req.SetBasicAuth(m.serverKey, "")
	req.Header.Set("Accept", "application/json")
}

func (m *midtransGateway) do(req *http.Request) ([]byte, int, error) {
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read midtrans response: %w", err)
	}
	return bodyBytes, resp.StatusCode, nil
}

// Snap rejects item names longer than 50 characters.
func truncateName(name string) string {
	r := []rune(name)
	if len(r) <= 50 {
		return name
	}
	return string(r[:50])
}
