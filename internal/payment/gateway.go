package payment

import "context"

type Gateway interface {
	RequestToken(ctx context.Context, req TokenRequest) (*Token, error)
	GetTransactionStatus(ctx context.Context, orderRef string) (*TransactionStatus, error)
	VerifyNotification(n Notification) error
}
