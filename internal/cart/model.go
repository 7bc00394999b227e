package cart

import "time"

type CartItem struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
