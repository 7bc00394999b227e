package address

import (
	"github.com/google/uuid"
)

type Address struct {
	ID     uuid.UUID
	UserID int64

	Name  string
	Phone string

	Address1 string

	City     string
	Province string
	Postal   string
	Country  string

	IsDefault bool
	IsActive  bool
}
