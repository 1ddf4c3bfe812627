package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

// TransactionRecord is an append-only debit event. Amount is always
// positive; the sign convention is "positive = expense".
type TransactionRecord struct {
	Id          uuid.UUID
	UserId      int64
	Amount      decimal.Decimal
	Description string
	CreatedAt   time.Time
}
