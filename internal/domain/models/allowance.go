package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"time"
)

// AllowanceRecord is an append-only credit event. Records are never
// updated or deleted once written.
type AllowanceRecord struct {
	Id        uuid.UUID
	UserId    int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}
