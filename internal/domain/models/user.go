package models

import (
	"github.com/shopspring/decimal"
	"time"
)

type User struct {
	Id                  int64
	Email               string
	PassHash            string
	CurrentBalance      decimal.Decimal
	LastAllowanceAmount decimal.Decimal
	SetupCompleted      bool
	Created             time.Time
	Updated             time.Time
}
