package transport

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type RegisterResponse struct {
	Id      int64  `json:"id"`
	Message string `json:"message"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Id    int64  `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type SetupRequest struct {
	AllowanceAmount decimal.Decimal `json:"allowanceAmount" validate:"required"`
}

type AddAllowanceRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type AddAllowanceResponse struct {
	Id      uuid.UUID       `json:"id"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

type AddExpenseRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description" validate:"max=256"`
}

type AddExpenseResponse struct {
	Id      uuid.UUID       `json:"id"`
	Amount  decimal.Decimal `json:"amount"`
	Message string          `json:"message"`
}

type AllowanceItem struct {
	Id        uuid.UUID       `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt string          `json:"createdAt"`
}

type TransactionItem struct {
	Id          uuid.UUID       `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	CreatedAt   string          `json:"createdAt"`
}

// BalanceState is the derived part of a sync response.
type BalanceState struct {
	Current         decimal.Decimal `json:"current"`
	TotalAllowances decimal.Decimal `json:"totalAllowances"`
	TotalExpenses   decimal.Decimal `json:"totalExpenses"`
	Synced          bool            `json:"synced"`
}

// UserState is the snapshot part of a sync response, re-read after the write.
type UserState struct {
	CurrentBalance      decimal.Decimal `json:"currentBalance"`
	LastAllowanceAmount decimal.Decimal `json:"lastAllowanceAmount"`
}

type SyncBalanceResponse struct {
	Message string       `json:"message"`
	Balance BalanceState `json:"balance"`
	User    UserState    `json:"user"`
}

type ProfileResponse struct {
	Id                  int64           `json:"id"`
	Email               string          `json:"email"`
	CurrentBalance      decimal.Decimal `json:"currentBalance"`
	LastAllowanceAmount decimal.Decimal `json:"lastAllowanceAmount"`
	SetupCompleted      bool            `json:"setupCompleted"`
}

type OverrideBalanceRequest struct {
	UserId  int64           `json:"userId" validate:"required,gt=0"`
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason" validate:"required"`
}

type OverrideBalanceResponse struct {
	Message string          `json:"message"`
	UserId  int64           `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
}
