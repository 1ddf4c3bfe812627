package balance

import (
	"Allowance/internal/domain/models"
	"Allowance/internal/storage/postgres"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInvalidAmount = errors.New("invalid amount")
)

const (
	SubjectSynced     = "balance.synced"
	SubjectOverridden = "balance.overridden"
)

// RecordStore is the append-only side of the store: credit and debit
// records, never updated in place.
type RecordStore interface {
	ListAllowances(ctx context.Context, userId int64) ([]models.AllowanceRecord, error)
	ListTransactions(ctx context.Context, userId int64) ([]models.TransactionRecord, error)
	CreateAllowance(ctx context.Context, id uuid.UUID, userId int64, amount decimal.Decimal, createdAt time.Time) (uuid.UUID, error)
	CreateTransaction(ctx context.Context, id uuid.UUID, userId int64, amount decimal.Decimal, description string, createdAt time.Time) (uuid.UUID, error)
}

// SnapshotManager owns the cached balance on the user row.
type SnapshotManager interface {
	GetUserById(ctx context.Context, id int64) (models.User, error)
	UpdateBalance(ctx context.Context, userId int64, balance decimal.Decimal, updatedAt time.Time) error
}

type AuditPublisher interface {
	Publish(subject string, event any) error
}

// AuditEvent records every write to the balance snapshot and by which path
// it happened.
type AuditEvent struct {
	Kind    string          `json:"kind"`
	UserId  int64           `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
	Actor   string          `json:"actor,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	At      time.Time       `json:"at"`
}

// Reconciliation is the audit result of a sync: the derived totals plus the
// user snapshot as re-read after the write.
type Reconciliation struct {
	Balance         decimal.Decimal
	TotalAllowances decimal.Decimal
	TotalExpenses   decimal.Decimal
	Synced          bool
	User            models.User
}

type Service struct {
	log     *slog.Logger
	records RecordStore
	users   SnapshotManager
	audit   AuditPublisher
}

func New(log *slog.Logger, records RecordStore, users SnapshotManager, audit AuditPublisher) *Service {
	return &Service{
		log:     log,
		records: records,
		users:   users,
		audit:   audit,
	}
}

// ComputeTotals sums credit and debit amounts. Pure over its inputs; empty
// slices sum to zero. Decimal arithmetic, no rounding.
func ComputeTotals(allowances []models.AllowanceRecord, transactions []models.TransactionRecord) (credits, debits decimal.Decimal) {
	for _, a := range allowances {
		credits = credits.Add(a.Amount)
	}
	for _, t := range transactions {
		debits = debits.Add(t.Amount)
	}
	return credits, debits
}

// Sync recomputes the user's balance from the full credit/debit history and
// persists it into the snapshot.
//
// The two reads are independent point-in-time scans; the single UpdateBalance
// call is the only write, so a failure anywhere leaves no partial state.
// Deterministic over the record sets: calling Sync twice on unchanged data
// yields the same balance. Negative balances are kept as is, they mean
// overspend. Concurrent syncs for the same user resolve as last write wins.
func (s *Service) Sync(ctx context.Context, userId int64) (Reconciliation, error) {
	const op = "balance.Sync"

	allowances, err := s.records.ListAllowances(ctx, userId)
	if err != nil {
		s.log.Error("failed to list allowances", "op", op, "user_id", userId, "err", err)
		return Reconciliation{}, fmt.Errorf("%s: %w", op, err)
	}

	transactions, err := s.records.ListTransactions(ctx, userId)
	if err != nil {
		s.log.Error("failed to list transactions", "op", op, "user_id", userId, "err", err)
		return Reconciliation{}, fmt.Errorf("%s: %w", op, err)
	}

	credits, debits := ComputeTotals(allowances, transactions)
	newBalance := credits.Sub(debits)

	now := time.Now()
	if err := s.users.UpdateBalance(ctx, userId, newBalance, now); err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			s.log.Error("user vanished before balance write", "op", op, "user_id", userId)
			return Reconciliation{}, ErrUserNotFound
		}
		s.log.Error("failed to write balance", "op", op, "user_id", userId, "err", err)
		return Reconciliation{}, fmt.Errorf("%s: %w", op, err)
	}

	// Re-read so the caller sees the post-write row, including fields a
	// concurrent writer may have touched.
	user, err := s.users.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return Reconciliation{}, ErrUserNotFound
		}
		s.log.Error("failed to re-read user", "op", op, "user_id", userId, "err", err)
		return Reconciliation{}, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(SubjectSynced, AuditEvent{
		Kind:    "sync",
		UserId:  userId,
		Balance: newBalance,
		At:      now,
	})

	s.log.Info("balance synced", "op", op, "user_id", userId,
		"balance", newBalance, "credits", credits, "debits", debits)

	return Reconciliation{
		Balance:         newBalance,
		TotalAllowances: credits,
		TotalExpenses:   debits,
		Synced:          true,
		User:            user,
	}, nil
}

// AddAllowance appends a credit record. Amounts must be strictly positive.
func (s *Service) AddAllowance(ctx context.Context, userId int64, amount decimal.Decimal) (models.AllowanceRecord, error) {
	const op = "balance.AddAllowance"

	if amount.LessThanOrEqual(decimal.Zero) {
		return models.AllowanceRecord{}, ErrInvalidAmount
	}

	now := time.Now()
	id, err := s.records.CreateAllowance(ctx, uuid.New(), userId, amount, now)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.AllowanceRecord{}, ErrUserNotFound
		}
		s.log.Error("failed to add allowance", "op", op, "user_id", userId, "err", err)
		return models.AllowanceRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.AllowanceRecord{Id: id, UserId: userId, Amount: amount, CreatedAt: now}, nil
}

// AddExpense appends a debit record. Amounts must be strictly positive;
// refunds are modelled as allowance records, never as negative expenses.
func (s *Service) AddExpense(ctx context.Context, userId int64, amount decimal.Decimal, description string) (models.TransactionRecord, error) {
	const op = "balance.AddExpense"

	if amount.LessThanOrEqual(decimal.Zero) {
		return models.TransactionRecord{}, ErrInvalidAmount
	}

	now := time.Now()
	id, err := s.records.CreateTransaction(ctx, uuid.New(), userId, amount, description, now)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.TransactionRecord{}, ErrUserNotFound
		}
		s.log.Error("failed to add expense", "op", op, "user_id", userId, "err", err)
		return models.TransactionRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	return models.TransactionRecord{Id: id, UserId: userId, Amount: amount, Description: description, CreatedAt: now}, nil
}

func (s *Service) Allowances(ctx context.Context, userId int64) ([]models.AllowanceRecord, error) {
	const op = "balance.Allowances"

	records, err := s.records.ListAllowances(ctx, userId)
	if err != nil {
		s.log.Error("failed to list allowances", "op", op, "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

func (s *Service) Expenses(ctx context.Context, userId int64) ([]models.TransactionRecord, error) {
	const op = "balance.Expenses"

	records, err := s.records.ListTransactions(ctx, userId)
	if err != nil {
		s.log.Error("failed to list transactions", "op", op, "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return records, nil
}

// Override force-sets the snapshot to an arbitrary value, ignoring the
// record history. This is an administrative bypass, not reconciliation: it
// shares nothing with Sync except the snapshot write, and every call is
// logged and audited with the acting admin and the stated reason.
func (s *Service) Override(ctx context.Context, userId int64, newBalance decimal.Decimal, actor, reason string) (models.User, error) {
	const op = "balance.Override"

	now := time.Now()
	if err := s.users.UpdateBalance(ctx, userId, newBalance, now); err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		s.log.Error("failed to override balance", "op", op, "user_id", userId, "err", err)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		s.log.Error("failed to re-read user", "op", op, "user_id", userId, "err", err)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Warn("administrative balance override", "op", op,
		"user_id", userId, "balance", newBalance, "actor", actor, "reason", reason)

	s.publish(SubjectOverridden, AuditEvent{
		Kind:    "override",
		UserId:  userId,
		Balance: newBalance,
		Actor:   actor,
		Reason:  reason,
		At:      now,
	})

	return user, nil
}

func (s *Service) publish(subject string, event AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(subject, event); err != nil {
		s.log.Error("failed to publish audit event", "subject", subject, "err", err)
	}
}
