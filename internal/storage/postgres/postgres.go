package postgres

import (
	"Allowance/internal/domain/models"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	uniqueViolation = "23505"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Storage struct {
	db *pgxpool.Pool
}

func New(connString string) (*Storage, error) {
	const op = "postgres.New"
	log := slog.With("op", op)

	if err := runMigrations(connString); err != nil {
		log.Error("failed to run migrations", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		log.Error("failed to connect to database", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := db.Ping(context.Background()); err != nil {
		log.Error("failed to ping database", "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{db: db}, nil
}

func runMigrations(connString string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *Storage) Close() {
	s.db.Close()
}

func (s *Storage) CreateUser(ctx context.Context,
	email string,
	passHash []byte,
	createdAt time.Time) (int64, error) {
	const op = "postgres.CreateUser"
	log := slog.With("op", op)

	const queryCreateUser = `INSERT INTO users(email, pass_hash, created, updated)
		VALUES ($1, $2, $3, $3) RETURNING id`
	var userId int64
	err := s.db.QueryRow(ctx, queryCreateUser, email, passHash, createdAt).Scan(&userId)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			log.Error("user already exists", "email", email)
			return 0, ErrUserAlreadyExists
		}
		log.Error("failed to create user", "email", email, "err", err)
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return userId, nil
}

func (s *Storage) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	const op = "postgres.GetUserByEmail"
	log := slog.With("op", op)

	const query = `SELECT id, email, pass_hash, current_balance, last_allowance_amount,
		setup_completed, created, updated FROM users WHERE email = $1`
	var user models.User
	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.Id, &user.Email, &user.PassHash, &user.CurrentBalance,
		&user.LastAllowanceAmount, &user.SetupCompleted, &user.Created, &user.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		log.Error("failed to get user", "email", email, "err", err)
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Storage) GetUserById(ctx context.Context, id int64) (models.User, error) {
	const op = "postgres.GetUserById"
	log := slog.With("op", op)

	const query = `SELECT id, email, pass_hash, current_balance, last_allowance_amount,
		setup_completed, created, updated FROM users WHERE id = $1`
	var user models.User
	err := s.db.QueryRow(ctx, query, id).Scan(
		&user.Id, &user.Email, &user.PassHash, &user.CurrentBalance,
		&user.LastAllowanceAmount, &user.SetupCompleted, &user.Created, &user.Updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user, ErrUserNotFound
		}
		log.Error("failed to get user", "id", id, "err", err)
		return user, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateBalance overwrites the cached balance snapshot. It is a single-row,
// single-statement write; callers rely on it being all-or-nothing.
func (s *Storage) UpdateBalance(ctx context.Context, userId int64, balance decimal.Decimal, updatedAt time.Time) error {
	const op = "postgres.UpdateBalance"
	log := slog.With("op", op)

	const query = `UPDATE users SET current_balance = $1, updated = $2 WHERE id = $3`
	tag, err := s.db.Exec(ctx, query, balance, updatedAt, userId)
	if err != nil {
		log.Error("failed to update balance", "id", userId, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		log.Error("user vanished before balance write", "id", userId)
		return ErrUserNotFound
	}

	log.Info("balance updated", "id", userId, "balance", balance)
	return nil
}

// CreateAllowance appends a credit record and refreshes the user's
// last_allowance_amount in one transaction.
func (s *Storage) CreateAllowance(ctx context.Context,
	id uuid.UUID,
	userId int64,
	amount decimal.Decimal,
	createdAt time.Time) (recordId uuid.UUID, err error) {
	const op = "postgres.CreateAllowance"
	log := slog.With("op", op)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Error("failed to begin transaction", "err", err)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const queryInsert = `INSERT INTO allowances(id, user_id, amount, created_at)
		VALUES ($1, $2, $3, $4) RETURNING id`
	err = tx.QueryRow(ctx, queryInsert, id, userId, amount, createdAt).Scan(&recordId)
	if err != nil {
		log.Error("failed to create allowance", "user_id", userId, "err", err)
		return uuid.Nil, fmt.Errorf("%s: insert allowance: %w", op, err)
	}

	const queryUpdateLast = `UPDATE users SET last_allowance_amount = $1, updated = $2 WHERE id = $3`
	tag, err := tx.Exec(ctx, queryUpdateLast, amount, createdAt, userId)
	if err != nil {
		log.Error("failed to update last allowance amount", "user_id", userId, "err", err)
		return uuid.Nil, fmt.Errorf("%s: update user: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrUserNotFound
		return uuid.Nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error("failed to commit transaction", "err", err)
		return uuid.Nil, fmt.Errorf("%s: commit transaction: %w", op, err)
	}

	log.Info("allowance created", "id", recordId, "user_id", userId, "amount", amount)
	return recordId, nil
}

func (s *Storage) CreateTransaction(ctx context.Context,
	id uuid.UUID,
	userId int64,
	amount decimal.Decimal,
	description string,
	createdAt time.Time) (uuid.UUID, error) {
	const op = "postgres.CreateTransaction"
	log := slog.With("op", op)

	const query = `INSERT INTO transactions(id, user_id, amount, description, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`
	var recordId uuid.UUID
	err := s.db.QueryRow(ctx, query, id, userId, amount, description, createdAt).Scan(&recordId)
	if err != nil {
		log.Error("failed to create transaction", "user_id", userId, "err", err)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("transaction created", "id", recordId, "user_id", userId, "amount", amount)
	return recordId, nil
}

func (s *Storage) ListAllowances(ctx context.Context, userId int64) ([]models.AllowanceRecord, error) {
	const op = "postgres.ListAllowances"
	log := slog.With("op", op)

	const query = `SELECT id, user_id, amount, created_at FROM allowances WHERE user_id = $1`
	rows, err := s.db.Query(ctx, query, userId)
	if err != nil {
		log.Error("failed to list allowances", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []models.AllowanceRecord
	for rows.Next() {
		var rec models.AllowanceRecord
		if err := rows.Scan(&rec.Id, &rec.UserId, &rec.Amount, &rec.CreatedAt); err != nil {
			log.Error("failed to scan allowance", "user_id", userId, "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

func (s *Storage) ListTransactions(ctx context.Context, userId int64) ([]models.TransactionRecord, error) {
	const op = "postgres.ListTransactions"
	log := slog.With("op", op)

	const query = `SELECT id, user_id, amount, description, created_at FROM transactions WHERE user_id = $1`
	rows, err := s.db.Query(ctx, query, userId)
	if err != nil {
		log.Error("failed to list transactions", "user_id", userId, "err", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var records []models.TransactionRecord
	for rows.Next() {
		var rec models.TransactionRecord
		if err := rows.Scan(&rec.Id, &rec.UserId, &rec.Amount, &rec.Description, &rec.CreatedAt); err != nil {
			log.Error("failed to scan transaction", "user_id", userId, "err", err)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return records, nil
}

// CompleteSetup marks the account as set up and writes the first allowance
// record in one transaction.
func (s *Storage) CompleteSetup(ctx context.Context,
	userId int64,
	allowanceId uuid.UUID,
	amount decimal.Decimal,
	at time.Time) (err error) {
	const op = "postgres.CompleteSetup"
	log := slog.With("op", op)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		log.Error("failed to begin transaction", "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const queryUpdate = `UPDATE users
		SET setup_completed = TRUE, last_allowance_amount = $1, current_balance = $1, updated = $2
		WHERE id = $3`
	tag, err := tx.Exec(ctx, queryUpdate, amount, at, userId)
	if err != nil {
		log.Error("failed to mark setup completed", "user_id", userId, "err", err)
		return fmt.Errorf("%s: update user: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		err = ErrUserNotFound
		return err
	}

	const queryInsert = `INSERT INTO allowances(id, user_id, amount, created_at) VALUES ($1, $2, $3, $4)`
	if _, err = tx.Exec(ctx, queryInsert, allowanceId, userId, amount, at); err != nil {
		log.Error("failed to insert first allowance", "user_id", userId, "err", err)
		return fmt.Errorf("%s: insert allowance: %w", op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		log.Error("failed to commit transaction", "err", err)
		return fmt.Errorf("%s: commit transaction: %w", op, err)
	}

	log.Info("setup completed", "user_id", userId, "amount", amount)
	return nil
}
