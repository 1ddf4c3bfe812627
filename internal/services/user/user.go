package user

import (
	"Allowance/internal/auth"
	"Allowance/internal/domain/models"
	"Allowance/internal/storage/postgres"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidAmount      = errors.New("invalid amount")
)

type Manager interface {
	CreateUser(ctx context.Context, email string, passHash []byte, createdAt time.Time) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserById(ctx context.Context, id int64) (models.User, error)
	CompleteSetup(ctx context.Context, userId int64, allowanceId uuid.UUID, amount decimal.Decimal, at time.Time) error
}

type UserService struct {
	log      *slog.Logger
	manager  Manager
	secret   string
	tokenTTL time.Duration
}

func New(log *slog.Logger, manager Manager, secret string, tokenTTL time.Duration) *UserService {
	return &UserService{
		log:      log,
		manager:  manager,
		secret:   secret,
		tokenTTL: tokenTTL,
	}
}

func (us *UserService) Register(ctx context.Context, email, password string) (int64, error) {
	const op = "user.Register"

	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		us.log.Error("failed to generate password hash", "op", op, "err", err)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := us.manager.CreateUser(ctx, email, passHash, time.Now())
	if err != nil {
		if errors.Is(err, postgres.ErrUserAlreadyExists) {
			us.log.Error("failed to register already existing user", "op", op, "email", email)
			return 0, ErrUserAlreadyExists
		}
		us.log.Error("failed to register user", "op", op, "email", email, "err", err)
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// Login checks credentials and issues a bearer token bound to the user's id
// and email. Wrong email and wrong password are indistinguishable to the
// caller.
func (us *UserService) Login(ctx context.Context, email, password string) (models.User, string, error) {
	const op = "user.Login"

	user, err := us.manager.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			us.log.Warn("login for unknown email", "op", op)
			return models.User{}, "", ErrInvalidCredentials
		}
		us.log.Error("failed to get user by email", "op", op, "err", err)
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PassHash), []byte(password)); err != nil {
		us.log.Warn("invalid credentials", "op", op, "user_id", user.Id)
		return models.User{}, "", ErrInvalidCredentials
	}

	token, err := auth.NewToken(user, us.secret, us.tokenTTL)
	if err != nil {
		us.log.Error("failed to issue token", "op", op, "user_id", user.Id, "err", err)
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	return user, token, nil
}

// CompleteSetup records the first allowance and marks the account set up.
func (us *UserService) CompleteSetup(ctx context.Context, userId int64, allowanceAmount decimal.Decimal) (models.User, error) {
	const op = "user.CompleteSetup"

	if allowanceAmount.LessThanOrEqual(decimal.Zero) {
		return models.User{}, ErrInvalidAmount
	}

	err := us.manager.CompleteSetup(ctx, userId, uuid.New(), allowanceAmount, time.Now())
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		us.log.Error("failed to complete setup", "op", op, "user_id", userId, "err", err)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := us.manager.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		us.log.Error("failed to re-read user", "op", op, "user_id", userId, "err", err)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	us.log.Info("setup completed", "op", op, "user_id", userId)
	return user, nil
}

func (us *UserService) Profile(ctx context.Context, userId int64) (models.User, error) {
	const op = "user.Profile"

	user, err := us.manager.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return models.User{}, ErrUserNotFound
		}
		us.log.Error("failed to get user", "op", op, "user_id", userId, "err", err)
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}
