package user

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"Allowance/internal/auth"
	"Allowance/internal/domain/models"
	"Allowance/internal/storage/postgres"
)

type fakeManager struct {
	byEmail map[string]*models.User
	byId    map[int64]*models.User
	nextId  int64
}

func newFakeManager() *fakeManager {
	return &fakeManager{
		byEmail: make(map[string]*models.User),
		byId:    make(map[int64]*models.User),
	}
}

func (f *fakeManager) CreateUser(_ context.Context, email string, passHash []byte, createdAt time.Time) (int64, error) {
	if _, ok := f.byEmail[email]; ok {
		return 0, postgres.ErrUserAlreadyExists
	}
	f.nextId++
	u := &models.User{Id: f.nextId, Email: email, PassHash: string(passHash), Created: createdAt}
	f.byEmail[email] = u
	f.byId[u.Id] = u
	return u.Id, nil
}

func (f *fakeManager) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return models.User{}, postgres.ErrUserNotFound
	}
	return *u, nil
}

func (f *fakeManager) GetUserById(_ context.Context, id int64) (models.User, error) {
	u, ok := f.byId[id]
	if !ok {
		return models.User{}, postgres.ErrUserNotFound
	}
	return *u, nil
}

func (f *fakeManager) CompleteSetup(_ context.Context, userId int64, _ uuid.UUID, amount decimal.Decimal, at time.Time) error {
	u, ok := f.byId[userId]
	if !ok {
		return postgres.ErrUserNotFound
	}
	u.SetupCompleted = true
	u.LastAllowanceAmount = amount
	u.CurrentBalance = amount
	u.Updated = at
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testSecret = "test-secret"

func TestRegister(t *testing.T) {
	t.Parallel()

	m := newFakeManager()
	svc := New(discardLogger(), m, testSecret, time.Hour)

	id, err := svc.Register(context.Background(), "kid@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	stored := m.byId[id]
	require.NotNil(t, stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PassHash), []byte("s3cretpass")),
		"password must be stored hashed")

	_, err = svc.Register(context.Background(), "kid@example.com", "other")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	m := newFakeManager()
	svc := New(discardLogger(), m, testSecret, time.Hour)

	_, err := svc.Register(context.Background(), "kid@example.com", "s3cretpass")
	require.NoError(t, err)

	user, token, err := svc.Login(context.Background(), "kid@example.com", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, "kid@example.com", user.Email)

	claims, err := auth.ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, user.Id, claims.UserId)
	assert.Equal(t, user.Email, claims.Email)
}

func TestLogin_BadCredentials(t *testing.T) {
	t.Parallel()

	m := newFakeManager()
	svc := New(discardLogger(), m, testSecret, time.Hour)

	_, err := svc.Register(context.Background(), "kid@example.com", "s3cretpass")
	require.NoError(t, err)

	_, _, err = svc.Login(context.Background(), "kid@example.com", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown email is indistinguishable from a wrong password.
	_, _, err = svc.Login(context.Background(), "nobody@example.com", "s3cretpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCompleteSetup(t *testing.T) {
	t.Parallel()

	m := newFakeManager()
	svc := New(discardLogger(), m, testSecret, time.Hour)

	id, err := svc.Register(context.Background(), "kid@example.com", "s3cretpass")
	require.NoError(t, err)

	amount := decimal.RequireFromString("300")
	user, err := svc.CompleteSetup(context.Background(), id, amount)
	require.NoError(t, err)
	assert.True(t, user.SetupCompleted)
	assert.True(t, user.LastAllowanceAmount.Equal(amount))

	_, err = svc.CompleteSetup(context.Background(), id, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.CompleteSetup(context.Background(), 99, amount)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
