package balance

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

	"Allowance/internal/domain/models"
	"Allowance/internal/storage/postgres"
)

type fakeStore struct {
	users        map[int64]*models.User
	allowances   map[int64][]models.AllowanceRecord
	transactions map[int64][]models.TransactionRecord

	updateCalls int
	listCalls   int
	failUpdate  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:        make(map[int64]*models.User),
		allowances:   make(map[int64][]models.AllowanceRecord),
		transactions: make(map[int64][]models.TransactionRecord),
	}
}

func (f *fakeStore) addUser(id int64) {
	f.users[id] = &models.User{Id: id, Email: "u@example.com"}
}

func (f *fakeStore) seed(userId int64, allowances []string, transactions []string) {
	for _, a := range allowances {
		f.allowances[userId] = append(f.allowances[userId], models.AllowanceRecord{
			Id: uuid.New(), UserId: userId, Amount: decimal.RequireFromString(a),
		})
	}
	for _, tr := range transactions {
		f.transactions[userId] = append(f.transactions[userId], models.TransactionRecord{
			Id: uuid.New(), UserId: userId, Amount: decimal.RequireFromString(tr),
		})
	}
}

func (f *fakeStore) ListAllowances(_ context.Context, userId int64) ([]models.AllowanceRecord, error) {
	f.listCalls++
	return f.allowances[userId], nil
}

func (f *fakeStore) ListTransactions(_ context.Context, userId int64) ([]models.TransactionRecord, error) {
	f.listCalls++
	return f.transactions[userId], nil
}

func (f *fakeStore) CreateAllowance(_ context.Context, id uuid.UUID, userId int64, amount decimal.Decimal, createdAt time.Time) (uuid.UUID, error) {
	u, ok := f.users[userId]
	if !ok {
		return uuid.Nil, postgres.ErrUserNotFound
	}
	f.allowances[userId] = append(f.allowances[userId], models.AllowanceRecord{
		Id: id, UserId: userId, Amount: amount, CreatedAt: createdAt,
	})
	u.LastAllowanceAmount = amount
	return id, nil
}

func (f *fakeStore) CreateTransaction(_ context.Context, id uuid.UUID, userId int64, amount decimal.Decimal, description string, createdAt time.Time) (uuid.UUID, error) {
	if _, ok := f.users[userId]; !ok {
		return uuid.Nil, postgres.ErrUserNotFound
	}
	f.transactions[userId] = append(f.transactions[userId], models.TransactionRecord{
		Id: id, UserId: userId, Amount: amount, Description: description, CreatedAt: createdAt,
	})
	return id, nil
}

func (f *fakeStore) GetUserById(_ context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, postgres.ErrUserNotFound
	}
	return *u, nil
}

func (f *fakeStore) UpdateBalance(_ context.Context, userId int64, balance decimal.Decimal, updatedAt time.Time) error {
	f.updateCalls++
	if f.failUpdate != nil {
		return f.failUpdate
	}
	u, ok := f.users[userId]
	if !ok {
		return postgres.ErrUserNotFound
	}
	u.CurrentBalance = balance
	u.Updated = updatedAt
	return nil
}

type fakeAudit struct {
	subjects []string
	events   []AuditEvent
}

func (f *fakeAudit) Publish(subject string, event any) error {
	f.subjects = append(f.subjects, subject)
	f.events = append(f.events, event.(AuditEvent))
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSync_Correctness(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name         string
		allowances   []string
		transactions []string
		want         string
	}{
		{name: "single allowance no spend", allowances: []string{"300"}, want: "300"},
		{name: "allowance minus expenses", allowances: []string{"300"}, transactions: []string{"100", "68"}, want: "132"},
		{name: "overspend goes negative", transactions: []string{"50"}, want: "-50"},
		{name: "empty history", want: "0"},
		{name: "decimal amounts", allowances: []string{"10.50", "0.25"}, transactions: []string{"3.10"}, want: "7.65"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newFakeStore()
			store.addUser(1)
			store.seed(1, tc.allowances, tc.transactions)

			svc := New(discardLogger(), store, store, nil)

			res, err := svc.Sync(context.Background(), 1)
			require.NoError(t, err)

			want := decimal.RequireFromString(tc.want)
			assert.True(t, res.Balance.Equal(want), "balance: got %s want %s", res.Balance, want)
			assert.True(t, res.Synced)
			assert.True(t, store.users[1].CurrentBalance.Equal(want), "snapshot not persisted")
			assert.True(t, res.User.CurrentBalance.Equal(want), "re-read snapshot mismatch")
		})
	}
}

func TestSync_Idempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(7)
	store.seed(7, []string{"300", "200"}, []string{"150"})

	svc := New(discardLogger(), store, store, nil)

	first, err := svc.Sync(context.Background(), 7)
	require.NoError(t, err)
	second, err := svc.Sync(context.Background(), 7)
	require.NoError(t, err)

	assert.True(t, first.Balance.Equal(second.Balance))
	assert.Equal(t, 2, store.updateCalls, "exactly one write per sync")
}

func TestSync_Isolation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(1)
	store.addUser(2)
	store.seed(1, []string{"100"}, nil)
	store.seed(2, []string{"999"}, nil)
	store.users[2].CurrentBalance = decimal.RequireFromString("555")

	svc := New(discardLogger(), store, store, nil)

	res, err := svc.Sync(context.Background(), 1)
	require.NoError(t, err)

	assert.True(t, res.Balance.Equal(decimal.RequireFromString("100")))
	assert.True(t, store.users[2].CurrentBalance.Equal(decimal.RequireFromString("555")),
		"syncing user 1 must not touch user 2")
}

func TestSync_UserVanished(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.seed(3, []string{"10"}, nil)

	svc := New(discardLogger(), store, store, nil)

	_, err := svc.Sync(context.Background(), 3)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSync_StoreFault(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(4)
	store.failUpdate = context.DeadlineExceeded

	svc := New(discardLogger(), store, store, nil)

	_, err := svc.Sync(context.Background(), 4)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, 1, store.updateCalls)
}

func TestSync_PublishesAuditEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(5)
	store.seed(5, []string{"40"}, []string{"15"})
	audit := &fakeAudit{}

	svc := New(discardLogger(), store, store, audit)

	_, err := svc.Sync(context.Background(), 5)
	require.NoError(t, err)

	require.Len(t, audit.subjects, 1)
	assert.Equal(t, SubjectSynced, audit.subjects[0])
	assert.Equal(t, "sync", audit.events[0].Kind)
	assert.True(t, audit.events[0].Balance.Equal(decimal.RequireFromString("25")))
}

func TestComputeTotals_Empty(t *testing.T) {
	t.Parallel()

	credits, debits := ComputeTotals(nil, nil)
	assert.True(t, credits.IsZero())
	assert.True(t, debits.IsZero())
}

func TestAddAllowance(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(1)
	svc := New(discardLogger(), store, store, nil)

	rec, err := svc.AddAllowance(context.Background(), 1, decimal.RequireFromString("50"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.UserId)
	assert.True(t, store.users[1].LastAllowanceAmount.Equal(decimal.RequireFromString("50")))

	_, err = svc.AddAllowance(context.Background(), 1, decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AddAllowance(context.Background(), 1, decimal.RequireFromString("-5"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAddExpense(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(1)
	svc := New(discardLogger(), store, store, nil)

	rec, err := svc.AddExpense(context.Background(), 1, decimal.RequireFromString("12.30"), "groceries")
	require.NoError(t, err)
	assert.Equal(t, "groceries", rec.Description)
	require.Len(t, store.transactions[1], 1)

	_, err = svc.AddExpense(context.Background(), 1, decimal.RequireFromString("-1"), "refund")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.AddExpense(context.Background(), 99, decimal.RequireFromString("1"), "")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestOverride_SeparateFromSync(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addUser(1)
	store.seed(1, []string{"100"}, nil)
	audit := &fakeAudit{}

	svc := New(discardLogger(), store, store, audit)

	forced := decimal.RequireFromString("1234")
	user, err := svc.Override(context.Background(), 1, forced, "admin@example.com", "data fix")
	require.NoError(t, err)
	assert.True(t, user.CurrentBalance.Equal(forced))

	// Override must not read the record history.
	assert.Equal(t, 0, store.listCalls)

	require.Len(t, audit.subjects, 1)
	assert.Equal(t, SubjectOverridden, audit.subjects[0])
	assert.Equal(t, "admin@example.com", audit.events[0].Actor)

	// A subsequent sync wins back the derived value.
	res, err := svc.Sync(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Balance.Equal(decimal.RequireFromString("100")))
}
