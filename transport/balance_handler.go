package handler

import (
	"Allowance/internal/domain/models"
	"Allowance/internal/domain/models/transport"
	"Allowance/internal/services/balance"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type BalanceHandler struct {
	log            *slog.Logger
	balanceService balanceService
	validate       *validator.Validate
	authMW         func(http.Handler) http.Handler
	adminMW        func(http.Handler) http.Handler
	idempotencyMW  func(http.Handler) http.Handler
}

type balanceService interface {
	Sync(ctx context.Context, userId int64) (balance.Reconciliation, error)
	AddAllowance(ctx context.Context, userId int64, amount decimal.Decimal) (models.AllowanceRecord, error)
	AddExpense(ctx context.Context, userId int64, amount decimal.Decimal, description string) (models.TransactionRecord, error)
	Allowances(ctx context.Context, userId int64) ([]models.AllowanceRecord, error)
	Expenses(ctx context.Context, userId int64) ([]models.TransactionRecord, error)
	Override(ctx context.Context, userId int64, newBalance decimal.Decimal, actor, reason string) (models.User, error)
}

func NewBalanceHandler(
	log *slog.Logger,
	balanceService balanceService,
	validate *validator.Validate,
	authMW func(http.Handler) http.Handler,
	adminMW func(http.Handler) http.Handler,
	idempotencyMW func(http.Handler) http.Handler,
) *BalanceHandler {
	return &BalanceHandler{
		log:            log,
		balanceService: balanceService,
		validate:       validate,
		authMW:         authMW,
		adminMW:        adminMW,
		idempotencyMW:  idempotencyMW,
	}
}

func (h *BalanceHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)
	router.Use(h.authMW)

	router.Post("/balance/sync", h.PostSync)
	router.Get("/allowances", h.GetAllowances)
	router.Get("/transactions", h.GetTransactions)

	router.Group(func(r chi.Router) {
		r.Use(h.idempotencyMW)

		r.Post("/allowances", h.PostAllowance)
		r.Post("/transactions", h.PostExpense)
	})

	router.Group(func(r chi.Router) {
		r.Use(h.adminMW)

		r.Post("/admin/balance/override", h.PostOverride)
	})

	return router
}

// PostSync recomputes the caller's balance from the full allowance and
// expense history and persists the result.
func (h *BalanceHandler) PostSync(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	res, err := h.balanceService.Sync(r.Context(), claims.UserId)
	if err != nil {
		if errors.Is(err, balance.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error("failed to sync balance", "user_id", claims.UserId, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to sync balance")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.SyncBalanceResponse{
		Message: "Balance synced successfully",
		Balance: transport.BalanceState{
			Current:         res.Balance,
			TotalAllowances: res.TotalAllowances,
			TotalExpenses:   res.TotalExpenses,
			Synced:          res.Synced,
		},
		User: transport.UserState{
			CurrentBalance:      res.User.CurrentBalance,
			LastAllowanceAmount: res.User.LastAllowanceAmount,
		},
	})
}

func (h *BalanceHandler) PostAllowance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var req transport.AddAllowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error("failed to decode allowance request", "err", err)
		writeError(w, http.StatusBadRequest, "Failed to decode request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	rec, err := h.balanceService.AddAllowance(r.Context(), claims.UserId, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, balance.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "Amount must be positive")
		case errors.Is(err, balance.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.log.Error("failed to add allowance", "user_id", claims.UserId, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to add allowance")
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transport.AddAllowanceResponse{
		Id:      rec.Id,
		Amount:  rec.Amount,
		Message: "Allowance added successfully",
	})
}

func (h *BalanceHandler) PostExpense(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var req transport.AddExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error("failed to decode expense request", "err", err)
		writeError(w, http.StatusBadRequest, "Failed to decode request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	rec, err := h.balanceService.AddExpense(r.Context(), claims.UserId, req.Amount, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, balance.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "Amount must be positive")
		case errors.Is(err, balance.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.log.Error("failed to add expense", "user_id", claims.UserId, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to add expense")
		}
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transport.AddExpenseResponse{
		Id:      rec.Id,
		Amount:  rec.Amount,
		Message: "Expense recorded successfully",
	})
}

func (h *BalanceHandler) GetAllowances(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	records, err := h.balanceService.Allowances(r.Context(), claims.UserId)
	if err != nil {
		h.log.Error("failed to list allowances", "user_id", claims.UserId, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list allowances")
		return
	}

	items := make([]transport.AllowanceItem, 0, len(records))
	for _, rec := range records {
		items = append(items, transport.AllowanceItem{
			Id:        rec.Id,
			Amount:    rec.Amount,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
		})
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(items)
}

func (h *BalanceHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	records, err := h.balanceService.Expenses(r.Context(), claims.UserId)
	if err != nil {
		h.log.Error("failed to list transactions", "user_id", claims.UserId, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}

	items := make([]transport.TransactionItem, 0, len(records))
	for _, rec := range records {
		items = append(items, transport.TransactionItem{
			Id:          rec.Id,
			Amount:      rec.Amount,
			Description: rec.Description,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		})
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(items)
}

// PostOverride force-sets a user's balance to the supplied value. This is
// the administrative bypass, not reconciliation; it requires an admin
// identity and a stated reason, and every call is audited.
func (h *BalanceHandler) PostOverride(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var req transport.OverrideBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error("failed to decode override request", "err", err)
		writeError(w, http.StatusBadRequest, "Failed to decode request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "userId, balance and reason are required")
		return
	}

	usr, err := h.balanceService.Override(r.Context(), req.UserId, req.Balance, claims.Email, req.Reason)
	if err != nil {
		if errors.Is(err, balance.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error("failed to override balance", "target_user_id", req.UserId, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to override balance")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.OverrideBalanceResponse{
		Message: "Balance overridden",
		UserId:  usr.Id,
		Balance: usr.CurrentBalance,
	})
}
