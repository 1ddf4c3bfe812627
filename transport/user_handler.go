package handler

import (
	"Allowance/internal/domain/models"
	"Allowance/internal/domain/models/transport"
	"Allowance/internal/services/user"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

type UserHandler struct {
	log         *slog.Logger
	userService userService
	validate    *validator.Validate
	authMW      func(http.Handler) http.Handler
}

type userService interface {
	Register(ctx context.Context, email, password string) (int64, error)
	Login(ctx context.Context, email, password string) (models.User, string, error)
	CompleteSetup(ctx context.Context, userId int64, allowanceAmount decimal.Decimal) (models.User, error)
	Profile(ctx context.Context, userId int64) (models.User, error)
}

func NewUserHandler(log *slog.Logger, userService userService, validate *validator.Validate, authMW func(http.Handler) http.Handler) *UserHandler {
	return &UserHandler{
		log:         log,
		userService: userService,
		validate:    validate,
		authMW:      authMW,
	}
}

func (h *UserHandler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.Recoverer)

	router.Post("/register", h.PostRegister)
	router.Post("/login", h.PostLogin)

	router.Group(func(routerWithAuth chi.Router) {
		routerWithAuth.Use(h.authMW)

		routerWithAuth.Post("/setup", h.PostSetup)
		routerWithAuth.Get("/me", h.GetMe)
	})

	return router
}

func (h *UserHandler) PostRegister(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var regReq transport.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&regReq); err != nil {
		h.log.Error("failed to decode register request", "err", err)
		writeError(w, http.StatusBadRequest, "Failed to decode request body")
		return
	}

	if err := h.validate.Struct(&regReq); err != nil {
		h.log.Error("failed to validate register request", "err", err)
		writeError(w, http.StatusBadRequest, "Invalid email or password format")
		return
	}

	userID, err := h.userService.Register(r.Context(), regReq.Email, regReq.Password)
	if err != nil {
		if errors.Is(err, user.ErrUserAlreadyExists) {
			writeError(w, http.StatusConflict, "User already exists")
			return
		}
		h.log.Error("failed to register user", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transport.RegisterResponse{
		Id:      userID,
		Message: "User registered successfully",
	})
}

func (h *UserHandler) PostLogin(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var loginReq transport.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&loginReq); err != nil {
		h.log.Error("failed to decode login request", "err", err)
		writeError(w, http.StatusBadRequest, "Failed to decode request body")
		return
	}

	if err := h.validate.Struct(&loginReq); err != nil {
		h.log.Error("failed to validate login request", "err", err)
		writeError(w, http.StatusBadRequest, "Invalid email or password format")
		return
	}

	usr, token, err := h.userService.Login(r.Context(), loginReq.Email, loginReq.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.log.Error("failed to login user", "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to login user")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transport.LoginResponse{
		Id:    usr.Id,
		Email: usr.Email,
		Token: token,
	})
}

func (h *UserHandler) PostSetup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	var req transport.SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error("failed to decode setup request", "err", err)
		writeError(w, http.StatusBadRequest, "Failed to decode request body")
		return
	}

	if err := h.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "allowanceAmount is required")
		return
	}

	usr, err := h.userService.CompleteSetup(r.Context(), claims.UserId, req.AllowanceAmount)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidAmount):
			writeError(w, http.StatusBadRequest, "Allowance amount must be positive")
		case errors.Is(err, user.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.log.Error("failed to complete setup", "user_id", claims.UserId, "err", err)
			writeError(w, http.StatusInternalServerError, "Failed to complete setup")
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profileResponse(usr))
}

func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "No token provided")
		return
	}

	usr, err := h.userService.Profile(r.Context(), claims.UserId)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.log.Error("failed to get profile", "user_id", claims.UserId, "err", err)
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profileResponse(usr))
}

func profileResponse(usr models.User) transport.ProfileResponse {
	return transport.ProfileResponse{
		Id:                  usr.Id,
		Email:               usr.Email,
		CurrentBalance:      usr.CurrentBalance,
		LastAllowanceAmount: usr.LastAllowanceAmount,
		SetupCompleted:      usr.SetupCompleted,
	}
}
