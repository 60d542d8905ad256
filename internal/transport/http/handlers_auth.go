package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	authService "cradle/internal/auth/service"
	"cradle/internal/transport/http/shared"
	dErrors "cradle/pkg/domain-errors"
	mwauth "cradle/pkg/platform/middleware/auth"
)

// AuthService defines the interface for the authentication flows.
type AuthService interface {
	Login(ctx context.Context, params authService.LoginParams) (*authService.AuthResult, error)
	Register(ctx context.Context, params authService.RegisterParams) (*authService.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*authService.AuthResult, error)
	Logout(ctx context.Context) error
}

// AuthHandler handles login, registration, and token lifecycle endpoints.
type AuthHandler struct {
	logger    *slog.Logger
	auth      AuthService
	validator mwauth.TokenValidator
}

// NewAuthHandler creates a new auth AuthHandler.
func NewAuthHandler(auth AuthService, validator mwauth.TokenValidator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		auth:      auth,
		validator: validator,
	}
}

// Register registers the auth routes with the chi router. Login, register,
// and refresh accept anonymous callers; logout needs the bearer token so the
// revoked session is attributable.
func (h *AuthHandler) Register(r chi.Router) {
	authRouter := chi.NewRouter()
	authRouter.Post("/login", h.handleLogin)
	authRouter.Post("/register", h.handleRegister)
	authRouter.Post("/refresh", h.handleRefresh)
	authRouter.Group(func(pr chi.Router) {
		pr.Use(mwauth.RequireAuth(h.validator, h.logger))
		pr.Post("/logout", h.handleLogout)
	})

	r.Mount("/v1/auth", authRouter)
}

const tokenTypeBearer = "bearer"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type loginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func tokenBody(result *authService.AuthResult) loginResponse {
	return loginResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    result.ExpiresIn,
	}
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateLoginRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.auth.Login(ctx, authService.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, h.logger, w, "login failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, tokenBody(result))
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateRegisterRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.auth.Register(ctx, authService.RegisterParams{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, h.logger, w, "registration failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, tokenBody(result))
}

func (h *AuthHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.RefreshToken == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "token refresh failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, tokenBody(result))
}

func (h *AuthHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.auth.Logout(ctx); err != nil {
		writeServiceError(ctx, h.logger, w, "logout failed", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateLoginRequest(req loginRequest) error {
	if !govalidator.StringLength(req.Email, "1", "255") || !govalidator.IsEmail(req.Email) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}
	if req.Password == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "password is required")
	}
	return nil
}

func validateRegisterRequest(req registerRequest) error {
	if !govalidator.StringLength(req.Email, "1", "255") || !govalidator.IsEmail(req.Email) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}
	if !govalidator.StringLength(req.Password, "8", "128") {
		return dErrors.New(dErrors.CodeInvalidInput, "password must be 8 to 128 characters")
	}
	if len(req.FullName) > 255 {
		return dErrors.New(dErrors.CodeInvalidInput, "full name too long")
	}
	return nil
}
