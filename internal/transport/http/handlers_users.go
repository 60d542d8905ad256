package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"

	"cradle/internal/identity"
	identityService "cradle/internal/identity/service"
	"cradle/internal/transport/http/shared"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	"cradle/pkg/platform/middleware/admin"
	mwauth "cradle/pkg/platform/middleware/auth"
	"cradle/pkg/requestcontext"
)

// UserService defines the interface for tenant-scoped user management.
type UserService interface {
	Get(ctx context.Context, userID id.UserID) (*identity.User, error)
	List(ctx context.Context) ([]*identity.User, error)
	Create(ctx context.Context, params identityService.CreateParams) (*identity.User, error)
	Update(ctx context.Context, userID id.UserID, params identityService.UpdateParams) (*identity.User, error)
	Deactivate(ctx context.Context, userID id.UserID) error
	Export(ctx context.Context) ([]*identity.User, error)
}

// UserHandler handles profile and user administration endpoints.
type UserHandler struct {
	logger    *slog.Logger
	users     UserService
	validator mwauth.TokenValidator
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(users UserService, validator mwauth.TokenValidator, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		logger:    logger,
		users:     users,
		validator: validator,
	}
}

// Register registers the user routes with the chi router. Everything needs a
// bearer token; administration needs the admin role on top.
func (h *UserHandler) Register(r chi.Router) {
	usersRouter := chi.NewRouter()
	usersRouter.Use(mwauth.RequireAuth(h.validator, h.logger))
	usersRouter.Get("/me", h.handleGetMe)
	usersRouter.Patch("/me", h.handleUpdateMe)
	usersRouter.Group(func(ar chi.Router) {
		ar.Use(admin.RequireRole(identity.RoleAdmin, h.logger))
		ar.Get("/", h.handleList)
		ar.Post("/", h.handleCreate)
		ar.Get("/export", h.handleExport)
		ar.Get("/{userID}", h.handleGet)
		ar.Patch("/{userID}", h.handleUpdate)
		ar.Delete("/{userID}", h.handleDeactivate)
	})

	r.Mount("/v1/users", usersRouter)
}

type createUserRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// updateUserRequest covers both self and admin patches. The self endpoint
// applies only the profile fields; role and status changes stay admin-only.
type updateUserRequest struct {
	Email    *string  `json:"email"`
	FullName *string  `json:"full_name"`
	Password *string  `json:"password"`
	Active   *bool    `json:"is_active"`
	Roles    []string `json:"roles"`
}

type userResponse struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	Roles       []string   `json:"roles"`
	Active      bool       `json:"is_active"`
	Verified    bool       `json:"is_verified"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type userListResponse struct {
	Users []userResponse `json:"users"`
	Count int            `json:"count"`
}

func toUserResponse(user *identity.User) userResponse {
	return userResponse{
		ID:          user.ID.String(),
		TenantID:    user.TenantID.String(),
		Email:       user.Email,
		FullName:    user.FullName,
		Roles:       user.Roles,
		Active:      user.Active,
		Verified:    user.Verified,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func toUserListResponse(users []*identity.User) userListResponse {
	resp := userListResponse{
		Users: make([]userResponse, 0, len(users)),
		Count: len(users),
	}
	for _, user := range users {
		resp.Users = append(resp.Users, toUserResponse(user))
	}
	return resp
}

// callerID returns the resolved user id. RequireAuth has already run on
// every route here; a missing principal is a wiring bug.
func (h *UserHandler) callerID(ctx context.Context, w http.ResponseWriter) (id.UserID, bool) {
	rc, err := requestcontext.Current(ctx)
	if err != nil || rc.UserID.IsZero() {
		h.logger.ErrorContext(ctx, "resolved identity missing despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.UserID{}, false
	}
	return rc.UserID, true
}

func (h *UserHandler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callerID, ok := h.callerID(ctx, w)
	if !ok {
		return
	}

	user, err := h.users.Get(ctx, callerID)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to load profile", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	callerID, ok := h.callerID(ctx, w)
	if !ok {
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateUpdateRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	// Profile fields only; a self patch never touches roles or status.
	user, err := h.users.Update(ctx, callerID, identityService.UpdateParams{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to update profile", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.List(ctx)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to list users", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toUserListResponse(users))
}

func (h *UserHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateCreateRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	user, err := h.users.Create(ctx, identityService.CreateParams{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to create user", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *UserHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid user id"))
		return
	}

	user, err := h.users.Get(ctx, userID)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to load user", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid user id"))
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if err := validateUpdateRequest(req); err != nil {
		shared.WriteError(w, err)
		return
	}

	user, err := h.users.Update(ctx, userID, identityService.UpdateParams{
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Active:   req.Active,
		Roles:    req.Roles,
	})
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to update user", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid user id"))
		return
	}

	if err := h.users.Deactivate(ctx, userID); err != nil {
		writeServiceError(ctx, h.logger, w, "failed to deactivate user", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.Export(ctx)
	if err != nil {
		writeServiceError(ctx, h.logger, w, "failed to export users", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toUserListResponse(users))
}

func validateCreateRequest(req createUserRequest) error {
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

func validateUpdateRequest(req updateUserRequest) error {
	if req.Email != nil && (!govalidator.StringLength(*req.Email, "1", "255") || !govalidator.IsEmail(*req.Email)) {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}
	if req.Password != nil && !govalidator.StringLength(*req.Password, "8", "128") {
		return dErrors.New(dErrors.CodeInvalidInput, "password must be 8 to 128 characters")
	}
	if req.FullName != nil && len(*req.FullName) > 255 {
		return dErrors.New(dErrors.CodeInvalidInput, "full name too long")
	}
	return nil
}
