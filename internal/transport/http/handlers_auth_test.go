package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	authService "cradle/internal/auth/service"
	"cradle/internal/transport/http/mocks"
	id "cradle/pkg/domain"
	dErrors "cradle/pkg/domain-errors"
	mwauth "cradle/pkg/platform/middleware/auth"
	"cradle/pkg/platform/middleware/requestscope"
)

//go:generate mockgen -source=handlers_auth.go -destination=mocks/auth-mocks.go -package=mocks AuthService
type AuthHandlerSuite struct {
	suite.Suite
}

// stubValidator satisfies mwauth.TokenValidator without real JWT parsing.
type stubValidator struct {
	claims *mwauth.Claims
	err    error
}

func (s stubValidator) ValidateAccessToken(string) (*mwauth.Claims, error) {
	return s.claims, s.err
}

func validClaims() *mwauth.Claims {
	return &mwauth.Claims{
		UserID:    id.NewUserID().String(),
		TenantID:  "tenant-alpha",
		Email:     "user@example.com",
		Roles:     []string{"user"},
		SessionID: id.NewSessionID().String(),
	}
}

func tokenResult() *authService.AuthResult {
	return &authService.AuthResult{
		TokenPair: authService.TokenPair{
			AccessToken:  "access-token-123",
			RefreshToken: "refresh-token-456",
			ExpiresIn:    900,
		},
	}
}

func (s *AuthHandlerSuite) TestHandler_Login() {
	validBody := `{"email":"user@example.com","password":"hunter2hunter2"}`

	s.T().Run("valid credentials - 200", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Login(gomock.Any(), authService.LoginParams{
			Email:    "user@example.com",
			Password: "hunter2hunter2",
		}).Return(tokenResult(), nil)

		status, got, errBody := s.doPost(t, router, "/v1/auth/login", validBody, "")

		assert.Equal(t, http.StatusOK, status)
		require.NotNil(t, got)
		assert.Nil(t, errBody)
		assert.Equal(t, "access-token-123", got.AccessToken)
		assert.Equal(t, "refresh-token-456", got.RefreshToken)
		assert.Equal(t, "bearer", got.TokenType)
		assert.Equal(t, int64(900), got.ExpiresIn)
	})

	s.T().Run("returns 400 when request body is invalid json", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/login", "{bad-json", "")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeBadRequest), errBody["error"])
	})

	s.T().Run("returns 400 when email is invalid", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/login",
			`{"email":"not-an-email","password":"hunter2hunter2"}`, "")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInvalidInput), errBody["error"])
	})

	s.T().Run("returns 400 when password missing", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/login",
			`{"email":"user@example.com"}`, "")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInvalidInput), errBody["error"])
	})

	// Unknown email, wrong password and locked account share one message so
	// the endpoint never confirms whether an account exists.
	s.T().Run("credential failures - 401", func(t *testing.T) {
		tests := []struct {
			name       string
			serviceErr error
		}{
			{
				name:       "unknown email",
				serviceErr: dErrors.New(dErrors.CodeUnauthorized, "Invalid email or password"),
			},
			{
				name:       "wrong password",
				serviceErr: dErrors.New(dErrors.CodeUnauthorized, "Invalid email or password"),
			},
			{
				name:       "account locked",
				serviceErr: dErrors.New(dErrors.CodeUnauthorized, "Invalid email or password"),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockService, router := s.newHandler(t)
				mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, tt.serviceErr)

				status, got, errBody := s.doPost(t, router, "/v1/auth/login", validBody, "")

				assert.Equal(t, http.StatusUnauthorized, status)
				assert.Nil(t, got)
				assert.Equal(t, string(dErrors.CodeUnauthorized), errBody["error"])
				assert.Equal(t, "Invalid email or password", errBody["error_description"])
			})
		}
	})

	s.T().Run("inactive account - 403", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		serviceErr := dErrors.New(dErrors.CodeForbidden, "Account is deactivated")
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, serviceErr)

		status, got, errBody := s.doPost(t, router, "/v1/auth/login", validBody, "")

		assert.Equal(t, http.StatusForbidden, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeForbidden), errBody["error"])
	})

	s.T().Run("returns 500 with sanitized body when service fails", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		cause := dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to load user")
		mockService.EXPECT().Login(gomock.Any(), gomock.Any()).Return(nil, cause)

		status, got, errBody := s.doPost(t, router, "/v1/auth/login", validBody, "")

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInternal), errBody["error"])
		assert.NotContains(t, errBody["error_description"], "connection refused")
	})
}

func (s *AuthHandlerSuite) TestHandler_Register() {
	validBody := `{"email":"new@example.com","full_name":"New User","password":"longenough"}`

	s.T().Run("valid registration - 201 with tokens", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Register(gomock.Any(), authService.RegisterParams{
			Email:    "new@example.com",
			FullName: "New User",
			Password: "longenough",
		}).Return(tokenResult(), nil)

		status, got, errBody := s.doPost(t, router, "/v1/auth/register", validBody, "")

		assert.Equal(t, http.StatusCreated, status)
		require.NotNil(t, got)
		assert.Nil(t, errBody)
		assert.Equal(t, "access-token-123", got.AccessToken)
		assert.Equal(t, "bearer", got.TokenType)
	})

	s.T().Run("returns 400 when password too short", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/register",
			`{"email":"new@example.com","password":"short"}`, "")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInvalidInput), errBody["error"])
	})

	s.T().Run("returns 400 when email is invalid", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Register(gomock.Any(), gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/register",
			`{"email":"nope","password":"longenough"}`, "")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInvalidInput), errBody["error"])
	})

	s.T().Run("duplicate email - 409", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		serviceErr := dErrors.New(dErrors.CodeConflict, "Email already registered")
		mockService.EXPECT().Register(gomock.Any(), gomock.Any()).Return(nil, serviceErr)

		status, got, errBody := s.doPost(t, router, "/v1/auth/register", validBody, "")

		assert.Equal(t, http.StatusConflict, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeConflict), errBody["error"])
		assert.Equal(t, "Email already registered", errBody["error_description"])
	})
}

func (s *AuthHandlerSuite) TestHandler_Refresh() {
	s.T().Run("valid refresh token - 200 with rotated pair", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Refresh(gomock.Any(), "refresh-token-456").Return(tokenResult(), nil)

		status, got, errBody := s.doPost(t, router, "/v1/auth/refresh",
			`{"refresh_token":"refresh-token-456"}`, "")

		assert.Equal(t, http.StatusOK, status)
		require.NotNil(t, got)
		assert.Nil(t, errBody)
		assert.Equal(t, "access-token-123", got.AccessToken)
	})

	s.T().Run("returns 400 when refresh token missing", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Refresh(gomock.Any(), gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/refresh", `{}`, "")

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInvalidInput), errBody["error"])
	})

	// Expired, revoked and unknown tokens are indistinguishable to the caller.
	s.T().Run("rejected refresh tokens - 401", func(t *testing.T) {
		tests := []struct {
			name       string
			serviceErr error
		}{
			{
				name:       "expired token",
				serviceErr: dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired refresh token"),
			},
			{
				name:       "revoked session",
				serviceErr: dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired refresh token"),
			},
			{
				name:       "unknown token",
				serviceErr: dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired refresh token"),
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				mockService, router := s.newHandler(t)
				mockService.EXPECT().Refresh(gomock.Any(), "stale-token").Return(nil, tt.serviceErr)

				status, got, errBody := s.doPost(t, router, "/v1/auth/refresh",
					`{"refresh_token":"stale-token"}`, "")

				assert.Equal(t, http.StatusUnauthorized, status)
				assert.Nil(t, got)
				assert.Equal(t, string(dErrors.CodeUnauthorized), errBody["error"])
			})
		}
	})
}

func (s *AuthHandlerSuite) TestHandler_Logout() {
	s.T().Run("valid token - 204 and session revoked", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Logout(gomock.Any()).Return(nil)

		status, got, errBody := s.doPost(t, router, "/v1/auth/logout", "", "test-token")

		assert.Equal(t, http.StatusNoContent, status)
		assert.Nil(t, got)
		assert.Nil(t, errBody)
	})

	s.T().Run("missing bearer token - 401", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		mockService.EXPECT().Logout(gomock.Any()).Times(0)

		status, got, errBody := s.doPost(t, router, "/v1/auth/logout", "", "")

		assert.Equal(t, http.StatusUnauthorized, status)
		assert.Nil(t, got)
		assert.Equal(t, "unauthorized", errBody["error"])
	})

	s.T().Run("service failure - 500", func(t *testing.T) {
		mockService, router := s.newHandler(t)
		serviceErr := dErrors.Wrap(errors.New("redis down"), dErrors.CodeInternal, "failed to revoke session")
		mockService.EXPECT().Logout(gomock.Any()).Return(serviceErr)

		status, got, errBody := s.doPost(t, router, "/v1/auth/logout", "", "test-token")

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Nil(t, got)
		assert.Equal(t, string(dErrors.CodeInternal), errBody["error"])
		assert.NotContains(t, errBody["error_description"], "redis")
	})
}

func TestAuthHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerSuite))
}

func (s *AuthHandlerSuite) newHandler(t *testing.T) (*mocks.MockAuthService, *chi.Mux) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	mockService := mocks.NewMockAuthService(ctrl)
	handler := NewAuthHandler(mockService, stubValidator{claims: validClaims()}, logger)
	r := chi.NewRouter()
	r.Use(requestscope.Establish())
	handler.Register(r)
	return mockService, r
}

// doPost drives one endpoint and decodes either the token payload or the
// error envelope. An empty token leaves the Authorization header off.
func (s *AuthHandlerSuite) doPost(t *testing.T, router *chi.Mux, target, body, token string) (int, *loginResponse, map[string]string) {
	t.Helper()
	httpReq := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", "tenant-alpha")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, httpReq)

	raw, err := io.ReadAll(rr.Body)
	require.NoError(t, err)

	if rr.Code == http.StatusNoContent {
		return rr.Code, nil, nil
	}
	if rr.Code == http.StatusOK || rr.Code == http.StatusCreated {
		var res loginResponse
		require.NoError(t, json.Unmarshal(raw, &res))
		return rr.Code, &res, nil
	}
	var errBody map[string]string
	require.NoError(t, json.Unmarshal(raw, &errBody))
	return rr.Code, nil, errBody
}
