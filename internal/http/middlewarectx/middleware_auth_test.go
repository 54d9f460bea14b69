package middlewarectx_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (models.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(models.Identity), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestJWTMiddleware(t *testing.T) {
	verifier := new(VerifierMock)
	logger := newNoopLogger()

	handlerCalled := false
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := middlewarectx.IdentityFrom(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "acc-1", identity.AccountID)
		assert.Equal(t, models.RoleOperator, identity.Role)
		w.WriteHeader(http.StatusOK)
	})

	handler := middlewarectx.JWTMiddleware(verifier, logger)(nextHandler)

	tests := []struct {
		name           string
		authHeader     string
		mockIdentity   models.Identity
		mockErr        error
		callsVerifier  bool
		wantStatusCode int
		wantCalled     bool
	}{
		{
			name:           "missing Authorization header",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "invalid Authorization header prefix",
			authHeader:     "Basic sometoken",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "token verification error",
			authHeader:     "Bearer token",
			mockErr:        errors.New("invalid or expired token"),
			callsVerifier:  true,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "valid token",
			authHeader:     "Bearer validtoken",
			mockIdentity:   models.Identity{AccountID: "acc-1", Username: "op", Role: models.RoleOperator},
			callsVerifier:  true,
			wantStatusCode: http.StatusOK,
			wantCalled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled = false
			verifier.ExpectedCalls = nil
			verifier.Calls = nil
			if tt.callsVerifier {
				verifier.On("Verify", mock.Anything, strings.TrimPrefix(tt.authHeader, "Bearer ")).
					Return(tt.mockIdentity, tt.mockErr).Once()
			}

			req := httptest.NewRequest(http.MethodGet, "/somepath", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantCalled, handlerCalled)
			verifier.AssertExpectations(t)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := middlewarectx.AdminOnly(newNoopLogger())(next)

	tests := []struct {
		name     string
		identity *models.Identity
		want     int
	}{
		{name: "no identity", want: http.StatusUnauthorized},
		{name: "operator", identity: &models.Identity{AccountID: "acc-1", Role: models.RoleOperator}, want: http.StatusForbidden},
		{name: "admin", identity: &models.Identity{AccountID: "acc-0", Role: models.RoleAdmin}, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin/force-logout", nil)
			if tt.identity != nil {
				req = req.WithContext(middlewarectx.WithIdentity(req.Context(), *tt.identity))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
