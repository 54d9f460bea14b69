package forcelogoutall

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ForceEndAll(ctx context.Context, actor models.Identity, ip string) (int, error) {
	args := m.Called(ctx, actor, ip)
	return args.Int(0), args.Error(1)
}

func TestForceLogoutAllHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	admin := models.Identity{AccountID: "admin-1", Role: models.RoleAdmin}

	tests := []struct {
		name           string
		identity       models.Identity
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:     "успешное завершение",
			identity: admin,
			setupMock: func(m *MockService) {
				m.On("ForceEndAll", mock.Anything, admin, "192.0.2.1").Return(4, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"message":"4 sessions logged out successfully","count":4}}`,
		},
		{
			name:     "нет активных сессий",
			identity: admin,
			setupMock: func(m *MockService) {
				m.On("ForceEndAll", mock.Anything, admin, "192.0.2.1").Return(0, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `0 sessions logged out successfully`,
		},
		{
			name:     "не администратор",
			identity: models.Identity{AccountID: "op-1", Role: models.RoleOperator},
			setupMock: func(m *MockService) {
				m.On("ForceEndAll", mock.Anything, mock.Anything, "192.0.2.1").Return(0, models.ErrForbidden).Once()
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `admin access required`,
		},
		{
			name:     "ошибка хранилища",
			identity: admin,
			setupMock: func(m *MockService) {
				m.On("ForceEndAll", mock.Anything, admin, "192.0.2.1").Return(0, errors.New("deadlock")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/force-logout-all", nil)
			req.RemoteAddr = "192.0.2.1:5000"
			req = req.WithContext(middlewarectx.WithIdentity(req.Context(), tt.identity))
			rec := httptest.NewRecorder()

			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
