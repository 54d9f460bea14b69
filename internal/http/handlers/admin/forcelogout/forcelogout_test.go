package forcelogout

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

type MockService struct {
	mock.Mock
}

func (m *MockService) ForceEnd(ctx context.Context, accountID, deviceID string, actor models.Identity, ip string) error {
	args := m.Called(ctx, accountID, deviceID, actor, ip)
	return args.Error(0)
}

func TestForceLogoutHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	admin := models.Identity{AccountID: "admin-1", Role: models.RoleAdmin}

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное завершение",
			body: `{"userId":"acc-1","deviceId":"dev-A"}`,
			setupMock: func(m *MockService) {
				m.On("ForceEnd", mock.Anything, "acc-1", "dev-A", admin, "192.0.2.1").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `Device logged out successfully`,
		},
		{
			name: "устройство уже вышло",
			body: `{"userId":"acc-1","deviceId":"dev-Z"}`,
			setupMock: func(m *MockService) {
				m.On("ForceEnd", mock.Anything, "acc-1", "dev-Z", admin, "192.0.2.1").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `Device logged out successfully`,
		},
		{
			name:           "нет устройства",
			body:           `{"userId":"acc-1"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field DeviceID is a required field`,
		},
		{
			name:           "некорректный JSON",
			body:           `{`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid request body`,
		},
		{
			name: "ошибка хранилища",
			body: `{"userId":"acc-1","deviceId":"dev-A"}`,
			setupMock: func(m *MockService) {
				m.On("ForceEnd", mock.Anything, "acc-1", "dev-A", admin, "192.0.2.1").
					Return(errors.New("conn reset")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/force-logout", strings.NewReader(tt.body))
			req.RemoteAddr = "192.0.2.1:5000"
			req = req.WithContext(middlewarectx.WithIdentity(req.Context(), admin))
			rec := httptest.NewRecorder()

			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
