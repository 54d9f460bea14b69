package logout

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

func (m *MockService) Logout(ctx context.Context, accountID, deviceID string) error {
	return m.Called(ctx, accountID, deviceID).Error(0)
}

func TestLogoutHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	identity := models.Identity{AccountID: "acc-1", Role: models.RoleOperator}

	tests := []struct {
		name           string
		body           string
		withIdentity   bool
		setupMock      func(*MockService)
		expectedStatus int
	}{
		{
			name:         "успешный выход",
			body:         `{"deviceId":"tablet-1"}`,
			withIdentity: true,
			setupMock: func(m *MockService) {
				m.On("Logout", mock.Anything, "acc-1", "tablet-1").Return(nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "без личности",
			body:           `{"deviceId":"tablet-1"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "нет устройства",
			body:           `{}`,
			withIdentity:   true,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:         "ошибка сервиса",
			body:         `{"deviceId":"tablet-1"}`,
			withIdentity: true,
			setupMock: func(m *MockService) {
				m.On("Logout", mock.Anything, "acc-1", "tablet-1").Return(errors.New("db down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", strings.NewReader(tt.body))
			if tt.withIdentity {
				req = req.WithContext(middlewarectx.WithIdentity(req.Context(), identity))
			}
			rec := httptest.NewRecorder()
			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			svc.AssertExpectations(t)
		})
	}
}
