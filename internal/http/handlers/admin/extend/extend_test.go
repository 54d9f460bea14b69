package extend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/lifecycle"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Extend(ctx context.Context, accountID string, daysToAdd int, extensionType string, actor models.Identity, ip string) (*lifecycle.Extension, error) {
	args := m.Called(ctx, accountID, daysToAdd, extensionType, actor, ip)
	if res := args.Get(0); res != nil {
		return res.(*lifecycle.Extension), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestExtendHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	admin := models.Identity{AccountID: "admin-1", Role: models.RoleAdmin}
	newEnd := time.Date(2025, 4, 9, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешное продление",
			body: `{"days":30}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, "acc-1", 30, "manual", admin, "192.0.2.1").Return(&lifecycle.Extension{
					NewEndDate: newEnd,
					Restore:    models.RestoreResult{Success: true},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"newEndDate":"2025-04-09T09:00:00Z"`,
		},
		{
			name: "тип продления передаётся",
			body: `{"days":7,"type":"promo"}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, "acc-1", 7, "promo", admin, "192.0.2.1").
					Return(&lifecycle.Extension{NewEndDate: newEnd}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"message":"Subscription extended by 7 days"`,
		},
		{
			name:           "ноль дней",
			body:           `{"days":0}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field Days is a required field`,
		},
		{
			name:           "отрицательное число дней",
			body:           `{"days":-5}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `field Days must be at least 0`,
		},
		{
			name:           "некорректный JSON",
			body:           `{"days":"x"}`,
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid request body`,
		},
		{
			name: "аккаунт не найден",
			body: `{"days":30}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, "acc-1", 30, "manual", admin, "192.0.2.1").
					Return(nil, models.ErrAccountNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `{"status":"Error","error":"user not found"}`,
		},
		{
			name: "ошибка хранилища",
			body: `{"days":30}`,
			setupMock: func(m *MockService) {
				m.On("Extend", mock.Anything, "acc-1", 30, "manual", admin, "192.0.2.1").
					Return(nil, errors.New("tx aborted")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/acc-1/extend", strings.NewReader(tt.body))
			req.RemoteAddr = "192.0.2.1:5000"
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "acc-1")
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			req = req.WithContext(middlewarectx.WithIdentity(ctx, admin))
			rec := httptest.NewRecorder()

			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
