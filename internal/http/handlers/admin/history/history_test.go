package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) History(ctx context.Context, accountID string) ([]models.SubscriptionHistoryEntry, error) {
	args := m.Called(ctx, accountID)
	if res := args.Get(0); res != nil {
		return res.([]models.SubscriptionHistoryEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestHistoryHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "история найдена",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, "acc-1").Return([]models.SubscriptionHistoryEntry{
					{ID: 1, AccountID: "acc-1", ExtendedByAdminID: "admin-1", DaysAdded: 30, ExtensionType: "manual", NewEndDate: at, CreatedAt: at},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"daysAdded":30`,
		},
		{
			name: "пустая история",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, "acc-1").Return(nil, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"history":[]}}`,
		},
		{
			name: "аккаунт не найден",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, "acc-1").Return(nil, models.ErrAccountNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `user not found`,
		},
		{
			name: "ошибка хранилища",
			setupMock: func(m *MockService) {
				m.On("History", mock.Anything, "acc-1").Return(nil, errors.New("closed pool")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/users/acc-1/subscription-history", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "acc-1")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			rec := httptest.NewRecorder()

			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
