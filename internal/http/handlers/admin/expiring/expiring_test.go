package expiring

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
	"github.com/magabrotheeeer/parkease-coordinator/internal/services/lifecycle"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Expiring(ctx context.Context, windowDays int) ([]models.ExpiringAccount, error) {
	args := m.Called(ctx, windowDays)
	if res := args.Get(0); res != nil {
		return res.([]models.ExpiringAccount), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestExpiringHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	ends := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "окно по умолчанию",
			query: "",
			setupMock: func(m *MockService) {
				m.On("Expiring", mock.Anything, 3).Return([]models.ExpiringAccount{
					{ID: "acc-1", Username: "guest_1", IsGuest: true, EndsAt: &ends, DaysRemaining: 2},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"daysRemaining":2`,
		},
		{
			name:  "явное окно",
			query: "?days=7",
			setupMock: func(m *MockService) {
				m.On("Expiring", mock.Anything, 7).Return([]models.ExpiringAccount{}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"OK","data":{"users":[]}}`,
		},
		{
			name:           "нечисловое окно",
			query:          "?days=week",
			setupMock:      func(*MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid number of days`,
		},
		{
			name:  "неположительное окно",
			query: "?days=0",
			setupMock: func(m *MockService) {
				m.On("Expiring", mock.Anything, 0).
					Return(nil, fmt.Errorf("lifecycle.Expiring: %w", lifecycle.ErrInvalidDays)).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid number of days`,
		},
		{
			name:  "ошибка хранилища",
			query: "",
			setupMock: func(m *MockService) {
				m.On("Expiring", mock.Anything, 3).Return(nil, errors.New("timeout")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `internal error`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/subscriptions/expiring"+tt.query, nil)
			rec := httptest.NewRecorder()

			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
