package backup

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

	"github.com/magabrotheeeer/parkease-coordinator/internal/http/middlewarectx"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) BackupNow(ctx context.Context, accountID string, actor models.Identity) (*models.BackupSnapshot, error) {
	args := m.Called(ctx, accountID, actor)
	if res := args.Get(0); res != nil {
		return res.(*models.BackupSnapshot), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestBackupHandler(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
	admin := models.Identity{AccountID: "admin-1", Role: models.RoleAdmin}
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   []string
	}{
		{
			name: "снимок сохранён",
			setupMock: func(m *MockService) {
				m.On("BackupNow", mock.Anything, "acc-1", admin).Return(&models.BackupSnapshot{
					ID:        12,
					AccountID: "acc-1",
					CreatedAt: at,
					Bundle: models.BackupBundle{
						Account:  models.AccountSnapshot{ID: "acc-1", Username: "op"},
						Vehicles: []models.Vehicle{{ID: "v-1", LicensePlate: "KA01AB1234"}},
						Reason:   models.BackupReasonManual,
					},
				}, nil).Once()
			},
			expectedStatus: http.StatusOK,
			expectedBody: []string{
				`"message":"User data backed up successfully"`,
				`"snapshotId":12`,
				`"license_plate":"KA01AB1234"`,
				`"backupType":"manual"`,
			},
		},
		{
			name: "аккаунт не найден",
			setupMock: func(m *MockService) {
				m.On("BackupNow", mock.Anything, "acc-1", admin).Return(nil, models.ErrAccountNotFound).Once()
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   []string{`user not found`},
		},
		{
			name: "ошибка хранилища",
			setupMock: func(m *MockService) {
				m.On("BackupNow", mock.Anything, "acc-1", admin).Return(nil, errors.New("disk full")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   []string{`internal error`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/users/acc-1/backup", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "acc-1")
			ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
			req = req.WithContext(middlewarectx.WithIdentity(ctx, admin))
			rec := httptest.NewRecorder()

			New(log, svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			for _, want := range tt.expectedBody {
				assert.Contains(t, rec.Body.String(), want)
			}
			svc.AssertExpectations(t)
		})
	}
}
