//go:build integration

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/parkease-coordinator/internal/migrations"
	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var storage *Storage
	for range 10 {
		storage, err = New(dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory создаёт тестовые данные напрямую через хранилище
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создаёт фабрику тестовых данных
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateAccount создаёт аккаунт и возвращает его ID
func (f *TestDataFactory) CreateAccount(t *testing.T, username string, role models.Role, trialEnd, subEnd *time.Time) string {
	id, err := f.storage.CreateAccount(context.Background(), models.Account{
		Username:            username,
		PasswordHash:        "hash",
		Role:                role,
		IsActive:            true,
		TrialStartDate:      time.Now(),
		TrialEndDate:        trialEnd,
		SubscriptionEndDate: subEnd,
	})
	require.NoError(t, err)
	return id
}

// CreateVehicle добавляет запись о транспорте оператора
func (f *TestDataFactory) CreateVehicle(t *testing.T, id, operatorID string) {
	now := time.Now().UTC().Truncate(time.Second)
	inserted, err := f.storage.InsertVehicleIfAbsent(context.Background(), models.Vehicle{
		ID: id, LicensePlate: "KA01" + id, VehicleType: "car", OperatorID: operatorID,
		EntryTime: now, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}
