package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// ListVehiclesByOperator возвращает записи о транспорте оператора.
func (s *Storage) ListVehiclesByOperator(ctx context.Context, operatorID string) ([]models.Vehicle, error) {
	const op = "storage.ListVehiclesByOperator"
	if err := ctxErr(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, license_plate, vehicle_type, operator_id, entry_time, exit_time,
		        total_amount, is_paid, notes, created_at, updated_at
		 FROM vehicles
		 WHERE operator_id = $1
		 ORDER BY entry_time`, operatorID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := []models.Vehicle{}
	for rows.Next() {
		var v models.Vehicle
		var exit sql.NullTime
		if err = rows.Scan(&v.ID, &v.LicensePlate, &v.VehicleType, &v.OperatorID, &v.EntryTime,
			&exit, &v.TotalAmount, &v.IsPaid, &v.Notes, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if exit.Valid {
			v.ExitTime = &exit.Time
		}
		result = append(result, v)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// InsertVehicleIfAbsent вставляет запись, только если записи с таким ID нет.
// Возвращает true, если запись была вставлена.
func (s *Storage) InsertVehicleIfAbsent(ctx context.Context, v models.Vehicle) (bool, error) {
	const op = "storage.InsertVehicleIfAbsent"
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO vehicles (id, license_plate, vehicle_type, operator_id, entry_time, exit_time,
		                       total_amount, is_paid, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		v.ID, v.LicensePlate, v.VehicleType, v.OperatorID, v.EntryTime, v.ExitTime,
		v.TotalAmount, v.IsPaid, v.Notes, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n > 0, nil
}
