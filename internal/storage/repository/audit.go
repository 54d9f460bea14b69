package repository

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// InsertAudit добавляет запись в журнал аудита.
func (s *Storage) InsertAudit(ctx context.Context, e models.AuditEntry) error {
	const op = "storage.InsertAudit"
	if err := ctxErr(ctx, op); err != nil {
		return err
	}

	if _, err := s.DB.ExecContext(ctx,
		`INSERT INTO audit_logs (user_id, action, entity_type, entity_id, details, ip_address)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ActorID, e.Action, e.EntityType, e.EntityID, jsonArg(e.Details), e.IPAddress); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
