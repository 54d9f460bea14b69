package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/parkease-coordinator/internal/models"
)

// Stats собирает операционный срез за сутки [dayStart, dayEnd).
func (s *Storage) Stats(ctx context.Context, dayStart, dayEnd time.Time) (models.Stats, error) {
	const op = "storage.Stats"
	if err := ctxErr(ctx, op); err != nil {
		return models.Stats{}, err
	}

	var st models.Stats
	err := s.DB.QueryRowContext(ctx,
		`SELECT
		     (SELECT COUNT(*) FROM vehicles),
		     (SELECT COUNT(*) FROM vehicles WHERE exit_time IS NULL),
		     (SELECT COALESCE(SUM(total_amount), 0)::float8 FROM vehicles
		          WHERE is_paid AND exit_time >= $1 AND exit_time < $2),
		     (SELECT COUNT(*) FROM sessions WHERE is_active),
		     (SELECT COUNT(*) FROM vehicles WHERE entry_time >= $1 AND entry_time < $2)`,
		dayStart, dayEnd).
		Scan(&st.TotalVehicles, &st.ActiveVehicles, &st.TodayRevenue, &st.ActiveUsers, &st.TodayEntries)
	if err != nil {
		return models.Stats{}, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}
