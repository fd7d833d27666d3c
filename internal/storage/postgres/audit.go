package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/morozkovaa/lingua-news/internal/models"
)

// SaveSecurityEvent добавляет событие в журнал аудита.
// Журнал append-only: ни UPDATE, ни DELETE здесь нет.
func (s *Storage) SaveSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	const op = "storage.postgres.SaveSecurityEvent"

	var meta []byte
	if event.Metadata != nil {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		meta = b
	}

	query := `
		INSERT INTO security_events(id, event_type, severity, user_id, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		event.ID,
		event.EventType,
		event.Severity,
		event.UserID,
		event.IPAddress,
		event.UserAgent,
		meta,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
