package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/morozkovaa/lingua-news/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Файл интеграционных тестов для пакета postgres (репозиторий audit.go):
// - запись события с JSONB-метаданными и обратная сверка содержимого;
// - событие без пользователя (user_id IS NULL) и без метаданных.

// TestIntegration_SaveSecurityEvent_WithMetadata_OK — happy-path:
// событие с user_id и метаданными читается обратно без потерь.
func TestIntegration_SaveSecurityEvent_WithMetadata_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	uid := uuid.New()
	now := time.Now().UTC()
	event := &models.SecurityEvent{
		ID:        uuid.New(),
		EventType: models.EventRefreshTokenReuse,
		Severity:  models.SeverityCritical,
		UserID:    &uid,
		IPAddress: "203.0.113.7",
		UserAgent: "integration-test/1.0",
		Metadata: map[string]any{
			"session_id": uuid.NewString(),
			"attempts":   float64(3),
		},
		CreatedAt: now,
	}
	require.NoError(t, st.SaveSecurityEvent(context.Background(), event))

	var (
		eventType string
		severity  string
		gotUserID uuid.UUID
		rawMeta   []byte
		createdAt time.Time
	)
	err := st.db.QueryRow(context.Background(),
		`SELECT event_type, severity, user_id, metadata, created_at
		 FROM security_events WHERE id = $1`, event.ID,
	).Scan(&eventType, &severity, &gotUserID, &rawMeta, &createdAt)
	require.NoError(t, err)

	require.Equal(t, models.EventRefreshTokenReuse, eventType)
	require.Equal(t, models.SeverityCritical, severity)
	require.Equal(t, uid, gotUserID)
	require.WithinDuration(t, now, createdAt, time.Second)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(rawMeta, &meta))
	require.Equal(t, event.Metadata, meta)
}

// TestIntegration_SaveSecurityEvent_Anonymous_NoMetadata — событие без пользователя
// и метаданных: в строке user_id и metadata остаются NULL.
func TestIntegration_SaveSecurityEvent_Anonymous_NoMetadata(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	event := &models.SecurityEvent{
		ID:        uuid.New(),
		EventType: models.EventRateLimitExceeded,
		Severity:  models.SeverityMedium,
		IPAddress: "203.0.113.7",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveSecurityEvent(context.Background(), event))

	var (
		gotUserID *uuid.UUID
		rawMeta   []byte
	)
	err := st.db.QueryRow(context.Background(),
		`SELECT user_id, metadata FROM security_events WHERE id = $1`, event.ID,
	).Scan(&gotUserID, &rawMeta)
	require.NoError(t, err)
	require.Nil(t, gotUserID)
	require.Nil(t, rawMeta)
}
