package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/morozkovaa/lingua-news/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Файл интеграционных тестов для пакета postgres (репозиторий blacklist.go):
// - идемпотентный upsert по token_id (повтор не перетирает первую запись);
// - просроченные записи невидимы для IsBlacklisted до физической очистки;
// - фоновая очистка DeleteExpiredBlacklistEntries.

// TestIntegration_SaveBlacklistEntry_And_IsBlacklisted_OK — happy-path:
// добавленный jti виден в реестре, посторонний — нет.
func TestIntegration_SaveBlacklistEntry_And_IsBlacklisted_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	now := time.Now().UTC()
	entry := &models.BlacklistEntry{
		TokenID:       uuid.NewString(),
		TokenHash:     "hash",
		UserID:        uuid.New(),
		Reason:        "logout",
		BlacklistedAt: now,
		ExpiresAt:     now.Add(15 * time.Minute),
	}
	require.NoError(t, st.SaveBlacklistEntry(context.Background(), entry))

	revoked, err := st.IsBlacklisted(context.Background(), entry.TokenID)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = st.IsBlacklisted(context.Background(), uuid.NewString())
	require.NoError(t, err)
	require.False(t, revoked)
}

// TestIntegration_SaveBlacklistEntry_Idempotent — повторное добавление того же jti
// не возвращает ошибку и не изменяет первую запись (reason сохраняется).
func TestIntegration_SaveBlacklistEntry_Idempotent(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	now := time.Now().UTC()
	entry := &models.BlacklistEntry{
		TokenID:       uuid.NewString(),
		TokenHash:     "hash",
		UserID:        uuid.New(),
		Reason:        "logout",
		BlacklistedAt: now,
		ExpiresAt:     now.Add(15 * time.Minute),
	}
	require.NoError(t, st.SaveBlacklistEntry(context.Background(), entry))

	dup := *entry
	dup.Reason = "reuse-cascade"
	require.NoError(t, st.SaveBlacklistEntry(context.Background(), &dup))

	var reason string
	err := st.db.QueryRow(context.Background(),
		`SELECT reason FROM blacklisted_tokens WHERE token_id = $1`, entry.TokenID,
	).Scan(&reason)
	require.NoError(t, err)
	require.Equal(t, "logout", reason)
}

// TestIntegration_IsBlacklisted_ExpiredEntryInvisible — запись с expires_at в прошлом
// считается отсутствующей ещё до физического удаления.
func TestIntegration_IsBlacklisted_ExpiredEntryInvisible(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	now := time.Now().UTC()
	entry := &models.BlacklistEntry{
		TokenID:       uuid.NewString(),
		TokenHash:     "hash",
		UserID:        uuid.New(),
		Reason:        "logout",
		BlacklistedAt: now.Add(-time.Hour),
		ExpiresAt:     now.Add(-time.Minute),
	}
	require.NoError(t, st.SaveBlacklistEntry(context.Background(), entry))

	revoked, err := st.IsBlacklisted(context.Background(), entry.TokenID)
	require.NoError(t, err)
	require.False(t, revoked)
}

// TestIntegration_DeleteExpiredBlacklistEntries — удаляются только просроченные строки;
// повторный запуск без новых истечений затрагивает 0 строк.
func TestIntegration_DeleteExpiredBlacklistEntries(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	now := time.Now().UTC()

	dead := &models.BlacklistEntry{
		TokenID:       uuid.NewString(),
		TokenHash:     "h1",
		UserID:        uuid.New(),
		Reason:        "logout",
		BlacklistedAt: now.Add(-time.Hour),
		ExpiresAt:     now.Add(-time.Minute),
	}
	alive := &models.BlacklistEntry{
		TokenID:       uuid.NewString(),
		TokenHash:     "h2",
		UserID:        uuid.New(),
		Reason:        "logout",
		BlacklistedAt: now,
		ExpiresAt:     now.Add(15 * time.Minute),
	}
	require.NoError(t, st.SaveBlacklistEntry(context.Background(), dead))
	require.NoError(t, st.SaveBlacklistEntry(context.Background(), alive))

	n, err := st.DeleteExpiredBlacklistEntries(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	revoked, err := st.IsBlacklisted(context.Background(), alive.TokenID)
	require.NoError(t, err)
	require.True(t, revoked)

	n, err = st.DeleteExpiredBlacklistEntries(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
