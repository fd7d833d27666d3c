package blacklist

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/mocks"
)

func entry(jti string, expiresAt time.Time) *models.BlacklistEntry {
	return &models.BlacklistEntry{
		TokenID:       jti,
		TokenHash:     "hash-" + jti,
		UserID:        uuid.New(),
		Reason:        "logout",
		BlacklistedAt: time.Now().UTC(),
		ExpiresAt:     expiresAt,
	}
}

func TestMemoryRegistry_AddAndIsRevoked(t *testing.T) {
	t.Parallel()

	r := NewMemory()
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)

	require.False(t, r.IsRevoked(ctx, "unknown"))

	require.NoError(t, r.Add(ctx, entry("jti-1", future)))
	require.True(t, r.IsRevoked(ctx, "jti-1"))
	require.False(t, r.IsRevoked(ctx, "jti-2"))
}

func TestMemoryRegistry_AddIdempotent(t *testing.T) {
	t.Parallel()

	r := NewMemory()
	ctx := context.Background()

	first := entry("jti-1", time.Now().UTC().Add(time.Hour))
	first.Reason = "logout"
	require.NoError(t, r.Add(ctx, first))

	second := entry("jti-1", time.Now().UTC().Add(2*time.Hour))
	second.Reason = "compromise"
	require.NoError(t, r.Add(ctx, second))

	// Исходная запись не перетирается.
	require.True(t, r.IsRevoked(ctx, "jti-1"))
	r.mu.RLock()
	got := r.entries["jti-1"]
	r.mu.RUnlock()
	require.Equal(t, "logout", got.Reason)
}

// Просроченная запись мертва сразу, до всякой уборки.
func TestMemoryRegistry_ExpiredEntryIsDead(t *testing.T) {
	t.Parallel()

	r := NewMemory()
	ctx := context.Background()

	require.NoError(t, r.Add(ctx, entry("jti-old", time.Now().UTC().Add(-time.Minute))))
	require.False(t, r.IsRevoked(ctx, "jti-old"))
}

func TestMemoryRegistry_SweepAndCleanup(t *testing.T) {
	t.Parallel()

	r := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, r.Add(ctx, entry("live", now.Add(time.Hour))))
	require.NoError(t, r.Add(ctx, entry("dead-1", now.Add(-time.Minute))))
	require.NoError(t, r.Add(ctx, entry("dead-2", now.Add(-time.Hour))))

	removed, err := r.Cleanup(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	require.True(t, r.IsRevoked(ctx, "live"))
	require.Zero(t, r.Sweep(now))
}

func TestStoreRegistry_FailOpenOnReadError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	r := NewStore(st)
	ctx := context.Background()

	st.EXPECT().IsBlacklisted(ctx, "jti-1").Return(false, errors.New("db down"))
	require.False(t, r.IsRevoked(ctx, "jti-1"))

	st.EXPECT().IsBlacklisted(ctx, "jti-2").Return(true, nil)
	require.True(t, r.IsRevoked(ctx, "jti-2"))
}

func TestStoreRegistry_AddSurfacesErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	r := NewStore(st)
	ctx := context.Background()

	boom := errors.New("db down")
	st.EXPECT().SaveBlacklistEntry(ctx, gomock.Any()).Return(boom)

	err := r.Add(ctx, entry("jti-1", time.Now().UTC().Add(time.Hour)))
	require.ErrorIs(t, err, boom)
}
