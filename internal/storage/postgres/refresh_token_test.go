package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/morozkovaa/lingua-news/internal/models"
	"github.com/morozkovaa/lingua-news/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Файл интеграционных тестов для пакета postgres (репозиторий refresh_token.go):
// - happy-path сохранения и чтения токена по хэшу;
// - уникальность token_hash (storage.ErrAlreadyExists);
// - атомарное погашение RedeemRefreshToken и его диагностические ветки
//   (ErrRevoked / ErrExpired / ErrNotFound);
// - CAS под конкуренцией: из N параллельных погашений одного токена
//   ровно одно успешно;
// - массовый отзыв RevokeAllForUser и фоновая очистка DeleteExpiredTokens.

// seedRefreshToken — создаёт и сохраняет токен для пользователя u.
func seedRefreshToken(t *testing.T, st *Storage, u *models.User, expiresAt time.Time) *models.RefreshToken {
	t.Helper()

	now := time.Now().UTC()
	tok := &models.RefreshToken{
		RefreshTokenHash: uuid.NewString(),
		UserID:           u.ID,
		SessionID:        uuid.New(),
		CreatedAt:        now,
		ExpiresAt:        expiresAt,
		Revoked:          false,
	}
	require.NoError(t, st.SaveRefreshToken(context.Background(), tok))
	return tok
}

// TestIntegration_SaveRefreshToken_And_GetByHash_OK — happy-path:
// сохранение токена и последующее чтение по хэшу со сверкой полей.
func TestIntegration_SaveRefreshToken_And_GetByHash_OK(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	tok := seedRefreshToken(t, st, u, time.Now().UTC().Add(24*time.Hour))

	got, err := st.RefreshTokenByHash(context.Background(), tok.RefreshTokenHash)
	require.NoError(t, err)
	require.Equal(t, tok.RefreshTokenHash, got.RefreshTokenHash)
	require.Equal(t, tok.UserID, got.UserID)
	require.Equal(t, tok.SessionID, got.SessionID)
	require.False(t, got.Revoked)
	require.WithinDuration(t, tok.ExpiresAt, got.ExpiresAt, time.Second)
}

// TestIntegration_SaveRefreshToken_UniqueHash_Violation — повторная вставка
// того же token_hash, ожидаем storage.ErrAlreadyExists.
func TestIntegration_SaveRefreshToken_UniqueHash_Violation(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	tok := seedRefreshToken(t, st, u, time.Now().UTC().Add(time.Hour))

	dup := *tok
	dup.SessionID = uuid.New()
	err := st.SaveRefreshToken(context.Background(), &dup)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

// TestIntegration_RefreshTokenByHash_NotFound — чтение отсутствующего хэша,
// ожидаем storage.ErrNotFound.
func TestIntegration_RefreshTokenByHash_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.RefreshTokenByHash(context.Background(), "absent-hash")
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_RedeemRefreshToken_OK_Then_Revoked — первое погашение
// возвращает токен, повторное — storage.ErrRevoked (сигнал о reuse).
func TestIntegration_RedeemRefreshToken_OK_Then_Revoked(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	tok := seedRefreshToken(t, st, u, time.Now().UTC().Add(time.Hour))

	now := time.Now().UTC()

	got, err := st.RedeemRefreshToken(context.Background(), tok.RefreshTokenHash, now)
	require.NoError(t, err)
	require.Equal(t, tok.UserID, got.UserID)
	require.Equal(t, tok.SessionID, got.SessionID)
	require.True(t, got.Revoked)

	_, err = st.RedeemRefreshToken(context.Background(), tok.RefreshTokenHash, now)
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrRevoked)
}

// TestIntegration_RedeemRefreshToken_Expired — просроченный токен не гасится,
// ожидаем storage.ErrExpired; строка при этом остаётся непогашенной.
func TestIntegration_RedeemRefreshToken_Expired(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	tok := seedRefreshToken(t, st, u, time.Now().UTC().Add(-time.Minute))

	_, err := st.RedeemRefreshToken(context.Background(), tok.RefreshTokenHash, time.Now().UTC())
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrExpired)

	got, err := st.RefreshTokenByHash(context.Background(), tok.RefreshTokenHash)
	require.NoError(t, err)
	require.False(t, got.Revoked)
}

// TestIntegration_RedeemRefreshToken_NotFound — погашение отсутствующего хэша,
// ожидаем storage.ErrNotFound.
func TestIntegration_RedeemRefreshToken_NotFound(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	_, err := st.RedeemRefreshToken(context.Background(), "absent-hash", time.Now().UTC())
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_RedeemRefreshToken_Concurrent_ExactlyOneWinner — CAS под конкуренцией:
// N горутин гасят один и тот же токен, ровно одна получает успех,
// остальные — storage.ErrRevoked.
func TestIntegration_RedeemRefreshToken_Concurrent_ExactlyOneWinner(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	tok := seedRefreshToken(t, st, u, time.Now().UTC().Add(time.Hour))

	const workers = 16
	now := time.Now().UTC()

	var wg sync.WaitGroup
	results := make([]error, workers)

	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start

			_, err := st.RedeemRefreshToken(context.Background(), tok.RefreshTokenHash, now)
			results[i] = err
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, revoked int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, storage.ErrRevoked)
		revoked++
	}

	require.Equal(t, 1, wins)
	require.Equal(t, workers-1, revoked)
}

// TestIntegration_RevokeRefreshToken_States — три исхода точечного отзыва:
// активный токен (true, nil), уже отозванный (false, nil), отсутствующий (false, ErrNotFound).
func TestIntegration_RevokeRefreshToken_States(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	tok := seedRefreshToken(t, st, u, time.Now().UTC().Add(time.Hour))

	ok, err := st.RevokeRefreshToken(context.Background(), tok.RefreshTokenHash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.RevokeRefreshToken(context.Background(), tok.RefreshTokenHash)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.RevokeRefreshToken(context.Background(), "absent-hash")
	require.Error(t, err)
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.False(t, ok)
}

// TestIntegration_RevokeAllForUser — отзываются только активные токены указанного
// пользователя; чужие токены не затрагиваются.
func TestIntegration_RevokeAllForUser(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	victim := seedUser(t, st)
	other := seedUser(t, st)

	exp := time.Now().UTC().Add(time.Hour)
	t1 := seedRefreshToken(t, st, victim, exp)
	t2 := seedRefreshToken(t, st, victim, exp)
	t3 := seedRefreshToken(t, st, other, exp)

	// один токен жертвы уже отозван — он не должен попасть в счётчик.
	_, err := st.RevokeRefreshToken(context.Background(), t1.RefreshTokenHash)
	require.NoError(t, err)

	n, err := st.RevokeAllForUser(context.Background(), victim.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := st.RefreshTokenByHash(context.Background(), t2.RefreshTokenHash)
	require.NoError(t, err)
	require.True(t, got.Revoked)

	got, err = st.RefreshTokenByHash(context.Background(), t3.RefreshTokenHash)
	require.NoError(t, err)
	require.False(t, got.Revoked)
}

// TestIntegration_RevokeOtherSessionTokens — отзываются активные токены всех
// сессий пользователя, кроме keep; токен текущей сессии и чужие токены живы.
func TestIntegration_RevokeOtherSessionTokens(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	other := seedUser(t, st)
	exp := time.Now().UTC().Add(time.Hour)

	keep := seedRefreshToken(t, st, u, exp)
	doomed := seedRefreshToken(t, st, u, exp)
	foreign := seedRefreshToken(t, st, other, exp)

	n, err := st.RevokeOtherSessionTokens(context.Background(), u.ID, keep.SessionID)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	got, err := st.RefreshTokenByHash(context.Background(), keep.RefreshTokenHash)
	require.NoError(t, err)
	require.False(t, got.Revoked)

	got, err = st.RefreshTokenByHash(context.Background(), doomed.RefreshTokenHash)
	require.NoError(t, err)
	require.True(t, got.Revoked)

	got, err = st.RefreshTokenByHash(context.Background(), foreign.RefreshTokenHash)
	require.NoError(t, err)
	require.False(t, got.Revoked)
}

// TestIntegration_DeleteExpiredTokens — удаляются только строки с expires_at в прошлом;
// повторный запуск без новых истечений затрагивает 0 строк.
func TestIntegration_DeleteExpiredTokens(t *testing.T) {
	st, cleanup := startPostgres(t)
	defer cleanup()

	u := seedUser(t, st)
	now := time.Now().UTC()

	dead := seedRefreshToken(t, st, u, now.Add(-time.Minute))
	alive := seedRefreshToken(t, st, u, now.Add(time.Hour))

	n, err := st.DeleteExpiredTokens(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = st.RefreshTokenByHash(context.Background(), dead.RefreshTokenHash)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.RefreshTokenByHash(context.Background(), alive.RefreshTokenHash)
	require.NoError(t, err)

	n, err = st.DeleteExpiredTokens(context.Background(), now)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
