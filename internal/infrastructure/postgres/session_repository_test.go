package postgres_test

import (
	"context"
	"crypto/sha256"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/postgres"
	"github.com/jhoicas/siga-gateway/pkg/config"
)

// openRepo requiere una base real en SIGA_TEST_DATABASE_URL; sin ella la prueba se omite.
func openRepo(t *testing.T) *postgres.SessionRepo {
	t.Helper()
	dsn := os.Getenv("SIGA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SIGA_TEST_DATABASE_URL no definido")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, config.DBConfig{DatabaseURL: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `DELETE FROM signing_sessions`)
	require.NoError(t, err)
	return postgres.NewSessionRepository(pool)
}

func newSession(t *testing.T, id string, at time.Time) *entity.SigningSession {
	t.Helper()
	h := sha256.Sum256([]byte(id))
	f, err := entity.NewDataFileDigest("a.txt", 3, h[:], nil)
	require.NoError(t, err)
	s, err := entity.NewSigningSession(id, []entity.DataFileDigest{f}, nil, at)
	require.NoError(t, err)
	return s
}

func TestSessionRepo_CicloDeVida(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	require.NoError(t, repo.Create(ctx, newSession(t, "c1", time.Now())))
	assert.ErrorIs(t, repo.Create(ctx, newSession(t, "c1", time.Now())), domain.ErrConflict)

	op := entity.NewRemoteOperation(entity.DataToSign{Payload: []byte("p"), DigestAlgorithm: entity.DigestSHA512, State: []byte("<x/>")})
	saved, err := repo.Update(ctx, "c1", func(s *entity.SigningSession) error { return s.BeginOperation(op) })
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Revision)

	// Un error del mutador no escribe.
	_, err = repo.Update(ctx, "c1", func(s *entity.SigningSession) error { return s.BeginOperation(op) })
	assert.ErrorIs(t, err, domain.ErrInvalidSessionState)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.True(t, op.Same(got.PendingOperation))

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "c1"), domain.ErrNotFound)
}

func TestSessionRepo_UpdateConcurrente(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newSession(t, "c1", time.Now())))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Update(ctx, "c1", func(*entity.SigningSession) error { return nil })
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(1+workers), got.Revision)
}

func TestSessionRepo_DeleteExpired(t *testing.T) {
	repo := openRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newSession(t, "viejo", time.Now().Add(-48*time.Hour))))
	require.NoError(t, repo.Create(ctx, newSession(t, "reciente", time.Now())))

	n, err := repo.DeleteExpired(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = repo.Get(ctx, "reciente")
	assert.NoError(t, err)
}
