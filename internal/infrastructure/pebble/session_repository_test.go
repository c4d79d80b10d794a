package pebble_test

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/pebble"
)

func openRepo(t *testing.T, dir string) *pebble.SessionRepository {
	t.Helper()
	repo, err := pebble.Open(dir)
	require.NoError(t, err)
	return repo
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

func TestSessionRepository_CicloDeVida(t *testing.T) {
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newSession(t, "c1", time.Now())))
	assert.ErrorIs(t, repo.Create(ctx, newSession(t, "c1", time.Now())), domain.ErrConflict)

	op := entity.NewRemoteOperation(entity.DataToSign{Payload: []byte("p"), DigestAlgorithm: entity.DigestSHA512, State: []byte("<x/>")})
	saved, err := repo.Update(ctx, "c1", func(s *entity.SigningSession) error { return s.BeginOperation(op) })
	require.NoError(t, err)
	assert.Equal(t, int64(2), saved.Revision)

	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, op.Same(got.PendingOperation))
	assert.Equal(t, entity.StateRemotePending, got.State())
	assert.Len(t, got.DataFiles, 1)

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, "c1"), domain.ErrNotFound)
	_, err = repo.Update(ctx, "c1", func(*entity.SigningSession) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSessionRepository_Persistencia(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	repo := openRepo(t, dir)
	require.NoError(t, repo.Create(ctx, newSession(t, "c1", time.Now())))
	require.NoError(t, repo.Close())

	repo = openRepo(t, dir)
	defer repo.Close()
	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ContainerID)
}

func TestSessionRepository_UpdateConcurrente(t *testing.T) {
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newSession(t, "c1", time.Now())))

	const workers = 20
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

func TestSessionRepository_DeleteExpired(t *testing.T) {
	repo := openRepo(t, t.TempDir())
	defer repo.Close()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)

	require.NoError(t, repo.Create(ctx, newSession(t, "viejo-1", old)))
	require.NoError(t, repo.Create(ctx, newSession(t, "viejo-2", old)))
	require.NoError(t, repo.Create(ctx, newSession(t, "reciente", time.Now())))

	n, err := repo.DeleteExpired(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = repo.Get(ctx, "reciente")
	assert.NoError(t, err)
	_, err = repo.Get(ctx, "viejo-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
