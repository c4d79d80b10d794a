// Package pebble guarda las sesiones de firma en una base clave-valor embebida.
package pebble

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/domain/repository"
)

const (
	sessionPrefix = "session/"
	lockStripes   = 64
)

var _ repository.SessionRepository = (*SessionRepository)(nil)

// SessionRepository sesiones serializadas en JSON bajo la clave "session/{containerID}".
// Pebble no tiene transacciones de lectura-escritura; la atomicidad por contenedor la da un
// candado por franja (hash del ID), suficiente porque un único proceso abre la base.
type SessionRepository struct {
	db      *pebble.DB
	stripes [lockStripes]sync.Mutex
	now     func() time.Time
}

// Open abre (o crea) la base en path.
func Open(path string) (*SessionRepository, error) {
	db, err := pebble.Open(path, &pebble.Options{
		Cache:        pebble.NewCache(8 << 20),
		MemTableSize: 4 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("pebble: abrir %s: %w", path, err)
	}
	return &SessionRepository{db: db, now: time.Now}, nil
}

// Close cierra la base.
func (r *SessionRepository) Close() error {
	return r.db.Close()
}

func (r *SessionRepository) Create(ctx context.Context, s *entity.SigningSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := r.lockFor(s.ContainerID)
	lock.Lock()
	defer lock.Unlock()

	_, found, err := r.read(s.ContainerID)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("%w: el contenedor %s ya existe", domain.ErrConflict, s.ContainerID)
	}
	stored := s.Clone()
	stored.Revision = 1
	return r.write(stored)
}

func (r *SessionRepository) Get(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, found, err := r.read(containerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	return s, nil
}

func (r *SessionRepository) Update(ctx context.Context, containerID string, fn repository.SessionMutator) (*entity.SigningSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock := r.lockFor(containerID)
	lock.Lock()
	defer lock.Unlock()

	s, found, err := r.read(containerID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	s.Revision++
	s.UpdatedAt = r.now()
	if err := r.write(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, containerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lock := r.lockFor(containerID)
	lock.Lock()
	defer lock.Unlock()

	_, found, err := r.read(containerID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	if err := r.db.Delete(key(containerID), pebble.Sync); err != nil {
		return fmt.Errorf("pebble: borrar %s: %w", containerID, err)
	}
	return nil
}

// DeleteExpired recorre el prefijo de sesiones y borra en un batch las vencidas.
// Cada candidata se revalida bajo su candado para no borrar una sesión actualizada durante el recorrido.
func (r *SessionRepository) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	var candidates []string
	iter, err := r.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(sessionPrefix),
		UpperBound: prefixUpperBound([]byte(sessionPrefix)),
	})
	if err != nil {
		return 0, fmt.Errorf("pebble: iterar sesiones: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			_ = iter.Close()
			return 0, err
		}
		var s entity.SigningSession
		if err := json.Unmarshal(iter.Value(), &s); err != nil {
			continue
		}
		if s.UpdatedAt.Before(olderThan) {
			candidates = append(candidates, s.ContainerID)
		}
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("pebble: iterar sesiones: %w", err)
	}

	deleted := 0
	for _, id := range candidates {
		ok, err := r.deleteIfExpired(id, olderThan)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	return deleted, nil
}

func (r *SessionRepository) deleteIfExpired(containerID string, olderThan time.Time) (bool, error) {
	lock := r.lockFor(containerID)
	lock.Lock()
	defer lock.Unlock()

	s, found, err := r.read(containerID)
	if err != nil || !found || !s.UpdatedAt.Before(olderThan) {
		return false, err
	}
	if err := r.db.Delete(key(containerID), pebble.Sync); err != nil {
		return false, fmt.Errorf("pebble: borrar %s: %w", containerID, err)
	}
	return true, nil
}

func (r *SessionRepository) read(containerID string) (*entity.SigningSession, bool, error) {
	value, closer, err := r.db.Get(key(containerID))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("pebble: leer %s: %w", containerID, err)
	}
	defer closer.Close()

	var s entity.SigningSession
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, false, fmt.Errorf("pebble: sesión %s ilegible: %w", containerID, err)
	}
	return &s, true, nil
}

func (r *SessionRepository) write(s *entity.SigningSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("pebble: serializar sesión: %w", err)
	}
	if err := r.db.Set(key(s.ContainerID), data, pebble.Sync); err != nil {
		return fmt.Errorf("pebble: escribir %s: %w", s.ContainerID, err)
	}
	return nil
}

func (r *SessionRepository) lockFor(containerID string) *sync.Mutex {
	return &r.stripes[xxhash.Sum64String(containerID)%lockStripes]
}

func key(containerID string) []byte {
	return []byte(sessionPrefix + containerID)
}

// prefixUpperBound límite superior exclusivo para recorrer un prefijo.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper
		}
	}
	return nil
}
