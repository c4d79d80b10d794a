package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/domain/repository"
)

// SessionRepository almacén de sesiones en memoria del proceso.
// El mapa está protegido por mu; cada contenedor tiene además su propio candado para que Update
// (lectura, validación, escritura) sea atómico por clave sin bloquear a los demás contenedores.
type SessionRepository struct {
	mu       sync.Mutex
	sessions map[string]*entity.SigningSession
	locks    map[string]*sync.Mutex
	now      func() time.Time
}

// NewSessionRepository crea un almacén vacío. now puede ser nil (time.Now).
func NewSessionRepository(now func() time.Time) *SessionRepository {
	if now == nil {
		now = time.Now
	}
	return &SessionRepository{
		sessions: make(map[string]*entity.SigningSession),
		locks:    make(map[string]*sync.Mutex),
		now:      now,
	}
}

var _ repository.SessionRepository = (*SessionRepository)(nil)

func (r *SessionRepository) Create(ctx context.Context, s *entity.SigningSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ContainerID]; exists {
		return fmt.Errorf("%w: el contenedor %s ya existe", domain.ErrConflict, s.ContainerID)
	}
	stored := s.Clone()
	stored.Revision = 1
	r.sessions[s.ContainerID] = stored
	r.locks[s.ContainerID] = &sync.Mutex{}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[containerID]
	if !ok {
		return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	return s.Clone(), nil
}

func (r *SessionRepository) Update(ctx context.Context, containerID string, fn repository.SessionMutator) (*entity.SigningSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lock, err := r.keyLock(containerID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	stored, ok := r.sessions[containerID]
	if !ok || r.locks[containerID] != lock {
		// Borrado (o recreado) mientras esperábamos el candado.
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	current := stored.Clone()
	r.mu.Unlock()

	if err := fn(current); err != nil {
		return nil, err
	}
	current.Revision++
	current.UpdatedAt = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locks[containerID] != lock {
		return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	r.sessions[containerID] = current.Clone()
	return current, nil
}

func (r *SessionRepository) Delete(ctx context.Context, containerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[containerID]; !ok {
		return fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	delete(r.sessions, containerID)
	delete(r.locks, containerID)
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, s := range r.sessions {
		if s.UpdatedAt.Before(olderThan) {
			delete(r.sessions, id)
			delete(r.locks, id)
			n++
		}
	}
	return n, nil
}

// Len número de sesiones guardadas.
func (r *SessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRepository) keyLock(containerID string) (*sync.Mutex, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[containerID]
	if !ok {
		return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	return lock, nil
}
