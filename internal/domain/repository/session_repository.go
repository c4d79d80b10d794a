package repository

import (
	"context"
	"time"

	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// SessionMutator aplica un cambio sobre la sesión leída dentro de la unidad atómica.
// Si devuelve error, el repositorio descarta el cambio y no escribe nada.
type SessionMutator func(s *entity.SigningSession) error

// SessionRepository define el puerto de persistencia de las sesiones de firma.
// Las implementaciones garantizan que Update se ejecute de forma atómica por ContainerID
// (bloqueo por clave o bloqueo de fila): dos Update concurrentes sobre el mismo contenedor se serializan.
type SessionRepository interface {
	// Create guarda una sesión nueva; ErrConflict si el ContainerID ya existe.
	Create(ctx context.Context, s *entity.SigningSession) error
	// Get devuelve una copia de la sesión; ErrNotFound si no existe.
	Get(ctx context.Context, containerID string) (*entity.SigningSession, error)
	// Update lee la sesión, aplica fn y la escribe con Revision+1 y UpdatedAt actualizado.
	// Devuelve la sesión tal como quedó guardada.
	Update(ctx context.Context, containerID string, fn SessionMutator) (*entity.SigningSession, error)
	// Delete elimina la sesión; ErrNotFound si no existe.
	Delete(ctx context.Context, containerID string) error
	// DeleteExpired elimina las sesiones sin cambios desde antes de olderThan y devuelve cuántas borró.
	DeleteExpired(ctx context.Context, olderThan time.Time) (int, error)
}
