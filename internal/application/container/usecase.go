package container

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/domain/repository"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/hashcode"
	"github.com/jhoicas/siga-gateway/pkg/logger"
)

// EventRecorder recibe los eventos del codec (métricas). Puede ser nil.
type EventRecorder interface {
	ContainerImported(dataFiles, signatures int)
	ContainerExported(bytes int)
	ContainerRejected(op string)
}

// UseCase ciclo de vida de un contenedor hashcode: crear, importar, exportar, consultar y borrar.
type UseCase struct {
	sessions repository.SessionRepository
	codec    *hashcode.Codec
	events   EventRecorder
	log      *logger.Logger
	newID    func() string
	now      func() time.Time
}

// Option configura el caso de uso.
type Option func(*UseCase)

// WithIDGenerator reemplaza uuid.NewString (tests).
func WithIDGenerator(f func() string) Option {
	return func(uc *UseCase) { uc.newID = f }
}

// WithClock reemplaza time.Now (tests).
func WithClock(f func() time.Time) Option {
	return func(uc *UseCase) { uc.now = f }
}

// WithEvents registra métricas del codec.
func WithEvents(e EventRecorder) Option {
	return func(uc *UseCase) { uc.events = e }
}

// NewUseCase construye el caso de uso.
func NewUseCase(sessions repository.SessionRepository, codec *hashcode.Codec, log *logger.Logger, opts ...Option) *UseCase {
	if log == nil {
		log = logger.Nop()
	}
	uc := &UseCase{
		sessions: sessions,
		codec:    codec,
		log:      log,
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Create registra un contenedor nuevo con los archivos dados (puede estar vacío) y devuelve su identificador.
func (uc *UseCase) Create(ctx context.Context, dataFiles []entity.DataFileDigest) (string, error) {
	s, err := entity.NewSigningSession(uc.newID(), dataFiles, nil, uc.now())
	if err != nil {
		return "", err
	}
	if err := uc.sessions.Create(ctx, s); err != nil {
		return "", err
	}
	uc.log.Info().Str("container_id", s.ContainerID).Int("data_files", len(dataFiles)).Msg("contenedor creado")
	return s.ContainerID, nil
}

// Upload importa un contenedor hashcode existente (con sus firmas) y devuelve el identificador asignado.
func (uc *UseCase) Upload(ctx context.Context, archive []byte) (string, error) {
	c, err := uc.codec.Read(archive)
	if err != nil {
		uc.rejected("read", err)
		return "", err
	}
	s, err := entity.NewSigningSession(uc.newID(), c.DataFiles, c.Signatures, uc.now())
	if err != nil {
		uc.rejected("read", err)
		return "", err
	}
	if err := uc.sessions.Create(ctx, s); err != nil {
		return "", err
	}
	if uc.events != nil {
		uc.events.ContainerImported(len(c.DataFiles), len(c.Signatures))
	}
	uc.log.Info().Str("container_id", s.ContainerID).
		Int("data_files", len(c.DataFiles)).Int("signatures", len(c.Signatures)).Msg("contenedor importado")
	return s.ContainerID, nil
}

// Export serializa el contenedor con todas sus firmas recolectadas.
func (uc *UseCase) Export(ctx context.Context, containerID string) ([]byte, error) {
	s, err := uc.get(ctx, containerID)
	if err != nil {
		return nil, err
	}
	archive, err := uc.codec.Write(s.DataFiles, s.Signatures)
	if err != nil {
		uc.rejected("write", err)
		return nil, err
	}
	if uc.events != nil {
		uc.events.ContainerExported(len(archive))
	}
	return archive, nil
}

// Session devuelve la sesión completa (archivos, firmas y operación en curso).
func (uc *UseCase) Session(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	return uc.get(ctx, containerID)
}

// DataFiles lista los archivos de datos del contenedor.
func (uc *UseCase) DataFiles(ctx context.Context, containerID string) ([]entity.DataFileDigest, error) {
	s, err := uc.get(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return s.DataFiles, nil
}

// Signatures lista las firmas recolectadas en orden de creación.
func (uc *UseCase) Signatures(ctx context.Context, containerID string) ([]entity.CollectedSignature, error) {
	s, err := uc.get(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return s.Signatures, nil
}

// AddDataFiles agrega archivos; sólo antes de la primera firma y sin operación en curso.
func (uc *UseCase) AddDataFiles(ctx context.Context, containerID string, files ...entity.DataFileDigest) error {
	if len(files) == 0 {
		return fmt.Errorf("%w: no se indicaron archivos", domain.ErrInvalidInput)
	}
	if err := entity.ValidateContainerID(containerID); err != nil {
		return err
	}
	_, err := uc.sessions.Update(ctx, containerID, func(s *entity.SigningSession) error {
		return s.AddDataFiles(files...)
	})
	if err != nil {
		return err
	}
	uc.log.Info().Str("container_id", containerID).Int("added", len(files)).Msg("archivos de datos agregados")
	return nil
}

// DeleteDataFile elimina un archivo; mismas precondiciones que AddDataFiles.
func (uc *UseCase) DeleteDataFile(ctx context.Context, containerID, name string) error {
	if err := entity.ValidateContainerID(containerID); err != nil {
		return err
	}
	_, err := uc.sessions.Update(ctx, containerID, func(s *entity.SigningSession) error {
		return s.RemoveDataFile(name)
	})
	return err
}

// Delete elimina el contenedor y cualquier operación en curso.
func (uc *UseCase) Delete(ctx context.Context, containerID string) error {
	if err := entity.ValidateContainerID(containerID); err != nil {
		return err
	}
	if err := uc.sessions.Delete(ctx, containerID); err != nil {
		return err
	}
	uc.log.Info().Str("container_id", containerID).Msg("contenedor eliminado")
	return nil
}

// PurgeExpired borra las sesiones sin cambios en el último ttl.
func (uc *UseCase) PurgeExpired(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := uc.sessions.DeleteExpired(ctx, uc.now().Add(-ttl))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.log.Info().Int("deleted", n).Dur("ttl", ttl).Msg("sesiones expiradas eliminadas")
	}
	return n, nil
}

func (uc *UseCase) get(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	if err := entity.ValidateContainerID(containerID); err != nil {
		return nil, err
	}
	return uc.sessions.Get(ctx, containerID)
}

func (uc *UseCase) rejected(op string, err error) {
	uc.log.Warn().Str("op", op).Err(err).Msg("contenedor rechazado")
	if uc.events != nil {
		uc.events.ContainerRejected(op)
	}
}
