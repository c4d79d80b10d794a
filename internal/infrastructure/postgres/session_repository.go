package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/domain/repository"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo implementación del puerto SessionRepository sobre PostgreSQL.
// La sesión se guarda completa como JSONB; Update la relee con SELECT ... FOR UPDATE dentro de la transacción.
type SessionRepo struct {
	pool *pgxpool.Pool
	tx   *TxRunner
	now  func() time.Time
}

// NewSessionRepository construye el adaptador de persistencia para sesiones de firma.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool, tx: NewTxRunner(pool), now: time.Now}
}

// Create persiste una sesión nueva.
func (r *SessionRepo) Create(ctx context.Context, s *entity.SigningSession) error {
	stored := s.Clone()
	stored.Revision = 1
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("postgres: serializar sesión: %w", err)
	}
	query := `
		INSERT INTO signing_sessions (container_id, session, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err = r.pool.Exec(ctx, query, stored.ContainerID, data, stored.Revision, stored.CreatedAt, stored.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: el contenedor %s ya existe", domain.ErrConflict, s.ContainerID)
		}
		return fmt.Errorf("postgres: insert session: %w", err)
	}
	return nil
}

// Get obtiene una sesión por ID.
func (r *SessionRepo) Get(ctx context.Context, containerID string) (*entity.SigningSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT session, revision, updated_at FROM signing_sessions WHERE container_id = $1`, containerID), containerID)
}

// Update relee la fila bloqueándola, aplica fn y la reescribe en la misma transacción.
func (r *SessionRepo) Update(ctx context.Context, containerID string, fn repository.SessionMutator) (*entity.SigningSession, error) {
	var saved *entity.SigningSession
	err := r.tx.Run(ctx, func(tx pgx.Tx) error {
		s, err := scanSession(tx.QueryRow(ctx,
			`SELECT session, revision, updated_at FROM signing_sessions WHERE container_id = $1 FOR UPDATE`, containerID), containerID)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		s.Revision++
		s.UpdatedAt = r.now()
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("postgres: serializar sesión: %w", err)
		}
		_, err = tx.Exec(ctx,
			`UPDATE signing_sessions SET session = $2, revision = $3, updated_at = $4 WHERE container_id = $1`,
			containerID, data, s.Revision, s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("postgres: update session: %w", err)
		}
		saved = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Delete elimina la sesión.
func (r *SessionRepo) Delete(ctx context.Context, containerID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM signing_sessions WHERE container_id = $1`, containerID)
	if err != nil {
		return fmt.Errorf("postgres: delete session: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
	}
	return nil
}

// DeleteExpired elimina las sesiones sin cambios desde olderThan.
func (r *SessionRepo) DeleteExpired(ctx context.Context, olderThan time.Time) (int, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM signing_sessions WHERE updated_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete expired sessions: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

// Ping verifica la conexión (readiness).
func (r *SessionRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanSession(row pgx.Row, containerID string) (*entity.SigningSession, error) {
	var (
		data      []byte
		revision  int64
		updatedAt time.Time
	)
	if err := row.Scan(&data, &revision, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: contenedor %s", domain.ErrNotFound, containerID)
		}
		return nil, fmt.Errorf("postgres: get session: %w", err)
	}
	var s entity.SigningSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("postgres: sesión %s ilegible: %w", containerID, err)
	}
	// Las columnas mandan sobre el documento.
	s.Revision = revision
	s.UpdatedAt = updatedAt
	return &s, nil
}
