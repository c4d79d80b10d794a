package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/jhoicas/siga-gateway/internal/domain"
)

// MaxContainerIDLength largo máximo del identificador de contenedor (UUID con guiones).
const MaxContainerIDLength = 36

// SessionState estado derivado de la sesión (presencia y canal de la operación pendiente).
type SessionState string

// Estados de la máquina de firma.
const (
	StateNoPendingOperation SessionState = "NO_PENDING_OPERATION"
	StateRemotePending      SessionState = "REMOTE_PENDING"
	StateMobileIDPending    SessionState = "MOBILE_ID_PENDING"
	StateSmartIDPending     SessionState = "SMART_ID_PENDING"
)

// SigningSession estado mutable de un contenedor: archivos de datos, firmas recolectadas y a lo sumo
// una operación de firma en curso. Se lee y se escribe completo en el SessionRepository.
type SigningSession struct {
	ContainerID      string               `json:"containerId"`
	DataFiles        []DataFileDigest     `json:"dataFiles"`
	Signatures       []CollectedSignature `json:"signatures"`
	PendingOperation *SigningOperation    `json:"pendingOperation,omitempty"`
	// Revision la incrementa el repositorio en cada escritura; sirve para detectar cambios
	// entre la lectura previa a una llamada externa y la escritura posterior.
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidateContainerID exige un identificador no vacío de hasta 36 caracteres.
func ValidateContainerID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > MaxContainerIDLength {
		return fmt.Errorf("%w: identificador de contenedor inválido", domain.ErrInvalidInput)
	}
	return nil
}

// NewSigningSession crea la sesión de un contenedor nuevo o importado.
func NewSigningSession(containerID string, dataFiles []DataFileDigest, signatures []CollectedSignature, now time.Time) (*SigningSession, error) {
	if err := ValidateContainerID(containerID); err != nil {
		return nil, err
	}
	s := &SigningSession{
		ContainerID: containerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, f := range dataFiles {
		if _, exists := s.DataFile(f.Name); exists {
			return nil, fmt.Errorf("%w: archivo de datos %q duplicado", domain.ErrConflict, f.Name)
		}
		s.DataFiles = append(s.DataFiles, f)
	}
	s.Signatures = append(s.Signatures, signatures...)
	return s, nil
}

// State deriva el estado actual de la máquina de firma.
func (s *SigningSession) State() SessionState {
	if s.PendingOperation == nil {
		return StateNoPendingOperation
	}
	switch s.PendingOperation.Type {
	case SigningTypeMobileID:
		return StateMobileIDPending
	case SigningTypeSmartID:
		return StateSmartIDPending
	default:
		return StateRemotePending
	}
}

// CanStartSigning verifica las precondiciones comunes a todo inicio de firma.
func (s *SigningSession) CanStartSigning() error {
	if len(s.DataFiles) == 0 {
		return fmt.Errorf("%w: agregue archivos de datos al contenedor antes de firmar", domain.ErrNoDataFiles)
	}
	if s.PendingOperation != nil {
		return fmt.Errorf("%w: ya existe una operación de firma %s en curso", domain.ErrInvalidSessionState, s.PendingOperation.Type)
	}
	return nil
}

// BeginOperation instala la operación pendiente si la sesión lo permite.
func (s *SigningSession) BeginOperation(op *SigningOperation) error {
	if op == nil {
		return fmt.Errorf("%w: operación nula", domain.ErrInvalidInput)
	}
	if err := s.CanStartSigning(); err != nil {
		return err
	}
	s.PendingOperation = op
	return nil
}

// PendingOperationOf devuelve la operación pendiente si es del canal pedido.
// Para Mobile-ID y Smart-ID exige además un código de sesión del proveedor no vacío.
func (s *SigningSession) PendingOperationOf(t SigningType) (*SigningOperation, error) {
	op := s.PendingOperation
	if op == nil {
		return nil, fmt.Errorf("%w: no hay operación de firma en curso", domain.ErrInvalidSessionState)
	}
	if t != SigningTypeRemote && strings.TrimSpace(op.ProviderSessionCode) == "" {
		return nil, fmt.Errorf("%w: código de sesión del proveedor no encontrado", domain.ErrInvalidSessionState)
	}
	if op.Type != t {
		return nil, fmt.Errorf("%w: la operación en curso es %s, no %s", domain.ErrInvalidSessionState, op.Type, t)
	}
	return op, nil
}

// CompleteOperation agrega la firma y limpia la operación pendiente, siempre que la operación pendiente
// siga siendo exactamente expected. Si otra llamada ya la completó o la reemplazó, no muta nada.
func (s *SigningSession) CompleteOperation(expected *SigningOperation, sig CollectedSignature) error {
	if s.PendingOperation == nil || !s.PendingOperation.Same(expected) {
		return fmt.Errorf("%w: la operación de firma ya no está en curso", domain.ErrInvalidSessionState)
	}
	s.Signatures = append(s.Signatures, sig)
	s.PendingOperation = nil
	return nil
}

// AbandonOperation descarta la operación pendiente.
func (s *SigningSession) AbandonOperation() (*SigningOperation, error) {
	if s.PendingOperation == nil {
		return nil, fmt.Errorf("%w: no hay operación de firma en curso", domain.ErrInvalidSessionState)
	}
	op := s.PendingOperation
	s.PendingOperation = nil
	return op, nil
}

// canChangeDataFiles: los archivos son mutables sólo antes de la primera firma y sin operación en curso.
func (s *SigningSession) canChangeDataFiles() error {
	if len(s.Signatures) > 0 {
		return fmt.Errorf("%w: el contenedor ya tiene firmas", domain.ErrInvalidSessionState)
	}
	if s.PendingOperation != nil {
		return fmt.Errorf("%w: hay una operación de firma en curso", domain.ErrInvalidSessionState)
	}
	return nil
}

// AddDataFiles agrega archivos de datos (todos o ninguno).
func (s *SigningSession) AddDataFiles(files ...DataFileDigest) error {
	if err := s.canChangeDataFiles(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(s.DataFiles)+len(files))
	for _, f := range s.DataFiles {
		seen[f.Name] = struct{}{}
	}
	for _, f := range files {
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: archivo de datos %q duplicado", domain.ErrConflict, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	s.DataFiles = append(s.DataFiles, files...)
	return nil
}

// RemoveDataFile elimina un archivo de datos por nombre.
func (s *SigningSession) RemoveDataFile(name string) error {
	if err := s.canChangeDataFiles(); err != nil {
		return err
	}
	for i, f := range s.DataFiles {
		if f.Name == name {
			s.DataFiles = append(s.DataFiles[:i:i], s.DataFiles[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: archivo de datos %q", domain.ErrNotFound, name)
}

// DataFile busca un archivo de datos por nombre.
func (s *SigningSession) DataFile(name string) (DataFileDigest, bool) {
	for _, f := range s.DataFiles {
		if f.Name == name {
			return f, true
		}
	}
	return DataFileDigest{}, false
}

// Clone copia profunda; los repositorios en memoria la usan para que nadie comparta punteros con el almacén.
func (s *SigningSession) Clone() *SigningSession {
	if s == nil {
		return nil
	}
	c := *s
	c.DataFiles = make([]DataFileDigest, len(s.DataFiles))
	for i, f := range s.DataFiles {
		c.DataFiles[i] = DataFileDigest{Name: f.Name, Size: f.Size, SHA256: cloneOrNil(f.SHA256), SHA512: cloneOrNil(f.SHA512)}
	}
	c.Signatures = make([]CollectedSignature, len(s.Signatures))
	for i, sig := range s.Signatures {
		entries := make(map[string]SignatureDataFileEntry, len(sig.DataFiles))
		for k, v := range sig.DataFiles {
			entries[k] = v
		}
		c.Signatures[i] = CollectedSignature{Signature: cloneOrNil(sig.Signature), DataFiles: entries}
	}
	if s.PendingOperation != nil {
		op := *s.PendingOperation
		op.DataToSign = DataToSign{
			Payload:         cloneOrNil(s.PendingOperation.DataToSign.Payload),
			DigestAlgorithm: s.PendingOperation.DataToSign.DigestAlgorithm,
			State:           cloneOrNil(s.PendingOperation.DataToSign.State),
		}
		c.PendingOperation = &op
	}
	return &c
}
