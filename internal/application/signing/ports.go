package signing

import (
	"context"

	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// ProductionPlace lugar de firma declarado por el firmante (opcional).
type ProductionPlace struct {
	City            string
	StateOrProvince string
	PostalCode      string
	CountryName     string
}

// IsZero indica si no se declaró ningún campo.
func (p ProductionPlace) IsZero() bool {
	return p == ProductionPlace{}
}

// SignatureParameters datos del firmante para construir el dato a firmar.
type SignatureParameters struct {
	Certificate []byte // DER del certificado del firmante
	Profile     entity.SignatureProfile
	Roles       []string
	Place       ProductionPlace
}

// SignatureBuilder capacidad criptográfica opaca: arma la firma AdES sin tener nunca la llave privada.
type SignatureBuilder interface {
	// BuildDataToSign calcula los bytes que el firmante debe firmar (digest SHA-512) y el estado para completar después.
	BuildDataToSign(dataFiles []entity.DataFileDigest, params SignatureParameters) (entity.DataToSign, error)
	// FinalizeSignature combina el valor de firma con el estado guardado y devuelve la firma AdES completa.
	// Debe fallar con ErrInvalidSignatureValue si el valor no corresponde al certificado.
	FinalizeSignature(dts entity.DataToSign, signatureValue []byte) ([]byte, error)
}

// CertificateRequest identifica al firmante ante el proveedor de identidad.
type CertificateRequest struct {
	PersonIdentifier string
	Country          string
	PhoneNo          string // sólo Mobile-ID
}

// SignHashRequest solicitud de firma de un hash al proveedor de identidad.
type SignHashRequest struct {
	PersonIdentifier string
	Country          string
	PhoneNo          string // sólo Mobile-ID
	Language         string // sólo Mobile-ID (ISO 639-2, 3 letras)
	DisplayText      string
	Hash             string // hex
	HashType         entity.DigestAlgorithm
}

// SignHashResponse respuesta del proveedor al iniciar la firma.
type SignHashResponse struct {
	Status      entity.ProviderStatus
	SessionCode string
	ChallengeID string
}

// SignHashStatus estado de un proceso de firma en el proveedor.
// SignatureValue sólo viene cuando Status es SIGNATURE.
type SignHashStatus struct {
	Status         entity.ProviderStatus
	SignatureValue []byte
}

// IdentityProvider cliente de un proveedor de identidad (Mobile-ID o Smart-ID).
// Timeouts y cancelación se controlan con ctx; un timeout se reporta envolviendo domain.ErrProviderTimeout.
type IdentityProvider interface {
	ResolveCertificate(ctx context.Context, req CertificateRequest) ([]byte, error)
	SubmitSignHash(ctx context.Context, req SignHashRequest) (*SignHashResponse, error)
	PollSignHashStatus(ctx context.Context, sessionCode string) (*SignHashStatus, error)
}

// EventRecorder recibe los eventos del orquestador (métricas). Puede ser nil.
type EventRecorder interface {
	SigningStarted(t entity.SigningType)
	SigningCompleted(t entity.SigningType)
	SigningRejected(t entity.SigningType, reason string)
	ProviderStatus(t entity.SigningType, status entity.ProviderStatus)
}
