package entity

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhoicas/siga-gateway/internal/domain"
)

// SigningType canal de la operación de firma en curso.
type SigningType string

// Canales de firma.
const (
	SigningTypeRemote   SigningType = "REMOTE"
	SigningTypeMobileID SigningType = "MOBILE_ID"
	SigningTypeSmartID  SigningType = "SMART_ID"
)

// DataToSign resultado opaco del constructor de firmas: los bytes que el firmante debe firmar
// y el estado necesario para completar la firma después (plantilla XAdES, certificado, etc.).
type DataToSign struct {
	Payload         []byte          `json:"payload"`
	DigestAlgorithm DigestAlgorithm `json:"digestAlgorithm"`
	State           []byte          `json:"state"`
}

// Equal compara dos DataToSign byte a byte.
func (d DataToSign) Equal(other DataToSign) bool {
	return d.DigestAlgorithm == other.DigestAlgorithm &&
		bytes.Equal(d.Payload, other.Payload) &&
		bytes.Equal(d.State, other.State)
}

// SigningOperation variante etiquetada de la operación pendiente: Remote, MobileID o SmartID.
// Type discrimina; ProviderSessionCode sólo aplica a MobileID y SmartID.
type SigningOperation struct {
	Type                SigningType `json:"type"`
	DataToSign          DataToSign  `json:"dataToSign"`
	ProviderSessionCode string      `json:"providerSessionCode,omitempty"`
}

// NewRemoteOperation operación pendiente de firma remota (el cliente firma con su certificado).
func NewRemoteOperation(dts DataToSign) *SigningOperation {
	return &SigningOperation{Type: SigningTypeRemote, DataToSign: dts}
}

// NewMobileIDOperation operación pendiente de Mobile-ID con el código de sesión del proveedor.
func NewMobileIDOperation(dts DataToSign, sessionCode string) (*SigningOperation, error) {
	if strings.TrimSpace(sessionCode) == "" {
		return nil, fmt.Errorf("%w: código de sesión Mobile-ID vacío", domain.ErrInvalidInput)
	}
	return &SigningOperation{Type: SigningTypeMobileID, DataToSign: dts, ProviderSessionCode: sessionCode}, nil
}

// NewSmartIDOperation operación pendiente de Smart-ID con el código de sesión del proveedor.
func NewSmartIDOperation(dts DataToSign, sessionCode string) (*SigningOperation, error) {
	if strings.TrimSpace(sessionCode) == "" {
		return nil, fmt.Errorf("%w: código de sesión Smart-ID vacío", domain.ErrInvalidInput)
	}
	return &SigningOperation{Type: SigningTypeSmartID, DataToSign: dts, ProviderSessionCode: sessionCode}, nil
}

// Same indica si dos operaciones son la misma (mismo canal, mismo dato a firmar, mismo código de sesión).
func (o *SigningOperation) Same(other *SigningOperation) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Type == other.Type &&
		o.ProviderSessionCode == other.ProviderSessionCode &&
		o.DataToSign.Equal(other.DataToSign)
}

// SignatureProfile perfil de firma solicitado.
type SignatureProfile string

// Perfiles aceptados por el gateway.
const (
	SignatureProfileLT   SignatureProfile = "LT"
	SignatureProfileLTTM SignatureProfile = "LT_TM"
	SignatureProfileLTA  SignatureProfile = "LTA"
)

// ParseSignatureProfile valida el perfil. Sólo LT, LT_TM y LTA son aceptados.
func ParseSignatureProfile(s string) (SignatureProfile, error) {
	switch p := SignatureProfile(strings.ToUpper(strings.TrimSpace(s))); p {
	case SignatureProfileLT, SignatureProfileLTTM, SignatureProfileLTA:
		return p, nil
	default:
		return "", fmt.Errorf("%w: perfil de firma %q no soportado", domain.ErrInvalidInput, s)
	}
}
