package entity

import (
	"fmt"

	"github.com/jhoicas/siga-gateway/internal/domain"
)

// SignatureDataFileEntry digest con el que una firma referencia a un archivo de datos (extraído de su ds:SignedInfo).
type SignatureDataFileEntry struct {
	DigestAlgorithm DigestAlgorithm `json:"digestAlgorithm"`
	Digest          string          `json:"digest"` // Base64, tal cual aparece en ds:DigestValue
}

// CollectedSignature firma AdES terminada. Inmutable: se crea sólo al completar una operación de firma
// (o al importar un contenedor) y se agrega al final de la lista de la sesión.
type CollectedSignature struct {
	Signature []byte                            `json:"signature"`
	DataFiles map[string]SignatureDataFileEntry `json:"dataFiles"`
}

// NewCollectedSignature construye la firma recolectada. dataFiles es el manifiesto interno ya extraído de la firma.
func NewCollectedSignature(signature []byte, dataFiles map[string]SignatureDataFileEntry) (CollectedSignature, error) {
	if len(signature) == 0 {
		return CollectedSignature{}, fmt.Errorf("%w: firma vacía", domain.ErrInvalidInput)
	}
	if len(dataFiles) == 0 {
		return CollectedSignature{}, fmt.Errorf("%w: la firma no referencia archivos de datos", domain.ErrInvalidInput)
	}
	entries := make(map[string]SignatureDataFileEntry, len(dataFiles))
	for name, e := range dataFiles {
		entries[name] = e
	}
	return CollectedSignature{
		Signature: append([]byte(nil), signature...),
		DataFiles: entries,
	}, nil
}
