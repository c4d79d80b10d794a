package entity

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// Límites de los archivos de datos de un contenedor hashcode.
const (
	MaxDataFileNameLength = 260
	reservedNameChars     = `/\:*?"<>|`
)

// DataFileDigest representa un archivo de datos conocido sólo por nombre, tamaño declarado y digests.
// El cuerpo del archivo nunca pasa por el gateway: los digests se reciben precalculados y no se recalculan.
type DataFileDigest struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 []byte `json:"sha256,omitempty"`
	SHA512 []byte `json:"sha512,omitempty"` // Opcional según el canal
}

// NewDataFileDigest valida y construye un DataFileDigest. El nombre se normaliza a NFC.
// sha512 puede ser nil; sha256 es obligatorio.
func NewDataFileDigest(name string, size int64, sha256Digest, sha512Digest []byte) (DataFileDigest, error) {
	name = norm.NFC.String(name)
	if err := ValidateDataFileName(name); err != nil {
		return DataFileDigest{}, err
	}
	if size < 1 {
		return DataFileDigest{}, fmt.Errorf("%w: tamaño de archivo %d inválido", domain.ErrInvalidInput, size)
	}
	if len(sha256Digest) != sha256.Size {
		return DataFileDigest{}, fmt.Errorf("%w: digest SHA-256 de %q debe tener %d bytes", domain.ErrInvalidInput, name, sha256.Size)
	}
	if sha512Digest != nil && len(sha512Digest) != sha512.Size {
		return DataFileDigest{}, fmt.Errorf("%w: digest SHA-512 de %q debe tener %d bytes", domain.ErrInvalidInput, name, sha512.Size)
	}
	return DataFileDigest{
		Name:   name,
		Size:   size,
		SHA256: append([]byte(nil), sha256Digest...),
		SHA512: cloneOrNil(sha512Digest),
	}, nil
}

// NewDataFileDigestFromBase64 construye el digest a partir de hashes en Base64 (formato del API y de los hashcodes).
// sha512B64 vacío significa "sin SHA-512".
func NewDataFileDigestFromBase64(name string, size int64, sha256B64, sha512B64 string) (DataFileDigest, error) {
	h256, err := base64.StdEncoding.DecodeString(sha256B64)
	if err != nil {
		return DataFileDigest{}, fmt.Errorf("%w: SHA-256 de %q no es Base64", domain.ErrInvalidInput, name)
	}
	var h512 []byte
	if sha512B64 != "" {
		h512, err = base64.StdEncoding.DecodeString(sha512B64)
		if err != nil {
			return DataFileDigest{}, fmt.Errorf("%w: SHA-512 de %q no es Base64", domain.ErrInvalidInput, name)
		}
	}
	return NewDataFileDigest(name, size, h256, h512)
}

// ValidateDataFileName rechaza nombres vacíos, demasiado largos, con recorrido de rutas o caracteres reservados.
func ValidateDataFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: nombre de archivo vacío", domain.ErrInvalidInput)
	}
	if !utf8.ValidString(name) || utf8.RuneCountInString(name) > MaxDataFileNameLength {
		return fmt.Errorf("%w: nombre de archivo inválido", domain.ErrInvalidInput)
	}
	if name == "." || strings.Contains(name, "..") {
		return fmt.Errorf("%w: nombre de archivo %q contiene recorrido de ruta", domain.ErrInvalidInput, name)
	}
	for _, r := range name {
		if strings.ContainsRune(reservedNameChars, r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: nombre de archivo %q contiene caracteres reservados", domain.ErrInvalidInput, name)
		}
	}
	return nil
}

// SHA256Base64 devuelve el SHA-256 en Base64 estándar.
func (d DataFileDigest) SHA256Base64() string {
	return encodeOrEmpty(d.SHA256)
}

// SHA512Base64 devuelve el SHA-512 en Base64 estándar, o "" si no se declaró.
func (d DataFileDigest) SHA512Base64() string {
	return encodeOrEmpty(d.SHA512)
}

// Digest devuelve el digest del archivo para el algoritmo pedido (nil si no se declaró).
func (d DataFileDigest) Digest(alg DigestAlgorithm) []byte {
	switch alg {
	case DigestSHA256:
		return d.SHA256
	case DigestSHA512:
		return d.SHA512
	default:
		return nil
	}
}

func encodeOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

func cloneOrNil(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
