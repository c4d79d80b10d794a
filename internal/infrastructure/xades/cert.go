// Carga de certificados de firmante desde .p12 (PKCS#12), PEM o DER.

package xades

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (*x509.Certificate, crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("xades: leer p12: %w", err)
	}
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, nil, fmt.Errorf("xades: decodificar p12: %w", err)
	}
	return cert, priv, nil
}

// ParseCertificate acepta un certificado en DER, en PEM o en Base64 de DER (formato del API).
func ParseCertificate(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	} else if der, err := base64.StdEncoding.DecodeString(string(data)); err == nil {
		data = der
	}
	cert, err := x509.ParseCertificate(data)
	if err != nil {
		return nil, fmt.Errorf("%w: certificado ilegible: %v", domain.ErrInvalidInput, err)
	}
	return cert, nil
}

// LoadCertificate lee un certificado desde archivo (PEM o DER).
func LoadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("xades: leer certificado: %w", err)
	}
	return ParseCertificate(data)
}

// CertDigestAndIssuerSerial devuelve el digest del certificado (Base64), el emisor y el serial en decimal para XAdES.
func CertDigestAndIssuerSerial(cert *x509.Certificate, alg entity.DigestAlgorithm) (digestB64 string, issuerName string, serial string) {
	h := alg.Hash().New()
	h.Write(cert.Raw)
	digestB64 = base64.StdEncoding.EncodeToString(h.Sum(nil))
	issuerName = cert.Issuer.String()
	serial = cert.SerialNumber.String()
	return digestB64, issuerName, serial
}

// signatureMethodFor elige el SignatureMethod según el tipo de llave pública del firmante.
func signatureMethodFor(cert *x509.Certificate) (string, error) {
	switch cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return AlgRSASHA512, nil
	case *ecdsa.PublicKey:
		return AlgECDSASHA512, nil
	default:
		return "", fmt.Errorf("%w: tipo de llave %T no soportado", domain.ErrInvalidInput, cert.PublicKey)
	}
}
