package entity

import (
	"crypto"
	"strings"
)

// DigestAlgorithm nombre del algoritmo de digest tal como lo reciben los clientes y los proveedores ("SHA256", "SHA512").
type DigestAlgorithm string

// Algoritmos soportados.
const (
	DigestSHA256 DigestAlgorithm = "SHA256"
	DigestSHA384 DigestAlgorithm = "SHA384"
	DigestSHA512 DigestAlgorithm = "SHA512"
)

// URIs XMLDSig de los algoritmos de digest.
const (
	DigestURISHA256 = "http://www.w3.org/2001/04/xmlenc#sha256"
	DigestURISHA384 = "http://www.w3.org/2001/04/xmldsig-more#sha384"
	DigestURISHA512 = "http://www.w3.org/2001/04/xmlenc#sha512"
)

// SigningDigestAlgorithm es el algoritmo fijo del dato a firmar, sin importar el digest de cada archivo.
const SigningDigestAlgorithm = DigestSHA512

// URI devuelve la URI XMLDSig del algoritmo ("" si es desconocido).
func (a DigestAlgorithm) URI() string {
	switch a {
	case DigestSHA256:
		return DigestURISHA256
	case DigestSHA384:
		return DigestURISHA384
	case DigestSHA512:
		return DigestURISHA512
	default:
		return ""
	}
}

// Hash devuelve el crypto.Hash equivalente (0 si es desconocido).
func (a DigestAlgorithm) Hash() crypto.Hash {
	switch a {
	case DigestSHA256:
		return crypto.SHA256
	case DigestSHA384:
		return crypto.SHA384
	case DigestSHA512:
		return crypto.SHA512
	default:
		return 0
	}
}

// DigestAlgorithmFromURI resuelve la URI de un ds:DigestMethod. Acepta también la URI xmldsig-more de SHA-256.
func DigestAlgorithmFromURI(uri string) (DigestAlgorithm, bool) {
	switch strings.TrimSpace(uri) {
	case DigestURISHA256, "http://www.w3.org/2001/04/xmldsig-more#sha256":
		return DigestSHA256, true
	case DigestURISHA384:
		return DigestSHA384, true
	case DigestURISHA512, "http://www.w3.org/2001/04/xmldsig-more#sha512":
		return DigestSHA512, true
	default:
		return "", false
	}
}
