// Constantes para firmas XAdES desacopladas dentro de contenedores ASiC-E.

package xades

// Namespaces XMLDSig / XAdES / ASiC.
const (
	NamespaceDS    = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXAdES = "http://uri.etsi.org/01903/v1.3.2#"
	NamespaceASiC  = "http://uri.etsi.org/02918/v1.2.1#"
)

// Algoritmos.
const (
	AlgExcC14N       = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA512     = "http://www.w3.org/2001/04/xmldsig-more#rsa-sha512"
	AlgECDSASHA512   = "http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha512"
	TypeSignedProps  = "http://uri.etsi.org/01903#SignedProperties"
	signingTimeFmt   = "2006-01-02T15:04:05Z"
	signatureIDStart = "S-"
)
