package hashcode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/hashcode"
)

func TestParseSignatureDataFiles(t *testing.T) {
	sig := []byte(`<ds:Signature xmlns:ds="http://www.w3.org/2000/09/xmldsig#"><ds:SignedInfo>
<ds:Reference URI="mi%20documento.pdf">
  <ds:DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha512"/>
  <ds:DigestValue>
    AAAA
    BBBB
  </ds:DigestValue>
</ds:Reference>
<ds:Reference URI="a.txt"><ds:DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><ds:DigestValue>CCCC</ds:DigestValue></ds:Reference>
<ds:Reference URI="#props" Type="http://uri.etsi.org/01903#SignedProperties"><ds:DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><ds:DigestValue>DDDD</ds:DigestValue></ds:Reference>
</ds:SignedInfo></ds:Signature>`)

	got, err := hashcode.ParseSignatureDataFiles(sig)
	require.NoError(t, err)
	assert.Equal(t, map[string]entity.SignatureDataFileEntry{
		"mi documento.pdf": {DigestAlgorithm: entity.DigestSHA512, Digest: "AAAABBBB"},
		"a.txt":            {DigestAlgorithm: entity.DigestSHA256, Digest: "CCCC"},
	}, got)
}

func TestParseSignatureDataFiles_Errores(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"no es XML", `<<<`},
		{"sin referencias", `<Signature><SignedInfo/></Signature>`},
		{"sólo referencias internas", `<Signature><SignedInfo><Reference URI="#x"><DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><DigestValue>A</DigestValue></Reference></SignedInfo></Signature>`},
		{"algoritmo no soportado", `<Signature><SignedInfo><Reference URI="a.txt"><DigestMethod Algorithm="http://www.w3.org/2000/09/xmldsig#sha1"/><DigestValue>A</DigestValue></Reference></SignedInfo></Signature>`},
		{"sin DigestValue", `<Signature><SignedInfo><Reference URI="a.txt"><DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/></Reference></SignedInfo></Signature>`},
		{"referencia duplicada", `<Signature><SignedInfo>` +
			`<Reference URI="a.txt"><DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><DigestValue>A</DigestValue></Reference>` +
			`<Reference URI="a.txt"><DigestMethod Algorithm="http://www.w3.org/2001/04/xmlenc#sha256"/><DigestValue>A</DigestValue></Reference>` +
			`</SignedInfo></Signature>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := hashcode.ParseSignatureDataFiles([]byte(tt.xml))
			assert.ErrorIs(t, err, domain.ErrInvalidContainer)
		})
	}
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "application/pdf", hashcode.MediaType("Contrato.PDF"))
	assert.Equal(t, "text/plain", hashcode.MediaType("a.txt"))
	assert.Equal(t, "application/octet-stream", hashcode.MediaType("sin_extension"))
}
