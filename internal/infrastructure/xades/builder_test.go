package xades_test

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/application/signing"
	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/hashcode"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/xades"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

var fixedTime = time.Date(2024, 3, 15, 12, 30, 0, 0, time.UTC)

func newTestBuilder() *xades.Builder {
	return xades.NewBuilder(
		xades.WithClock(func() time.Time { return fixedTime }),
		xades.WithIDGenerator(func() string { return "0001" }),
	)
}

// selfSignedCert crea un certificado autofirmado para la llave dada.
func selfSignedCert(t *testing.T, key crypto.Signer) []byte {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: "FIRMANTE,PRUEBA", Country: []string{"EE"}},
		NotBefore:    fixedTime.Add(-time.Hour),
		NotAfter:     fixedTime.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	return der
}

func testFiles(t *testing.T) []entity.DataFileDigest {
	t.Helper()
	h256 := sha256.Sum256([]byte("contenido a"))
	a, err := entity.NewDataFileDigest("a.txt", 11, h256[:], nil)
	require.NoError(t, err)
	b256 := sha256.Sum256([]byte("contenido b"))
	b512 := sha512.Sum512([]byte("contenido b"))
	b, err := entity.NewDataFileDigest("mi informe.pdf", 11, b256[:], b512[:])
	require.NoError(t, err)
	return []entity.DataFileDigest{a, b}
}

func signPayload(t *testing.T, key crypto.Signer, payload []byte) []byte {
	t.Helper()
	h := sha512.Sum512(payload)
	sig, err := key.Sign(rand.Reader, h[:], crypto.SHA512)
	require.NoError(t, err)
	return sig
}

// ──────────────────────────────────────────────────────────────────────────────
// BuildDataToSign
// ──────────────────────────────────────────────────────────────────────────────

func TestBuildDataToSign_ECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	files := testFiles(t)

	dts, err := newTestBuilder().BuildDataToSign(files, signing.SignatureParameters{
		Certificate: selfSignedCert(t, key),
		Profile:     entity.SignatureProfileLT,
		Roles:       []string{"Gerente"},
		Place:       signing.ProductionPlace{City: "Tallinn", CountryName: "Estonia"},
	})
	require.NoError(t, err)
	assert.Equal(t, entity.DigestSHA512, dts.DigestAlgorithm)
	assert.NotEmpty(t, dts.Payload)
	assert.NotEmpty(t, dts.State)

	payload := string(dts.Payload)
	assert.Contains(t, payload, xades.AlgECDSASHA512)
	assert.Contains(t, payload, `URI="a.txt"`)
	assert.Contains(t, payload, `URI="mi%20informe.pdf"`)
	assert.Contains(t, payload, files[0].SHA256Base64(), "sin SHA-512 se referencia el SHA-256")
	assert.Contains(t, payload, files[1].SHA512Base64())

	state := string(dts.State)
	assert.Contains(t, state, "<xades:SigningTime>2024-03-15T12:30:00Z</xades:SigningTime>")
	assert.Contains(t, state, "<xades:ClaimedRole>Gerente</xades:ClaimedRole>")
	assert.Contains(t, state, "<xades:City>Tallinn</xades:City>")
	assert.Contains(t, state, "<ds:X509SerialNumber>4242</ds:X509SerialNumber>")
	assert.NotContains(t, state, "<xades:PostalCode>")
}

func TestBuildDataToSign_Determinista(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	params := signing.SignatureParameters{Certificate: selfSignedCert(t, key), Profile: entity.SignatureProfileLT}

	a, err := newTestBuilder().BuildDataToSign(testFiles(t), params)
	require.NoError(t, err)
	b, err := newTestBuilder().BuildDataToSign(testFiles(t), params)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestBuildDataToSign_MismaPlantillaParaTodoPerfil(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cert := selfSignedCert(t, key)

	base, err := newTestBuilder().BuildDataToSign(testFiles(t), signing.SignatureParameters{Certificate: cert, Profile: entity.SignatureProfileLT})
	require.NoError(t, err)
	for _, profile := range []entity.SignatureProfile{entity.SignatureProfileLTTM, entity.SignatureProfileLTA} {
		dts, err := newTestBuilder().BuildDataToSign(testFiles(t), signing.SignatureParameters{Certificate: cert, Profile: profile})
		require.NoError(t, err)
		assert.True(t, base.Equal(dts), "perfil %s", profile)
		assert.NotContains(t, string(dts.State), "UnsignedProperties")
	}
}

func TestBuildDataToSign_Errores(t *testing.T) {
	_, err := newTestBuilder().BuildDataToSign(nil, signing.SignatureParameters{})
	assert.ErrorIs(t, err, domain.ErrNoDataFiles)

	_, err = newTestBuilder().BuildDataToSign(testFiles(t), signing.SignatureParameters{Certificate: []byte("no es un certificado")})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ──────────────────────────────────────────────────────────────────────────────
// FinalizeSignature
// ──────────────────────────────────────────────────────────────────────────────

func TestFinalizeSignature_ECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	files := testFiles(t)
	builder := newTestBuilder()

	dts, err := builder.BuildDataToSign(files, signing.SignatureParameters{Certificate: selfSignedCert(t, key), Profile: entity.SignatureProfileLT})
	require.NoError(t, err)

	// La llave ECDSA de la stdlib firma en ASN.1; la firma final debe quedar en r||s.
	signature, err := builder.FinalizeSignature(dts, signPayload(t, key, dts.Payload))
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(signature))
	sv := doc.FindElement("//SignatureValue")
	require.NotNil(t, sv)
	raw, err := base64.StdEncoding.DecodeString(sv.Text())
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	entries, err := hashcode.ParseSignatureDataFiles(signature)
	require.NoError(t, err)
	assert.Equal(t, map[string]entity.SignatureDataFileEntry{
		"a.txt":          {DigestAlgorithm: entity.DigestSHA256, Digest: files[0].SHA256Base64()},
		"mi informe.pdf": {DigestAlgorithm: entity.DigestSHA512, Digest: files[1].SHA512Base64()},
	}, entries)
}

func TestFinalizeSignature_RSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	builder := newTestBuilder()

	dts, err := builder.BuildDataToSign(testFiles(t), signing.SignatureParameters{Certificate: selfSignedCert(t, key), Profile: entity.SignatureProfileLTA})
	require.NoError(t, err)
	assert.Contains(t, string(dts.Payload), xades.AlgRSASHA512)

	value := signPayload(t, key, dts.Payload)
	signature, err := builder.FinalizeSignature(dts, value)
	require.NoError(t, err)
	assert.Contains(t, string(signature), base64.StdEncoding.EncodeToString(value))
}

func TestFinalizeSignature_ValorInvalido(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	other, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	builder := newTestBuilder()

	dts, err := builder.BuildDataToSign(testFiles(t), signing.SignatureParameters{Certificate: selfSignedCert(t, key), Profile: entity.SignatureProfileLT})
	require.NoError(t, err)

	_, err = builder.FinalizeSignature(dts, signPayload(t, other, dts.Payload))
	assert.ErrorIs(t, err, domain.ErrInvalidSignatureValue)

	_, err = builder.FinalizeSignature(dts, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidSignatureValue)

	_, err = builder.FinalizeSignature(dts, make([]byte, 64))
	assert.ErrorIs(t, err, domain.ErrInvalidSignatureValue)
}

func TestParseCertificate_Formatos(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der := selfSignedCert(t, key)

	c1, err := xades.ParseCertificate(der)
	require.NoError(t, err)
	c2, err := xades.ParseCertificate([]byte(base64.StdEncoding.EncodeToString(der)))
	require.NoError(t, err)
	assert.Equal(t, c1.Raw, c2.Raw)

	digest, issuer, serial := xades.CertDigestAndIssuerSerial(c1, entity.DigestSHA256)
	sum := sha256.Sum256(der)
	assert.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), digest)
	assert.Contains(t, issuer, "PRUEBA")
	assert.Equal(t, "4242", serial)

	_, err = xades.ParseCertificate([]byte("basura"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
