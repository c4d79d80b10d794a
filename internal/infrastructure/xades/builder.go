// Constructor de firmas XAdES desacopladas para contenedores hashcode.
// El firmante nunca entrega su llave: se le devuelve el ds:SignedInfo canónico para que lo firme y luego
// se inserta el valor de firma en la plantilla guardada.

package xades

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/ucarion/c14n"

	"github.com/jhoicas/siga-gateway/internal/application/signing"
	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
	"github.com/jhoicas/siga-gateway/internal/infrastructure/hashcode"
)

// Builder implementa signing.SignatureBuilder.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// Option configura el Builder.
type Option func(*Builder)

// WithClock fija el reloj usado para xades:SigningTime.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator fija el generador de Ids de los elementos de la firma.
func WithIDGenerator(gen func() string) Option {
	return func(b *Builder) { b.newID = gen }
}

// NewBuilder crea el constructor de firmas.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildDataToSign arma la plantilla de la firma y devuelve el ds:SignedInfo canónico como dato a firmar.
// Cada archivo se referencia por su SHA-512 si se declaró; si no, por su SHA-256.
// La plantilla es de nivel básico para todo perfil: params.Profile no agrega propiedades sin firmar.
func (b *Builder) BuildDataToSign(dataFiles []entity.DataFileDigest, params signing.SignatureParameters) (entity.DataToSign, error) {
	if len(dataFiles) == 0 {
		return entity.DataToSign{}, fmt.Errorf("xades: %w", domain.ErrNoDataFiles)
	}
	cert, err := x509.ParseCertificate(params.Certificate)
	if err != nil {
		return entity.DataToSign{}, fmt.Errorf("xades: %w: certificado ilegible: %v", domain.ErrInvalidInput, err)
	}
	sigMethod, err := signatureMethodFor(cert)
	if err != nil {
		return entity.DataToSign{}, fmt.Errorf("xades: %w", err)
	}

	sigID := signatureIDStart + b.newID()
	spID := sigID + "-SignedProperties"

	// 1) SignedProperties (C14N, digest SHA-512)
	signedProps := b.buildSignedProperties(spID, sigID, cert, dataFiles, params)
	canonicalProps, err := canonicalElement(signedProps)
	if err != nil {
		return entity.DataToSign{}, fmt.Errorf("xades: canonicalizar SignedProperties: %w", err)
	}
	propsDigest := sha512.Sum512(canonicalProps)

	// 2) SignedInfo con una Reference por archivo + la de SignedProperties
	signedInfo := etree.NewElement("ds:SignedInfo")
	signedInfo.CreateAttr("xmlns:ds", NamespaceDS)
	signedInfo.CreateElement("ds:CanonicalizationMethod").CreateAttr("Algorithm", AlgExcC14N)
	signedInfo.CreateElement("ds:SignatureMethod").CreateAttr("Algorithm", sigMethod)
	for i, f := range dataFiles {
		alg := entity.DigestSHA512
		if len(f.SHA512) == 0 {
			alg = entity.DigestSHA256
		}
		digest := f.Digest(alg)
		if len(digest) == 0 {
			return entity.DataToSign{}, fmt.Errorf("xades: %w: %q no tiene digest", domain.ErrInvalidInput, f.Name)
		}
		ref := signedInfo.CreateElement("ds:Reference")
		ref.CreateAttr("Id", referenceID(sigID, i))
		ref.CreateAttr("URI", url.PathEscape(f.Name))
		ref.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", alg.URI())
		ref.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(digest))
	}
	propsRef := signedInfo.CreateElement("ds:Reference")
	propsRef.CreateAttr("Type", TypeSignedProps)
	propsRef.CreateAttr("URI", "#"+spID)
	propsRef.CreateElement("ds:Transforms").CreateElement("ds:Transform").CreateAttr("Algorithm", AlgExcC14N)
	propsRef.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", entity.DigestURISHA512)
	propsRef.CreateElement("ds:DigestValue").SetText(base64.StdEncoding.EncodeToString(propsDigest[:]))

	payload, err := canonicalElement(signedInfo)
	if err != nil {
		return entity.DataToSign{}, fmt.Errorf("xades: canonicalizar SignedInfo: %w", err)
	}

	// 3) Plantilla completa con SignatureValue vacío
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="no"`)
	root := doc.CreateElement("asic:XAdESSignatures")
	root.CreateAttr("xmlns:asic", NamespaceASiC)
	root.CreateAttr("xmlns:ds", NamespaceDS)
	root.CreateAttr("xmlns:xades", NamespaceXAdES)
	sig := root.CreateElement("ds:Signature")
	sig.CreateAttr("Id", sigID)
	sig.AddChild(signedInfo)
	sig.CreateElement("ds:SignatureValue").CreateAttr("Id", sigID+"-SIG")
	sig.CreateElement("ds:KeyInfo").CreateElement("ds:X509Data").CreateElement("ds:X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(cert.Raw))
	qp := sig.CreateElement("ds:Object").CreateElement("xades:QualifyingProperties")
	qp.CreateAttr("Target", "#"+sigID)
	qp.AddChild(signedProps)

	state, err := doc.WriteToBytes()
	if err != nil {
		return entity.DataToSign{}, fmt.Errorf("xades: serializar plantilla: %w", err)
	}
	return entity.DataToSign{
		Payload:         payload,
		DigestAlgorithm: entity.SigningDigestAlgorithm,
		State:           state,
	}, nil
}

func (b *Builder) buildSignedProperties(spID, sigID string, cert *x509.Certificate, dataFiles []entity.DataFileDigest, params signing.SignatureParameters) *etree.Element {
	sp := etree.NewElement("xades:SignedProperties")
	sp.CreateAttr("xmlns:ds", NamespaceDS)
	sp.CreateAttr("xmlns:xades", NamespaceXAdES)
	sp.CreateAttr("Id", spID)

	ssp := sp.CreateElement("xades:SignedSignatureProperties")
	ssp.CreateElement("xades:SigningTime").SetText(b.now().UTC().Format(signingTimeFmt))

	certDigest, issuerName, serial := CertDigestAndIssuerSerial(cert, entity.DigestSHA512)
	c := ssp.CreateElement("xades:SigningCertificate").CreateElement("xades:Cert")
	cd := c.CreateElement("xades:CertDigest")
	cd.CreateElement("ds:DigestMethod").CreateAttr("Algorithm", entity.DigestURISHA512)
	cd.CreateElement("ds:DigestValue").SetText(certDigest)
	is := c.CreateElement("xades:IssuerSerial")
	is.CreateElement("ds:X509IssuerName").SetText(issuerName)
	is.CreateElement("ds:X509SerialNumber").SetText(serial)

	if !params.Place.IsZero() {
		pp := ssp.CreateElement("xades:SignatureProductionPlace")
		addIfSet(pp, "xades:City", params.Place.City)
		addIfSet(pp, "xades:StateOrProvince", params.Place.StateOrProvince)
		addIfSet(pp, "xades:PostalCode", params.Place.PostalCode)
		addIfSet(pp, "xades:CountryName", params.Place.CountryName)
	}
	if len(params.Roles) > 0 {
		claimed := ssp.CreateElement("xades:SignerRole").CreateElement("xades:ClaimedRoles")
		for _, r := range params.Roles {
			claimed.CreateElement("xades:ClaimedRole").SetText(r)
		}
	}

	sdop := sp.CreateElement("xades:SignedDataObjectProperties")
	for i, f := range dataFiles {
		dof := sdop.CreateElement("xades:DataObjectFormat")
		dof.CreateAttr("ObjectReference", "#"+referenceID(sigID, i))
		dof.CreateElement("xades:MimeType").SetText(hashcode.MediaType(f.Name))
	}
	return sp
}

func addIfSet(parent *etree.Element, tag, value string) {
	if strings.TrimSpace(value) != "" {
		parent.CreateElement(tag).SetText(value)
	}
}

func referenceID(sigID string, i int) string {
	return "r-" + sigID + "-" + strconv.Itoa(i+1)
}

// FinalizeSignature verifica el valor de firma contra el certificado de la plantilla y lo inserta en ds:SignatureValue.
func (b *Builder) FinalizeSignature(dts entity.DataToSign, signatureValue []byte) ([]byte, error) {
	if dts.DigestAlgorithm != entity.SigningDigestAlgorithm {
		return nil, fmt.Errorf("xades: %w: algoritmo %s no soportado", domain.ErrInvalidInput, dts.DigestAlgorithm)
	}
	if len(signatureValue) == 0 {
		return nil, fmt.Errorf("xades: %w: valor de firma vacío", domain.ErrInvalidSignatureValue)
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(dts.State); err != nil {
		return nil, fmt.Errorf("xades: plantilla de firma ilegible: %w", err)
	}
	certEl := doc.FindElement("//KeyInfo/X509Data/X509Certificate")
	svEl := doc.FindElement("//Signature/SignatureValue")
	if certEl == nil || svEl == nil {
		return nil, fmt.Errorf("xades: plantilla de firma incompleta")
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certEl.Text()), ""))
	if err != nil {
		return nil, fmt.Errorf("xades: certificado de la plantilla: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("xades: certificado de la plantilla: %w", err)
	}
	value, err := verifySignatureValue(cert, dts.Payload, signatureValue)
	if err != nil {
		return nil, err
	}
	svEl.SetText(base64.StdEncoding.EncodeToString(value))

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("xades: serializar firma: %w", err)
	}
	return out, nil
}

// verifySignatureValue comprueba la firma SHA-512 del payload. Para ECDSA acepta r||s o ASN.1 y
// devuelve siempre r||s, que es la forma de XMLDSig.
func verifySignatureValue(cert *x509.Certificate, payload, value []byte) ([]byte, error) {
	hash := sha512.Sum512(payload)
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(pub, crypto.SHA512, hash[:], value); err != nil {
			return nil, fmt.Errorf("xades: %w", domain.ErrInvalidSignatureValue)
		}
		return value, nil
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		if len(value) == 2*size {
			r := new(big.Int).SetBytes(value[:size])
			s := new(big.Int).SetBytes(value[size:])
			if ecdsa.Verify(pub, hash[:], r, s) {
				return value, nil
			}
		}
		if !ecdsa.VerifyASN1(pub, hash[:], value) {
			return nil, fmt.Errorf("xades: %w", domain.ErrInvalidSignatureValue)
		}
		var parsed struct{ R, S *big.Int }
		if _, err := asn1.Unmarshal(value, &parsed); err != nil {
			return nil, fmt.Errorf("xades: %w", domain.ErrInvalidSignatureValue)
		}
		raw := make([]byte, 2*size)
		parsed.R.FillBytes(raw[:size])
		parsed.S.FillBytes(raw[size:])
		return raw, nil
	default:
		return nil, fmt.Errorf("xades: %w: tipo de llave %T no soportado", domain.ErrInvalidInput, cert.PublicKey)
	}
}

// canonicalElement serializa el elemento solo y lo canonicaliza.
func canonicalElement(el *etree.Element) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	return canonicalizeXML(raw)
}

func canonicalizeXML(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	return c14n.Canonicalize(dec)
}

var _ signing.SignatureBuilder = (*Builder)(nil)
