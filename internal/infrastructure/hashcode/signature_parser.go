package hashcode

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// TypeSignedProperties tipo de la ds:Reference que apunta a las propiedades XAdES firmadas.
const TypeSignedProperties = "http://uri.etsi.org/01903#SignedProperties"

// ParseSignatureDataFiles extrae de una firma XAdES el mapeo archivo de datos -> digest declarado en sus
// ds:Reference. Se ignoran las referencias internas (URI "#...") y la de SignedProperties.
func ParseSignatureDataFiles(signature []byte) (map[string]entity.SignatureDataFileEntry, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signature); err != nil {
		return nil, fmt.Errorf("%w: firma XML ilegible: %v", domain.ErrInvalidContainer, err)
	}
	refs := doc.FindElements("//SignedInfo/Reference")
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: la firma no contiene ds:SignedInfo/ds:Reference", domain.ErrInvalidContainer)
	}

	out := make(map[string]entity.SignatureDataFileEntry, len(refs))
	for _, ref := range refs {
		uri := ref.SelectAttrValue("URI", "")
		if uri == "" || strings.HasPrefix(uri, "#") || ref.SelectAttrValue("Type", "") == TypeSignedProperties {
			continue
		}
		name, err := url.PathUnescape(uri)
		if err != nil {
			return nil, fmt.Errorf("%w: URI de referencia %q inválida", domain.ErrInvalidContainer, uri)
		}
		name = norm.NFC.String(name)
		method := ref.FindElement("./DigestMethod")
		value := ref.FindElement("./DigestValue")
		if method == nil || value == nil {
			return nil, fmt.Errorf("%w: la referencia a %q no tiene DigestMethod/DigestValue", domain.ErrInvalidContainer, name)
		}
		alg, ok := entity.DigestAlgorithmFromURI(method.SelectAttrValue("Algorithm", ""))
		if !ok {
			return nil, fmt.Errorf("%w: algoritmo de digest %q no soportado", domain.ErrInvalidContainer, method.SelectAttrValue("Algorithm", ""))
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("%w: la firma referencia %q más de una vez", domain.ErrInvalidContainer, name)
		}
		out[name] = entity.SignatureDataFileEntry{
			DigestAlgorithm: alg,
			Digest:          strings.Join(strings.Fields(value.Text()), ""),
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: la firma no referencia archivos de datos", domain.ErrInvalidContainer)
	}
	return out, nil
}
