package hashcode

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// Formato de META-INF/hashcodes-*.xml:
//
//	<hashcodes>
//	  <file-entry full-path="a.txt" hash="BASE64" size="6"/>
//	</hashcodes>
const (
	hashcodesRoot  = "hashcodes"
	fileEntryTag   = "file-entry"
	attrFullPath   = "full-path"
	attrHash       = "hash"
	attrSize       = "size"
	xmlDeclaration = `version="1.0" encoding="UTF-8" standalone="no"`
)

// encodeHashcodes genera el archivo de hashcodes del algoritmo indicado. Los archivos sin digest
// para ese algoritmo se omiten (p. ej. sin SHA-512).
func encodeHashcodes(files []entity.DataFileDigest, alg entity.DigestAlgorithm) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", xmlDeclaration)
	root := doc.CreateElement(hashcodesRoot)
	for _, f := range files {
		digest := f.Digest(alg)
		if len(digest) == 0 {
			continue
		}
		e := root.CreateElement(fileEntryTag)
		e.CreateAttr(attrFullPath, f.Name)
		e.CreateAttr(attrHash, base64.StdEncoding.EncodeToString(digest))
		e.CreateAttr(attrSize, strconv.FormatInt(f.Size, 10))
	}
	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("hashcode: serializar hashcodes %s: %w", alg, err)
	}
	return buf.Bytes(), nil
}

type hashcodeEntry struct {
	name   string
	size   int64
	digest []byte
}

// decodeHashcodes interpreta un archivo de hashcodes validando nombre, tamaño y largo del digest.
func decodeHashcodes(data []byte, alg entity.DigestAlgorithm) ([]hashcodeEntry, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("hashcode: %w: hashcodes %s ilegible: %v", domain.ErrInvalidContainer, alg, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != hashcodesRoot {
		return nil, fmt.Errorf("hashcode: %w: hashcodes %s sin raíz <hashcodes>", domain.ErrInvalidContainer, alg)
	}
	wantLen := sha256.Size
	if alg == entity.DigestSHA512 {
		wantLen = sha512.Size
	}
	seen := make(map[string]struct{})
	var out []hashcodeEntry
	for _, e := range root.SelectElements(fileEntryTag) {
		name := norm.NFC.String(e.SelectAttrValue(attrFullPath, ""))
		if err := entity.ValidateDataFileName(name); err != nil {
			return nil, fmt.Errorf("hashcode: %w: hashcodes %s: %v", domain.ErrInvalidContainer, alg, err)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("hashcode: %w: hashcodes %s: %q duplicado", domain.ErrInvalidContainer, alg, name)
		}
		seen[name] = struct{}{}
		size, err := strconv.ParseInt(strings.TrimSpace(e.SelectAttrValue(attrSize, "")), 10, 64)
		if err != nil || size < 1 {
			return nil, fmt.Errorf("hashcode: %w: hashcodes %s: tamaño inválido para %q", domain.ErrInvalidContainer, alg, name)
		}
		digest, err := base64.StdEncoding.DecodeString(strings.TrimSpace(e.SelectAttrValue(attrHash, "")))
		if err != nil || len(digest) != wantLen {
			return nil, fmt.Errorf("hashcode: %w: hashcodes %s: digest inválido para %q", domain.ErrInvalidContainer, alg, name)
		}
		out = append(out, hashcodeEntry{name: name, size: size, digest: digest})
	}
	return out, nil
}

// mergeHashcodes une los dos archivos de hashcodes: el conjunto de archivos es la unión, en el orden
// del archivo SHA-256 seguido de los que sólo aparecen en el SHA-512. Los tamaños deben coincidir.
func mergeHashcodes(h256 []byte, has256 bool, h512 []byte, has512 bool) ([]entity.DataFileDigest, error) {
	var files []entity.DataFileDigest
	pos := make(map[string]int)
	if has256 {
		entries, err := decodeHashcodes(h256, entity.DigestSHA256)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			pos[e.name] = len(files)
			files = append(files, entity.DataFileDigest{Name: e.name, Size: e.size, SHA256: e.digest})
		}
	}
	if has512 {
		entries, err := decodeHashcodes(h512, entity.DigestSHA512)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			i, ok := pos[e.name]
			if !ok {
				pos[e.name] = len(files)
				files = append(files, entity.DataFileDigest{Name: e.name, Size: e.size, SHA512: e.digest})
				continue
			}
			if files[i].Size != e.size {
				return nil, fmt.Errorf("hashcode: %w: tamaños distintos para %q en los hashcodes", domain.ErrContainerIntegrity, e.name)
			}
			files[i].SHA512 = e.digest
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("hashcode: %w: los hashcodes no declaran archivos de datos", domain.ErrInvalidContainer)
	}
	return files, nil
}

func encodeOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
