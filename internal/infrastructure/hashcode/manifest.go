package hashcode

import (
	"bytes"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// Manifiesto ODF de ASiC-E (META-INF/manifest.xml).
const (
	NamespaceManifest   = "urn:oasis:names:tc:opendocument:xmlns:manifest:1.0"
	manifestVersion     = "1.2"
	defaultMediaType    = "application/octet-stream"
	manifestRootElement = "manifest:manifest"
	manifestFileEntry   = "manifest:file-entry"
)

// mediaTypes tabla fija de tipos por extensión. No se consulta el sistema (mime.types) para que
// el manifiesto sea idéntico en cualquier máquina.
var mediaTypes = map[string]string{
	".txt":   "text/plain",
	".xml":   "text/xml",
	".html":  "text/html",
	".htm":   "text/html",
	".csv":   "text/csv",
	".json":  "application/json",
	".pdf":   "application/pdf",
	".doc":   "application/msword",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":   "application/vnd.ms-excel",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".odt":   "application/vnd.oasis.opendocument.text",
	".ods":   "application/vnd.oasis.opendocument.spreadsheet",
	".rtf":   "application/rtf",
	".zip":   "application/zip",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".bdoc":  "application/vnd.etsi.asic-e+zip",
	".asice": "application/vnd.etsi.asic-e+zip",
	".sce":   "application/vnd.etsi.asic-e+zip",
	".asics": "application/vnd.etsi.asic-s+zip",
	".ddoc":  "application/x-ddoc",
}

// MediaType deduce el tipo MIME declarado para un archivo de datos a partir de su extensión.
func MediaType(name string) string {
	if mt, ok := mediaTypes[strings.ToLower(path.Ext(name))]; ok {
		return mt
	}
	return defaultMediaType
}

// encodeManifest lista la raíz del contenedor y cada archivo de datos con su tipo y tamaño declarado.
func encodeManifest(files []entity.DataFileDigest) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", xmlDeclaration)
	root := doc.CreateElement(manifestRootElement)
	root.CreateAttr("xmlns:manifest", NamespaceManifest)
	root.CreateAttr("manifest:version", manifestVersion)

	rootEntry := root.CreateElement(manifestFileEntry)
	rootEntry.CreateAttr("manifest:full-path", "/")
	rootEntry.CreateAttr("manifest:media-type", MimeTypeASiCE)

	for _, f := range files {
		e := root.CreateElement(manifestFileEntry)
		e.CreateAttr("manifest:full-path", f.Name)
		e.CreateAttr("manifest:media-type", MediaType(f.Name))
		e.CreateAttr("manifest:size", strconv.FormatInt(f.Size, 10))
	}
	doc.Indent(2)
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("hashcode: serializar manifest: %w", err)
	}
	return buf.Bytes(), nil
}
