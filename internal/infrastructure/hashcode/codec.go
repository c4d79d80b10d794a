// Contenedor ASiC-E "hashcode": ZIP con los digests de los archivos de datos en lugar de sus cuerpos.

package hashcode

import (
	"archive/zip"
	"bytes"
	"fmt"
	"hash/crc32"
	"io"
	"regexp"
	"sort"
	"strconv"

	"github.com/klauspost/compress/flate"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

// Nombres de las entradas del contenedor.
const (
	MimeTypeEntry        = "mimetype"
	HashcodesSHA256Entry = "META-INF/hashcodes-sha256.xml"
	HashcodesSHA512Entry = "META-INF/hashcodes-sha512.xml"
	ManifestEntry        = "META-INF/manifest.xml"
	signaturePrefix      = "META-INF/signatures"
	signatureExtension   = ".xml"

	// MimeTypeASiCE contenido literal de la entrada mimetype.
	MimeTypeASiCE = "application/vnd.etsi.asic-e+zip"
)

// Límites por defecto de lectura.
const (
	DefaultMaxContainerSize int64 = 32 << 20
	DefaultMaxEntrySize     int64 = 8 << 20
)

var signatureEntryPattern = regexp.MustCompile(`^META-INF/signatures(\d+)\.xml$`)

// SignatureEntryName devuelve el nombre de la entrada de la firma i (0..N).
func SignatureEntryName(i int) string {
	return signaturePrefix + strconv.Itoa(i) + signatureExtension
}

// Container contenido lógico de un contenedor hashcode.
type Container struct {
	DataFiles  []entity.DataFileDigest
	Signatures []entity.CollectedSignature
}

// Codec serializa y deserializa contenedores hashcode. Es seguro para uso concurrente.
type Codec struct {
	maxContainerSize int64
	maxEntrySize     int64
}

// Option configura el Codec.
type Option func(*Codec)

// WithMaxContainerSize limita el tamaño total del ZIP aceptado por Read.
func WithMaxContainerSize(n int64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxContainerSize = n
		}
	}
}

// WithMaxEntrySize limita el tamaño descomprimido de cada entrada leída.
func WithMaxEntrySize(n int64) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxEntrySize = n
		}
	}
}

// NewCodec crea el codec con los límites por defecto o los indicados.
func NewCodec(opts ...Option) *Codec {
	c := &Codec{maxContainerSize: DefaultMaxContainerSize, maxEntrySize: DefaultMaxEntrySize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Write arma el ZIP. Entradas, en orden: mimetype, hashcodes SHA-256, hashcodes SHA-512,
// signatures{i}.xml (una por firma, con sus propios bytes) y manifest.xml.
// Para la misma entrada produce siempre los mismos bytes. Ante cualquier error no devuelve nada parcial.
func (c *Codec) Write(dataFiles []entity.DataFileDigest, signatures []entity.CollectedSignature) ([]byte, error) {
	if len(dataFiles) == 0 {
		return nil, fmt.Errorf("hashcode: %w: el contenedor no tiene archivos de datos", domain.ErrNoDataFiles)
	}
	index := make(map[string]entity.DataFileDigest, len(dataFiles))
	for _, f := range dataFiles {
		if _, dup := index[f.Name]; dup {
			return nil, fmt.Errorf("hashcode: %w: archivo de datos %q duplicado", domain.ErrInvalidInput, f.Name)
		}
		index[f.Name] = f
	}
	for i, sig := range signatures {
		if err := checkSignatureDigests(index, sig.DataFiles); err != nil {
			return nil, fmt.Errorf("hashcode: firma %d: %w", i, err)
		}
	}

	h256, err := encodeHashcodes(dataFiles, entity.DigestSHA256)
	if err != nil {
		return nil, err
	}
	h512, err := encodeHashcodes(dataFiles, entity.DigestSHA512)
	if err != nil {
		return nil, err
	}
	manifest, err := encodeManifest(dataFiles)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	if err := writeStored(zw, MimeTypeEntry, []byte(MimeTypeASiCE)); err != nil {
		return nil, err
	}
	if err := writeDeflated(zw, HashcodesSHA256Entry, h256); err != nil {
		return nil, err
	}
	if err := writeDeflated(zw, HashcodesSHA512Entry, h512); err != nil {
		return nil, err
	}
	for i, sig := range signatures {
		if err := writeStored(zw, SignatureEntryName(i), sig.Signature); err != nil {
			return nil, err
		}
	}
	if err := writeDeflated(zw, ManifestEntry, manifest); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("hashcode: cerrar zip: %w", err)
	}
	return buf.Bytes(), nil
}

// writeStored escribe una entrada sin comprimir con CRC32 y tamaños en el encabezado local
// (sin data descriptor), como exige ASiC para mimetype.
func writeStored(zw *zip.Writer, name string, data []byte) error {
	fh := &zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CRC32:              crc32.ChecksumIEEE(data),
		CompressedSize64:   uint64(len(data)),
		UncompressedSize64: uint64(len(data)),
	}
	w, err := zw.CreateRaw(fh)
	if err != nil {
		return fmt.Errorf("hashcode: crear entrada %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("hashcode: escribir entrada %s: %w", name, err)
	}
	return nil
}

func writeDeflated(zw *zip.Writer, name string, data []byte) error {
	// Modified en cero: sin fecha ni campo extra de timestamp, para que el ZIP sea reproducible.
	w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return fmt.Errorf("hashcode: crear entrada %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("hashcode: escribir entrada %s: %w", name, err)
	}
	return nil
}

// Read interpreta un contenedor hashcode. Rechaza ZIPs sin mimetype, sin ninguno de los dos archivos
// de hashcodes, o con firmas que referencian digests distintos a los declarados (ErrContainerIntegrity).
// El contenedor se acepta o se rechaza completo.
func (c *Codec) Read(data []byte) (*Container, error) {
	if int64(len(data)) > c.maxContainerSize {
		return nil, fmt.Errorf("hashcode: %w: el contenedor excede %d bytes", domain.ErrInvalidContainer, c.maxContainerSize)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("hashcode: %w: zip ilegible: %v", domain.ErrInvalidContainer, err)
	}
	zr.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	var (
		mimetype       []byte
		h256, h512     []byte
		has256, has512 bool
		sigEntries     []indexedEntry
	)
	seen := make(map[string]struct{}, len(zr.File))
	seenIndex := make(map[int]struct{})
	for _, f := range zr.File {
		if _, dup := seen[f.Name]; dup {
			return nil, fmt.Errorf("hashcode: %w: entrada %s repetida", domain.ErrInvalidContainer, f.Name)
		}
		seen[f.Name] = struct{}{}
		switch {
		case f.Name == MimeTypeEntry:
			if mimetype, err = c.readEntry(f); err != nil {
				return nil, err
			}
		case f.Name == HashcodesSHA256Entry:
			if h256, err = c.readEntry(f); err != nil {
				return nil, err
			}
			has256 = true
		case f.Name == HashcodesSHA512Entry:
			if h512, err = c.readEntry(f); err != nil {
				return nil, err
			}
			has512 = true
		default:
			if m := signatureEntryPattern.FindStringSubmatch(f.Name); m != nil {
				idx, convErr := strconv.Atoi(m[1])
				if convErr != nil {
					return nil, fmt.Errorf("hashcode: %w: índice de firma %q", domain.ErrInvalidContainer, m[1])
				}
				// signatures0.xml y signatures00.xml ocupan el mismo índice.
				if _, dup := seenIndex[idx]; dup {
					return nil, fmt.Errorf("hashcode: %w: índice de firma %d repetido", domain.ErrInvalidContainer, idx)
				}
				seenIndex[idx] = struct{}{}
				sigEntries = append(sigEntries, indexedEntry{index: idx, file: f})
			}
		}
	}

	if mimetype == nil {
		return nil, fmt.Errorf("hashcode: %w: falta la entrada mimetype", domain.ErrInvalidContainer)
	}
	if string(bytes.TrimSpace(mimetype)) != MimeTypeASiCE {
		return nil, fmt.Errorf("hashcode: %w: mimetype %q no soportado", domain.ErrInvalidContainer, mimetype)
	}
	if !has256 && !has512 {
		return nil, fmt.Errorf("hashcode: %w: faltan los archivos de hashcodes", domain.ErrInvalidContainer)
	}

	dataFiles, err := mergeHashcodes(h256, has256, h512, has512)
	if err != nil {
		return nil, err
	}
	index := make(map[string]entity.DataFileDigest, len(dataFiles))
	for _, f := range dataFiles {
		index[f.Name] = f
	}

	sort.Slice(sigEntries, func(i, j int) bool { return sigEntries[i].index < sigEntries[j].index })
	signatures := make([]entity.CollectedSignature, 0, len(sigEntries))
	for _, e := range sigEntries {
		raw, err := c.readEntry(e.file)
		if err != nil {
			return nil, err
		}
		entries, err := ParseSignatureDataFiles(raw)
		if err != nil {
			return nil, fmt.Errorf("hashcode: %s: %w", e.file.Name, err)
		}
		if err := checkSignatureDigests(index, entries); err != nil {
			return nil, fmt.Errorf("hashcode: %s: %w", e.file.Name, err)
		}
		sig, err := entity.NewCollectedSignature(raw, entries)
		if err != nil {
			return nil, fmt.Errorf("hashcode: %s: %w", e.file.Name, err)
		}
		signatures = append(signatures, sig)
	}
	return &Container{DataFiles: dataFiles, Signatures: signatures}, nil
}

type indexedEntry struct {
	index int
	file  *zip.File
}

// readEntry lee una entrada completa respetando el límite por entrada, aunque el encabezado mienta sobre el tamaño.
func (c *Codec) readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > uint64(c.maxEntrySize) {
		return nil, fmt.Errorf("hashcode: %w: la entrada %s excede %d bytes", domain.ErrInvalidContainer, f.Name, c.maxEntrySize)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("hashcode: %w: abrir %s: %v", domain.ErrInvalidContainer, f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, c.maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("hashcode: %w: leer %s: %v", domain.ErrInvalidContainer, f.Name, err)
	}
	if int64(len(data)) > c.maxEntrySize {
		return nil, fmt.Errorf("hashcode: %w: la entrada %s excede %d bytes", domain.ErrInvalidContainer, f.Name, c.maxEntrySize)
	}
	return data, nil
}

// checkSignatureDigests verifica que cada archivo referenciado por la firma exista y que su digest coincida
// con el declarado en los hashcodes para ese algoritmo.
func checkSignatureDigests(index map[string]entity.DataFileDigest, entries map[string]entity.SignatureDataFileEntry) error {
	for name, e := range entries {
		f, ok := index[name]
		if !ok {
			return fmt.Errorf("%w: la firma referencia el archivo desconocido %q", domain.ErrContainerIntegrity, name)
		}
		recorded := f.Digest(e.DigestAlgorithm)
		if len(recorded) == 0 {
			return fmt.Errorf("%w: %q no declara digest %s", domain.ErrContainerIntegrity, name, e.DigestAlgorithm)
		}
		if encodeOrEmpty(recorded) != e.Digest {
			return fmt.Errorf("%w: el digest %s de %q no coincide con los hashcodes", domain.ErrContainerIntegrity, e.DigestAlgorithm, name)
		}
	}
	return nil
}

// VerifySignatureDataFiles aplica a una firma nueva la misma verificación que Read aplica a las firmas importadas.
func VerifySignatureDataFiles(dataFiles []entity.DataFileDigest, entries map[string]entity.SignatureDataFileEntry) error {
	index := make(map[string]entity.DataFileDigest, len(dataFiles))
	for _, f := range dataFiles {
		index[f.Name] = f
	}
	return checkSignatureDigests(index, entries)
}
