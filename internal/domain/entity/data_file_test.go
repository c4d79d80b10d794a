package entity_test

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/siga-gateway/internal/domain"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

func TestNewDataFileDigest_Validaciones(t *testing.T) {
	h256 := bytes.Repeat([]byte{1}, sha256.Size)
	h512 := bytes.Repeat([]byte{2}, sha512.Size)

	tests := []struct {
		name    string
		file    string
		size    int64
		sha256  []byte
		sha512  []byte
		wantErr bool
	}{
		{"válido", "documento.pdf", 1, h256, h512, false},
		{"sin sha512", "documento.pdf", 1, h256, nil, false},
		{"nombre vacío", "  ", 1, h256, nil, true},
		{"nombre largo", strings.Repeat("a", 261), 1, h256, nil, true},
		{"nombre 260", strings.Repeat("a", 260), 1, h256, nil, false},
		{"recorrido de ruta", "..secreto", 1, h256, nil, true},
		{"barra", "dir/a.txt", 1, h256, nil, true},
		{"reservado", "a?.txt", 1, h256, nil, true},
		{"control", "a\x01.txt", 1, h256, nil, true},
		{"tamaño cero", "a.txt", 0, h256, nil, true},
		{"sha256 corto", "a.txt", 1, h256[:31], nil, true},
		{"sha512 corto", "a.txt", 1, h256, h512[:10], true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := entity.NewDataFileDigest(tt.file, tt.size, tt.sha256, tt.sha512)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidInput)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestNewDataFileDigest_NormalizaNFC(t *testing.T) {
	decomposed := "cafe\u0301.txt"
	f, err := entity.NewDataFileDigest(decomposed, 5, bytes.Repeat([]byte{1}, 32), nil)
	require.NoError(t, err)
	assert.Equal(t, "caf\u00e9.txt", f.Name)
}

func TestNewDataFileDigest_CopiaDigests(t *testing.T) {
	h256 := bytes.Repeat([]byte{1}, 32)
	f, err := entity.NewDataFileDigest("a.txt", 5, h256, nil)
	require.NoError(t, err)
	h256[0] = 9
	assert.Equal(t, byte(1), f.SHA256[0])
	assert.Nil(t, f.SHA512)
	assert.Equal(t, "", f.SHA512Base64())
}

func TestNewDataFileDigestFromBase64(t *testing.T) {
	h256 := sha256.Sum256([]byte("hola"))
	h512 := sha512.Sum512([]byte("hola"))
	b256 := base64.StdEncoding.EncodeToString(h256[:])
	b512 := base64.StdEncoding.EncodeToString(h512[:])

	f, err := entity.NewDataFileDigestFromBase64("hola.txt", 4, b256, b512)
	require.NoError(t, err)
	assert.Equal(t, b256, f.SHA256Base64())
	assert.Equal(t, b512, f.SHA512Base64())
	assert.Equal(t, h512[:], f.Digest(entity.DigestSHA512))
	assert.Nil(t, f.Digest(entity.DigestSHA384))

	_, err = entity.NewDataFileDigestFromBase64("hola.txt", 4, "%%%", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDigestAlgorithmFromURI(t *testing.T) {
	alg, ok := entity.DigestAlgorithmFromURI(entity.DigestURISHA256)
	require.True(t, ok)
	assert.Equal(t, entity.DigestSHA256, alg)

	alg, ok = entity.DigestAlgorithmFromURI(" " + entity.DigestURISHA512 + " ")
	require.True(t, ok)
	assert.Equal(t, entity.DigestSHA512, alg)
	assert.Equal(t, entity.DigestURISHA512, alg.URI())

	_, ok = entity.DigestAlgorithmFromURI("http://www.w3.org/2000/09/xmldsig#sha1")
	assert.False(t, ok)
}

func TestParseSignatureProfile(t *testing.T) {
	p, err := entity.ParseSignatureProfile("lt_tm")
	require.NoError(t, err)
	assert.Equal(t, entity.SignatureProfileLTTM, p)

	_, err = entity.ParseSignatureProfile("B_BES")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewCollectedSignature(t *testing.T) {
	_, err := entity.NewCollectedSignature(nil, map[string]entity.SignatureDataFileEntry{"a": {}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = entity.NewCollectedSignature([]byte("x"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	entries := map[string]entity.SignatureDataFileEntry{"a": {DigestAlgorithm: entity.DigestSHA256, Digest: "AA=="}}
	sig, err := entity.NewCollectedSignature([]byte("x"), entries)
	require.NoError(t, err)
	entries["b"] = entity.SignatureDataFileEntry{}
	assert.Len(t, sig.DataFiles, 1)
}
