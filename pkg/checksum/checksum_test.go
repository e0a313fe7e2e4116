package checksum

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/soar-dl/pkg/transport"
)

func TestDetectHashType(t *testing.T) {
	tests := []struct {
		name     string
		checksum string
		want     HashType
	}{
		{"explicit sha256 prefix", "sha256:abc123", HashTypeSHA256},
		{"explicit md5 prefix", "md5:abc123", HashTypeMD5},
		{"bare md5 length", "d41d8cd98f00b204e9800998ecf8427e", HashTypeMD5},
		{"bare sha1 length", "da39a3ee5e6b4b0d3255bfef95601890afd80709", HashTypeSHA1},
		{"bare sha256 length", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashTypeSHA256},
		{"unknown length defaults to sha256", "deadbeef", HashTypeSHA256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectHashType(tt.checksum))
		})
	}
}

func TestParseChecksum(t *testing.T) {
	value, hashType := ParseChecksum("sha256:abcdef")
	assert.Equal(t, "abcdef", value)
	assert.Equal(t, HashTypeSHA256, hashType)

	value, hashType = ParseChecksum("d41d8cd98f00b204e9800998ecf8427e")
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", value)
	assert.Equal(t, HashTypeMD5, hashType)
}

func TestParseChecksumWithType(t *testing.T) {
	value, hashType, err := ParseChecksumWithType("sha512:abcdef")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", value)
	assert.Equal(t, HashTypeSHA512, hashType)

	_, _, err = ParseChecksumWithType("abcdef")
	require.Error(t, err)
}

func TestCalculateFileChecksumAndVerify(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum, err := CalculateFileChecksum(path, HashTypeSHA256)
	require.NoError(t, err)
	assert.Len(t, sum, 64)

	_, err = VerifyFile(path, FormatChecksum(sum, HashTypeSHA256))
	require.NoError(t, err)

	_, err = VerifyFile(path, FormatChecksum("0000", HashTypeSHA256))
	assert.Error(t, err)
}

func TestProbeB3SumRecognizedPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n"))
	}))
	defer srv.Close()

	client, err := transport.New(transport.Config{})
	require.NoError(t, err)

	checksum, ok, err := ProbeB3Sum(context.Background(), client, srv.URL+"/asset.tar.gz")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", checksum)
}

func TestProbeB3SumUnprefixedLineSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n"))
	}))
	defer srv.Close()

	client, err := transport.New(transport.Config{})
	require.NoError(t, err)

	_, ok, err := ProbeB3Sum(context.Background(), client, srv.URL+"/asset.tar.gz")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProbeB3SumMissingSiblingSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := transport.New(transport.Config{})
	require.NoError(t, err)

	_, ok, err := ProbeB3Sum(context.Background(), client, srv.URL+"/asset.tar.gz")
	require.NoError(t, err)
	assert.False(t, ok)
}
