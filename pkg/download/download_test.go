package download

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

func newTestClient(t *testing.T) *transport.Client {
	t.Helper()
	client, err := transport.New(transport.Config{})
	require.NoError(t, err)
	return client
}

func rangeServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(body)
			return
		}
		var start int
		_, err := fmt.Sscanf(rangeHeader, "bytes=%d-", &start)
		require.NoError(t, err)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)-start))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(body[start:])
	}))
}

func TestExecuteDownloadsFreshFile(t *testing.T) {
	body := []byte(strings.Repeat("soar-dl", 1000))
	srv := rangeServer(t, body)
	defer srv.Close()

	dir := t.TempDir()
	engine := New(newTestClient(t))
	job := types.DownloadJob{
		ID:    "test",
		Asset: types.Asset{Name: "payload.bin", URL: srv.URL, Size: int64(len(body))},
		Output: types.OutputPlan{
			Dir: dir,
		},
	}

	result := engine.Execute(t.Context(), nil, job)
	require.NoError(t, result.Err)
	assert.False(t, result.Skipped)

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	_, statErr := os.Stat(result.Path + ".part")
	assert.True(t, os.IsNotExist(statErr))
}

func TestExecuteVerifiesChecksum(t *testing.T) {
	body := []byte("checksummed contents")
	sum := sha256.Sum256(body)
	srv := rangeServer(t, body)
	defer srv.Close()

	dir := t.TempDir()
	engine := New(newTestClient(t))
	job := types.DownloadJob{
		ID:       "test",
		Asset:    types.Asset{Name: "payload.bin", URL: srv.URL, Size: int64(len(body))},
		Output:   types.OutputPlan{Dir: dir},
		Checksum: fmt.Sprintf("sha256:%x", sum),
	}

	result := engine.Execute(t.Context(), nil, job)
	require.NoError(t, result.Err)
}

func TestExecuteChecksumMismatchFails(t *testing.T) {
	body := []byte("tampered contents")
	srv := rangeServer(t, body)
	defer srv.Close()

	dir := t.TempDir()
	engine := New(newTestClient(t))
	job := types.DownloadJob{
		ID:       "test",
		Asset:    types.Asset{Name: "payload.bin", URL: srv.URL, Size: int64(len(body))},
		Output:   types.OutputPlan{Dir: dir},
		Checksum: "sha256:0000000000000000000000000000000000000000000000000000000000000000",
	}

	result := engine.Execute(t.Context(), nil, job)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "digest mismatch")
}

func TestExecuteSkipsExistingFile(t *testing.T) {
	body := []byte("existing contents")
	srv := rangeServer(t, body)
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(dest, []byte("already here"), 0o644))

	engine := New(newTestClient(t))
	job := types.DownloadJob{
		ID:     "test",
		Asset:  types.Asset{Name: "payload.bin", URL: srv.URL},
		Output: types.OutputPlan{Dir: dir, OnExists: types.ExistsSkip},
	}

	result := engine.Execute(t.Context(), nil, job)
	require.NoError(t, result.Err)
	assert.True(t, result.Skipped)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(got))
}

func TestExecuteResumesFromPartFile(t *testing.T) {
	body := []byte(strings.Repeat("resumable-chunk-", 200))
	srv := rangeServer(t, body)
	defer srv.Close()

	dir := t.TempDir()
	part := filepath.Join(dir, "payload.bin.part")
	half := len(body) / 2
	require.NoError(t, os.WriteFile(part, body[:half], 0o644))

	engine := New(newTestClient(t))
	job := types.DownloadJob{
		ID:     "test",
		Asset:  types.Asset{Name: "payload.bin", URL: srv.URL, Size: int64(len(body))},
		Output: types.OutputPlan{Dir: dir, OnExists: types.ExistsResume},
	}

	result := engine.Execute(t.Context(), nil, job)
	require.NoError(t, result.Err)

	got, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestExecuteDefaultResumeErrorsOnCompleteFile(t *testing.T) {
	body := []byte("finished contents")
	srv := rangeServer(t, body)
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "payload.bin")
	require.NoError(t, os.WriteFile(dest, body, 0o644))

	engine := New(newTestClient(t))
	job := types.DownloadJob{
		ID:     "test",
		Asset:  types.Asset{Name: "payload.bin", URL: srv.URL},
		Output: types.OutputPlan{Dir: dir},
	}

	result := engine.Execute(t.Context(), nil, job)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "already exists")
}
