package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

func apiBaseOverrideForTest(base string) func() {
	old := apiBase
	apiBase = base
	return func() { apiBase = old }
}

func TestResolveLatestRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/releases/latest"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"tag_name": "v1.2.3",
			"name": "v1.2.3",
			"assets": [
				{"name": "tool-linux-amd64.tar.gz", "browser_download_url": "https://example.com/a", "digest": "sha256:abc", "size": 100}
			]
		}`))
	}))
	defer srv.Close()

	client, err := transport.New(transport.Config{})
	require.NoError(t, err)
	p := New(client)

	old := apiBaseOverrideForTest(srv.URL)
	defer old()

	release, err := p.Resolve(context.Background(), types.ProjectRef{Owner: "o", Repo: "r"})
	require.NoError(t, err)
	assert.Equal(t, "v1.2.3", release.Tag)
	require.Len(t, release.Assets, 1)
	assert.Equal(t, "sha256:abc", release.Assets[0].Digest)
}

func TestResolveNotFoundReturnsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := transport.New(transport.Config{})
	require.NoError(t, err)
	p := New(client)

	old := apiBaseOverrideForTest(srv.URL)
	defer old()

	_, err = p.Resolve(context.Background(), types.ProjectRef{Owner: "o", Repo: "r", Tag: "vX"})
	require.Error(t, err)
	var notFound *soarerrors.NoReleaseFound
	assert.ErrorAs(t, err, &notFound)
}
