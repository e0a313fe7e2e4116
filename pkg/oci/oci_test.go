package oci

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWWWAuthenticate(t *testing.T) {
	header := `Bearer realm="https://ghcr.io/token",service="ghcr.io",scope="repository:owner/repo:pull"`
	ch, err := parseWWWAuthenticate(header)
	require.NoError(t, err)
	assert.Equal(t, "https://ghcr.io/token", ch.realm)
	assert.Equal(t, "ghcr.io", ch.service)
	assert.Equal(t, "repository:owner/repo:pull", ch.scope)
}

func TestParseWWWAuthenticateRejectsBasic(t *testing.T) {
	_, err := parseWWWAuthenticate(`Basic realm="registry"`)
	require.Error(t, err)
}

func TestTokenCacheExpiry(t *testing.T) {
	c := newTokenCache()
	c.set("scope", "tok", 0)
	_, ok := c.get("scope")
	assert.False(t, ok, "zero-ttl token should already be expired")

	c.set("scope2", "tok2", 1000*time.Second)
	got, ok := c.get("scope2")
	require.True(t, ok)
	assert.Equal(t, "tok2", got)
}

func TestRepoScope(t *testing.T) {
	assert.Equal(t, "repository:owner/repo:pull", repoScope("owner/repo"))
}

func TestIsIndexMediaType(t *testing.T) {
	assert.True(t, isIndexMediaType("application/vnd.oci.image.index.v1+json"))
	assert.True(t, isIndexMediaType("application/vnd.docker.distribution.manifest.list.v2+json"))
	assert.False(t, isIndexMediaType("application/vnd.oci.image.manifest.v1+json"))
}
