// Package oci implements the GHCR/OCI registry protocol by hand:
// unauthenticated probe, WWW-Authenticate challenge parsing, bearer
// token exchange and caching, manifest/index retrieval with dual
// media-type negotiation, platform selection, and bounded concurrent
// blob streaming with digest verification. It deliberately does not
// delegate to oras-go's remote.Repository, since this protocol
// handling is the behavior under test, not incidental plumbing.
package oci

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	digest "github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/platform"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

const manifestAccept = ocispec.MediaTypeImageManifest + ", " +
	ocispec.MediaTypeImageIndex + ", " +
	"application/vnd.docker.distribution.manifest.v2+json, " +
	"application/vnd.docker.distribution.manifest.list.v2+json"

// Client resolves and fetches artifacts from an OCI-distribution
// compatible registry (ghcr.io, by default).
type Client struct {
	http     *transport.Client
	tokens   *tokenCache
	pat      string
	registry string
}

// New builds a Client targeting registry (default "ghcr.io" when
// empty). The token is an optional PAT used for private repositories.
func New(httpClient *transport.Client, registry string) *Client {
	if registry == "" {
		registry = "ghcr.io"
	}
	pat := os.Getenv("GHCR_TOKEN")
	if pat == "" {
		pat = os.Getenv("GITHUB_TOKEN")
	}
	return &Client{http: httpClient, tokens: newTokenCache(), pat: pat, registry: registry}
}

func (c *Client) Kind() types.ProviderKind { return types.ProviderOCI }

// repoScope builds the pull scope string the token endpoint expects.
func repoScope(repo string) string {
	return fmt.Sprintf("repository:%s:pull", repo)
}

// authorize runs one request through the registry; on a 401 it parses
// the WWW-Authenticate challenge, exchanges it for a token, and
// re-issues the request with the Authorization header set.
func (c *Client) authorize(ctx context.Context, req *http.Request, repo string) (*http.Response, error) {
	resp, err := c.http.Do(ctx, req.Clone(ctx))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	wwwAuth := resp.Header.Get("WWW-Authenticate")
	if wwwAuth == "" {
		return nil, &soarerrors.AuthError{Service: "oci", Reason: "registry returned 401 with no WWW-Authenticate header"}
	}
	ch, err := parseWWWAuthenticate(wwwAuth)
	if err != nil {
		return nil, &soarerrors.AuthError{Service: "oci", Reason: err.Error()}
	}
	if ch.scope == "" {
		ch.scope = repoScope(repo)
	}

	token, err := c.fetchToken(ctx, ch, c.pat)
	if err != nil {
		return nil, &soarerrors.AuthError{Service: "oci", Reason: err.Error()}
	}

	retry := req.Clone(ctx)
	retry.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(ctx, retry)
}

// manifestURL builds the GET/HEAD manifest endpoint for repo@ref,
// where ref is a tag or a "sha256:..." digest.
func (c *Client) manifestURL(repo, ref string) string {
	return fmt.Sprintf("https://%s/v2/%s/manifests/%s", c.registry, repo, ref)
}

func (c *Client) blobURL(repo string, d digest.Digest) string {
	return fmt.Sprintf("https://%s/v2/%s/blobs/%s", c.registry, repo, d.String())
}

// fetchManifest retrieves the manifest or index for repo@ref and
// reports which media type came back so the caller can branch.
func (c *Client) fetchManifest(ctx context.Context, repo, ref string) (raw []byte, mediaType string, err error) {
	req, err := http.NewRequest(http.MethodGet, c.manifestURL(repo, ref), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Accept", manifestAccept)

	resp, err := c.authorize(ctx, req, repo)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", &soarerrors.NoReleaseFound{Ref: repo, Tag: ref}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", &soarerrors.HttpError{URL: req.URL.String(), Status: resp.StatusCode}
	}

	body, err := readAll(resp)
	if err != nil {
		return nil, "", err
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// Resolve fetches repo@tag's manifest, walks an index to the entry
// matching the current platform if one is present, and returns a
// Release with one downloadable Asset per layer blob, each carrying
// the digest FetchBlobs verifies while streaming. The image config
// blob is not included.
func (c *Client) Resolve(ctx context.Context, ref types.ProjectRef) (types.Release, error) {
	repo := ref.Repo
	tag := ref.Tag
	if tag == "" {
		tag = "latest"
	}

	raw, mediaType, err := c.fetchManifest(ctx, repo, tag)
	if err != nil {
		return types.Release{}, err
	}

	manifest, err := c.resolveManifest(ctx, repo, raw, mediaType, platform.Current())
	if err != nil {
		return types.Release{}, err
	}

	release := types.Release{Tag: tag}
	for i, layer := range manifest.Layers {
		release.Assets = append(release.Assets, types.Asset{
			Name:   layerName(repo, tag, i, layer),
			URL:    c.blobURL(repo, layer.Digest),
			Size:   layer.Size,
			Digest: layer.Digest.String(),
			Source: types.ProviderOCI,
		})
	}
	if len(release.Assets) == 0 {
		return release, &soarerrors.EmptyAssetSet{Ref: ref.String(), Tag: tag}
	}

	return release, nil
}

// AuthHeaders returns the Authorization header the caller must attach
// when streaming a blob URL previously returned by Resolve; the token
// behind it is the same cached, scope-keyed token authorize() used
// during manifest resolution, re-fetched if it has since expired.
func (c *Client) AuthHeaders(ctx context.Context, repo string) (map[string]string, error) {
	scope := repoScope(repo)
	if token, ok := c.tokens.get(scope); ok {
		return map[string]string{"Authorization": "Bearer " + token}, nil
	}

	req, err := http.NewRequest(http.MethodGet, c.manifestURL(repo, "latest"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", manifestAccept)
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return nil, nil
	}
	ch, err := parseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil, err
	}
	if ch.scope == "" {
		ch.scope = scope
	}
	token, err := c.fetchToken(ctx, ch, c.pat)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// resolveManifest walks index -> manifest when the fetched document
// is an index, selecting the entry matching target by pkg/platform's
// alias-aware scoring with variant as the tie-break.
func (c *Client) resolveManifest(ctx context.Context, repo string, raw []byte, mediaType string, target platform.Platform) (ocispec.Manifest, error) {
	if isIndexMediaType(mediaType) {
		var index ocispec.Index
		if err := json.Unmarshal(raw, &index); err != nil {
			return ocispec.Manifest{}, fmt.Errorf("decoding image index: %w", err)
		}

		best, bestScore := -1, 0
		for i, m := range index.Manifests {
			if m.Platform == nil {
				continue
			}
			score := target.Score(m.Platform.OS, m.Platform.Architecture, m.Platform.Variant)
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			return ocispec.Manifest{}, &soarerrors.NoMatchingPlatform{Ref: repo, Platform: target.String()}
		}

		raw2, _, err := c.fetchManifest(ctx, repo, index.Manifests[best].Digest.String())
		if err != nil {
			return ocispec.Manifest{}, err
		}
		var manifest ocispec.Manifest
		if err := json.Unmarshal(raw2, &manifest); err != nil {
			return ocispec.Manifest{}, fmt.Errorf("decoding selected manifest: %w", err)
		}
		return manifest, nil
	}

	var manifest ocispec.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return ocispec.Manifest{}, fmt.Errorf("decoding manifest: %w", err)
	}
	return manifest, nil
}

func isIndexMediaType(mt string) bool {
	return mt == ocispec.MediaTypeImageIndex || mt == "application/vnd.docker.distribution.manifest.list.v2+json"
}

func layerName(repo, tag string, index int, layer ocispec.Descriptor) string {
	if v, ok := layer.Annotations["org.opencontainers.image.title"]; ok && v != "" {
		return v
	}
	return fmt.Sprintf("%s-%s-layer%d.bin", sanitize(repo), tag, index)
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '/' || r == ':' {
			out = append(out, '-')
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

func readAll(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}

func decodeJSON(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
