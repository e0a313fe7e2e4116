// Package direct turns a plain URL into a single-asset synthetic
// Release, so the orchestrator can run direct downloads through the
// exact same filter/select/download pipeline as the other providers.
package direct

import (
	"context"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// Provider resolves direct URLs.
type Provider struct {
	Client *transport.Client
}

func New(client *transport.Client) *Provider {
	return &Provider{Client: client}
}

func (p *Provider) Kind() types.ProviderKind { return types.ProviderDirect }

// Resolve performs a HEAD request to pick up size/content-type, but
// never fails the resolution if the server doesn't support HEAD or
// declines it; the download engine re-verifies everything while
// streaming regardless.
func (p *Provider) Resolve(ctx context.Context, ref types.ProjectRef) (types.Release, error) {
	name := path.Base(ref.URL)
	asset := types.Asset{
		Name:   name,
		URL:    ref.URL,
		Source: types.ProviderDirect,
	}

	resp, err := p.Client.Head(ctx, ref.URL, nil)
	if err != nil {
		logger.V(3).Infof("HEAD %s failed, proceeding without metadata: %v", ref.URL, err)
	} else {
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if cl := resp.Header.Get("Content-Length"); cl != "" {
				if size, err := strconv.ParseInt(cl, 10, 64); err == nil {
					asset.Size = size
				}
			}
			asset.ContentType = resp.Header.Get("Content-Type")
			if digest := extractDigestHeader(resp.Header); digest != "" {
				asset.Digest = digest
			}
		}
	}

	return types.Release{
		Tag:    "",
		Assets: []types.Asset{asset},
	}, nil
}

// extractDigestHeader reads an OCI-style Docker-Content-Digest or a
// X-Checksum-Sha256 style header, whichever a direct host happens to
// advertise; most hosts offer neither, and that's fine.
func extractDigestHeader(h http.Header) string {
	if v := h.Get("Docker-Content-Digest"); v != "" {
		return v
	}
	if v := h.Get("X-Checksum-Sha256"); v != "" {
		return "sha256:" + strings.ToLower(v)
	}
	return ""
}
