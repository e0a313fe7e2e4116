// Package github resolves GitHub release references into Releases,
// reading the REST API directly so the asset digest field (only
// present on the REST representation, not in every SDK's release
// struct) survives into the resolved Asset.
package github

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/flanksource/commons/logger"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// apiBase is a var rather than a const so tests can point it at an
// httptest server.
var apiBase = "https://api.github.com"

// restRelease mirrors the fields of GitHub's REST release
// representation that the resolver needs.
type restRelease struct {
	ID          int64       `json:"id"`
	TagName     string      `json:"tag_name"`
	Name        string      `json:"name"`
	Prerelease  bool        `json:"prerelease"`
	Draft       bool        `json:"draft"`
	HTMLURL     string      `json:"html_url"`
	PublishedAt time.Time   `json:"published_at"`
	Assets      []restAsset `json:"assets"`
}

// restAsset mirrors a release asset, including the "digest" field
// (a "sha256:..." value) that the REST API exposes but the tag/object
// APIs do not.
type restAsset struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Digest             string `json:"digest"`
	Size               int64  `json:"size"`
	ContentType        string `json:"content_type"`
}

// Provider resolves github.com release references.
type Provider struct {
	Client *transport.Client
	token  string
}

func New(client *transport.Client) *Provider {
	p := &Provider{Client: client}
	for _, env := range []string{"GITHUB_TOKEN", "GH_TOKEN", "GITHUB_ACCESS_TOKEN"} {
		if v := os.Getenv(env); v != "" {
			p.token = v
			break
		}
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind { return types.ProviderGitHub }

func (p *Provider) authHeaders() http.Header {
	h := make(http.Header)
	h.Set("Accept", "application/vnd.github+json")
	h.Set("X-GitHub-Api-Version", "2022-11-28")
	if p.token != "" {
		h.Set("Authorization", "Bearer "+p.token)
	}
	return h
}

// Resolve fetches the release matching ref.Tag, or the latest
// non-prerelease, non-draft release when Tag is empty.
func (p *Provider) Resolve(ctx context.Context, ref types.ProjectRef) (types.Release, error) {
	var endpoint string
	if ref.Tag == "" || ref.Tag == "latest" {
		endpoint = fmt.Sprintf("%s/repos/%s/%s/releases/latest", apiBase, ref.Owner, ref.Repo)
	} else {
		endpoint = fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", apiBase, ref.Owner, ref.Repo, ref.Tag)
	}

	var rel restRelease
	if err := p.Client.GetJSON(ctx, endpoint, p.authHeaders(), &rel); err != nil {
		if httpErr, ok := asHttpError(err); ok {
			if httpErr.Status == http.StatusNotFound {
				if ref.Tag != "" && ref.Tag != "latest" {
					if release, ferr := p.resolveViaListing(ctx, ref); ferr == nil {
						return release, nil
					}
				}
				return types.Release{}, &soarerrors.NoReleaseFound{Ref: ref.String(), Tag: ref.Tag}
			}
			if httpErr.Status == http.StatusForbidden || httpErr.Status == 429 {
				return types.Release{}, &soarerrors.AuthError{Service: "github", Reason: "rate limited, try GITHUB_TOKEN or wait for the reset window"}
			}
		}
		return types.Release{}, err
	}

	if rel.Draft {
		return types.Release{}, &soarerrors.NoReleaseFound{Ref: ref.String(), Tag: ref.Tag}
	}

	logger.V(3).Infof("github: resolved %s to release %s (%d assets)", ref.String(), rel.TagName, len(rel.Assets))

	release := types.Release{
		Tag:        rel.TagName,
		Name:       rel.Name,
		HTMLURL:    rel.HTMLURL,
		Published:  rel.PublishedAt,
		Prerelease: rel.Prerelease,
	}
	for _, a := range rel.Assets {
		release.Assets = append(release.Assets, types.Asset{
			Name:        a.Name,
			URL:         a.BrowserDownloadURL,
			Size:        a.Size,
			Digest:      a.Digest,
			ContentType: a.ContentType,
			Source:      types.ProviderGitHub,
		})
	}

	if len(release.Assets) == 0 {
		return release, &soarerrors.EmptyAssetSet{Ref: ref.String(), Tag: release.Tag}
	}

	return release, nil
}

func asHttpError(err error) (*soarerrors.HttpError, bool) {
	httpErr, ok := err.(*soarerrors.HttpError)
	return httpErr, ok
}
