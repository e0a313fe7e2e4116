// Package gitlab resolves GitLab release references into Releases
// using GitLab's REST Releases API (GET /projects/:id/releases[/:tag]),
// flattening each release's assets.links entries into Assets.
package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/flanksource/commons/logger"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// BaseURL is a var rather than a const so self-hosted instances (and
// tests) can point it elsewhere.
var BaseURL = "https://gitlab.com"

// restRelease mirrors GitLab's release representation.
type restRelease struct {
	TagName     string           `json:"tag_name"`
	Name        string           `json:"name"`
	ReleasedAt  time.Time        `json:"released_at"`
	UpcomingRel bool             `json:"upcoming_release"`
	Assets      restReleaseLinks `json:"assets"`
}

type restReleaseLinks struct {
	Links []restLink `json:"links"`
}

type restLink struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	LinkType       string `json:"link_type"`
	DirectAssetURL string `json:"direct_asset_url"`
}

// Provider resolves gitlab.com release references.
type Provider struct {
	Client *transport.Client
	token  string
}

func New(client *transport.Client) *Provider {
	p := &Provider{Client: client}
	for _, env := range []string{"GITLAB_TOKEN", "CI_JOB_TOKEN"} {
		if v := os.Getenv(env); v != "" {
			p.token = v
			break
		}
	}
	return p
}

func (p *Provider) Kind() types.ProviderKind { return types.ProviderGitLab }

func (p *Provider) headers() http.Header {
	h := make(http.Header)
	if p.token != "" {
		h.Set("PRIVATE-TOKEN", p.token)
	}
	return h
}

// projectPath returns the :id path segment: a numeric project ID is
// used verbatim, otherwise owner/repo is percent-encoded as GitLab's
// API requires for namespaced paths.
func projectPath(ref types.ProjectRef) string {
	if ref.Owner == "" {
		return ref.Repo
	}
	return url.PathEscape(ref.Owner + "/" + ref.Repo)
}

// Resolve fetches the release matching ref.Tag, or the most recent
// release when Tag is empty (GitLab's /releases listing is sorted by
// released_at descending by default).
func (p *Provider) Resolve(ctx context.Context, ref types.ProjectRef) (types.Release, error) {
	project := projectPath(ref)

	if ref.Tag == "" || ref.Tag == "latest" {
		return p.resolveLatest(ctx, ref, project)
	}

	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/releases/%s", BaseURL, project, url.PathEscape(ref.Tag))
	var rel restRelease
	if err := p.Client.GetJSON(ctx, endpoint, p.headers(), &rel); err != nil {
		if httpErr, ok := err.(*soarerrors.HttpError); ok && httpErr.Status == http.StatusNotFound {
			return types.Release{}, &soarerrors.NoReleaseFound{Ref: ref.String(), Tag: ref.Tag}
		}
		return types.Release{}, err
	}
	release := convert(ref, rel)
	if len(release.Assets) == 0 {
		return release, &soarerrors.EmptyAssetSet{Ref: ref.String(), Tag: release.Tag}
	}
	return release, nil
}

func (p *Provider) resolveLatest(ctx context.Context, ref types.ProjectRef, project string) (types.Release, error) {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%s/releases?per_page=1", BaseURL, project)
	var rels []restRelease
	if err := p.Client.GetJSON(ctx, endpoint, p.headers(), &rels); err != nil {
		if httpErr, ok := err.(*soarerrors.HttpError); ok && httpErr.Status == http.StatusNotFound {
			return types.Release{}, &soarerrors.NoReleaseFound{Ref: ref.String()}
		}
		return types.Release{}, err
	}
	if len(rels) == 0 {
		return types.Release{}, &soarerrors.NoReleaseFound{Ref: ref.String()}
	}
	release := convert(ref, rels[0])
	if len(release.Assets) == 0 {
		return release, &soarerrors.EmptyAssetSet{Ref: ref.String(), Tag: release.Tag}
	}
	return release, nil
}

func convert(ref types.ProjectRef, rel restRelease) types.Release {
	release := types.Release{
		Tag:        rel.TagName,
		Name:       rel.Name,
		Published:  rel.ReleasedAt,
		Prerelease: rel.UpcomingRel,
	}
	for _, link := range rel.Assets.Links {
		u := link.DirectAssetURL
		if u == "" {
			u = link.URL
		}
		name := link.Name
		if name == "" {
			name = baseName(u)
		}
		release.Assets = append(release.Assets, types.Asset{
			Name:   name,
			URL:    u,
			Source: types.ProviderGitLab,
		})
	}

	logger.V(3).Infof("gitlab: resolved %s to release %s (%d assets)", ref.String(), rel.TagName, len(release.Assets))
	return release
}

func baseName(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}
	path := parsed.Path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
