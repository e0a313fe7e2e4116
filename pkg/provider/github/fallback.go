package github

import (
	"context"
	"net/http"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/google/go-github/v57/github"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// bearerTransport attaches a static bearer token the way the
// teacher's oauth2.StaticTokenSource client does, without pulling in
// golang.org/x/oauth2 for a single static header.
type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}

func (p *Provider) ghClient() *github.Client {
	return github.NewClient(&http.Client{Transport: &bearerTransport{token: p.token}})
}

// resolveViaListing is used when an exact tag lookup 404s: it walks
// the release listing with go-github's typed, paginated client and
// matches loosely (tolerating a missing/extra "v" prefix), the same
// fallback shape as findReleaseByVersion in the teacher's resolver.
func (p *Provider) resolveViaListing(ctx context.Context, ref types.ProjectRef) (types.Release, error) {
	client := p.ghClient()
	opts := &github.ListOptions{PerPage: 100}

	wantExact := ref.Tag
	wantAlt := normalizeTag(ref.Tag)

	for page := 0; page < 10; page++ {
		releases, resp, err := client.Repositories.ListReleases(ctx, ref.Owner, ref.Repo, opts)
		if err != nil {
			if rl, ok := err.(*github.RateLimitError); ok {
				return types.Release{}, &soarerrors.AuthError{
					Service: "github",
					Reason:  "rate limited until " + rl.Rate.Reset.Time.String(),
				}
			}
			return types.Release{}, err
		}

		for _, rel := range releases {
			if rel.GetDraft() {
				continue
			}
			tag := rel.GetTagName()
			if tag == wantExact || normalizeTag(tag) == wantAlt {
				return convertGoGithubRelease(rel), nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return types.Release{}, &soarerrors.NoReleaseFound{Ref: ref.String(), Tag: ref.Tag}
}

func normalizeTag(tag string) string {
	return strings.TrimPrefix(strings.ToLower(tag), "v")
}

func convertGoGithubRelease(rel *github.RepositoryRelease) types.Release {
	release := types.Release{
		Tag:        rel.GetTagName(),
		Name:       rel.GetName(),
		HTMLURL:    rel.GetHTMLURL(),
		Published:  rel.GetPublishedAt().Time,
		Prerelease: rel.GetPrerelease(),
	}
	for _, a := range rel.Assets {
		release.Assets = append(release.Assets, types.Asset{
			Name:        a.GetName(),
			URL:         a.GetBrowserDownloadURL(),
			Size:        int64(a.GetSize()),
			ContentType: a.GetContentType(),
			Source:      types.ProviderGitHub,
		})
	}
	logger.V(3).Infof("github: resolved %s via listing fallback", rel.GetTagName())
	return release
}
