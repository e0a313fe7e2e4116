// Package provider defines the common interface every backend
// (direct URL, GitHub, GitLab, OCI) implements, and the reference
// grammar used to route a CLI argument to one of them.
package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// Provider resolves a ProjectRef into a Release carrying its assets.
type Provider interface {
	Kind() types.ProviderKind
	Resolve(ctx context.Context, ref types.ProjectRef) (types.Release, error)
}

// ParseGitHubRef parses "owner/repo", "owner/repo@tag" or a full
// github.com release/tag URL into a ProjectRef.
func ParseGitHubRef(raw string) (types.ProjectRef, error) {
	body := raw
	if strings.Contains(body, "github.com/") {
		body = body[strings.Index(body, "github.com/")+len("github.com/"):]
		body = strings.TrimSuffix(body, "/")
		if i := strings.Index(body, "/releases/tag/"); i >= 0 {
			body = body[:i] + "@" + body[i+len("/releases/tag/"):]
		}
	}

	owner, repo, tag, err := splitOwnerRepoTag(body)
	if err != nil {
		return types.ProjectRef{}, &soarerrors.InvalidRef{Raw: raw, Reason: err.Error()}
	}
	return types.ProjectRef{Raw: raw, Provider: types.ProviderGitHub, Owner: owner, Repo: repo, Tag: tag}, nil
}

// ParseGitLabRef parses "owner/repo", "owner/repo@tag", or a numeric
// project ID ("12345" or "12345@tag") into a ProjectRef. A bare
// numeric string is kept in Repo with Owner left empty; the provider
// uses the numeric form directly as GitLab's :id path segment.
func ParseGitLabRef(raw string) (types.ProjectRef, error) {
	body := raw
	if strings.Contains(body, "gitlab.com/") {
		body = body[strings.Index(body, "gitlab.com/")+len("gitlab.com/"):]
		body = strings.TrimSuffix(body, "/")
	}

	idPart := body
	tag := ""
	if i := strings.LastIndex(body, "@"); i >= 0 {
		idPart, tag = body[:i], body[i+1:]
	}

	if _, err := strconv.Atoi(idPart); err == nil {
		return types.ProjectRef{Raw: raw, Provider: types.ProviderGitLab, Repo: idPart, Tag: tag}, nil
	}

	owner, repo, tag2, err := splitOwnerRepoTag(body)
	if err != nil {
		return types.ProjectRef{}, &soarerrors.InvalidRef{Raw: raw, Reason: err.Error()}
	}
	return types.ProjectRef{Raw: raw, Provider: types.ProviderGitLab, Owner: owner, Repo: repo, Tag: tag2}, nil
}

// ParseOCIRef parses "[ghcr.io/]namespace/repo[:tag|@digest]" into a
// ProjectRef, defaulting the tag to "latest". A leading "oci://" and
// "ghcr.io/" are stripped and Owner is always "ghcr.io"; any other
// registry host prefix is not recognized and stays part of Repo.
func ParseOCIRef(raw string) (types.ProjectRef, error) {
	body := raw
	body = strings.TrimPrefix(body, "oci://")
	body = strings.TrimPrefix(body, "ghcr.io/")

	repoPart := body
	tag := "latest"
	if i := strings.LastIndex(body, "@"); i >= 0 {
		repoPart, tag = body[:i], body[i+1:]
	} else if i := strings.LastIndex(body, ":"); i >= 0 && !strings.Contains(body[i:], "/") {
		repoPart, tag = body[:i], body[i+1:]
	}

	if repoPart == "" {
		return types.ProjectRef{}, &soarerrors.InvalidRef{Raw: raw, Reason: "empty repository"}
	}

	return types.ProjectRef{Raw: raw, Provider: types.ProviderOCI, Owner: "ghcr.io", Repo: repoPart, Tag: tag}, nil
}

// ParseDirectRef wraps a plain URL as a direct-download ProjectRef.
func ParseDirectRef(raw string) (types.ProjectRef, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return types.ProjectRef{}, &soarerrors.InvalidRef{Raw: raw, Reason: "direct references must be http(s) URLs"}
	}
	return types.ProjectRef{Raw: raw, Provider: types.ProviderDirect, URL: raw}, nil
}

func splitOwnerRepoTag(body string) (owner, repo, tag string, err error) {
	rest := body
	if i := strings.LastIndex(rest, "@"); i >= 0 {
		rest, tag = rest[:i], rest[i+1:]
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("expected owner/repo, got %q", body)
	}
	return parts[0], parts[1], tag, nil
}
