// Package types holds the wire and domain structs shared by every
// provider, the filter, the selector and the download engine.
package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/flanksource/clicky"
	"github.com/flanksource/clicky/api"
	"github.com/flanksource/clicky/api/icons"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
)

// ProviderKind identifies which backend resolved a ProjectRef.
type ProviderKind string

const (
	ProviderDirect ProviderKind = "direct"
	ProviderGitHub ProviderKind = "github"
	ProviderGitLab ProviderKind = "gitlab"
	ProviderOCI    ProviderKind = "ghcr"
)

// ProjectRef is a user-supplied reference to something downloadable:
// a direct URL, a "owner/repo" GitHub slug, a GitLab project path or
// numeric ID, or an OCI reference (registry/repo[:tag|@digest]).
type ProjectRef struct {
	// Raw is the exact string the user passed on the command line,
	// kept around for error messages.
	Raw string
	// Provider is the backend this reference was routed to.
	Provider ProviderKind
	// Owner is the GitHub/GitLab namespace, or the OCI registry host.
	Owner string
	// Repo is the repository/project/image name.
	Repo string
	// Tag is the release tag, version or OCI tag requested; empty
	// means "resolve the latest".
	Tag string
	// URL is populated only for ProviderDirect.
	URL string
}

func (r ProjectRef) Kind() ProviderKind {
	if r.Provider == "" {
		return ProviderDirect
	}
	return r.Provider
}

func (r ProjectRef) String() string {
	if r.Raw != "" {
		return r.Raw
	}
	if r.Tag != "" {
		return fmt.Sprintf("%s/%s@%s", r.Owner, r.Repo, r.Tag)
	}
	return fmt.Sprintf("%s/%s", r.Owner, r.Repo)
}

// Release is a single tagged release as returned by a provider.
type Release struct {
	// Tag is the provider-native tag or version identifier.
	Tag string
	// Name is the human release title, if the provider has one.
	Name string
	// HTMLURL is the web page for this release, surfaced in -v logs.
	HTMLURL string
	// Published is when the release went live.
	Published time.Time
	// Prerelease marks a prerelease (GitLab: an upcoming release);
	// resolution does not skip such releases on its own.
	Prerelease bool
	// Assets is every downloadable file attached to the release.
	Assets []Asset
}

// Asset is a single downloadable file belonging to a Release, or a
// synthetic asset built directly from a URL or OCI blob reference.
type Asset struct {
	// Name is the file name used for matching and for the default
	// output file name.
	Name string
	// URL is where the asset's bytes are fetched from.
	URL string
	// Size is the provider-reported size in bytes, 0 if unknown.
	Size int64
	// Digest is a provider-reported "algo:hex" content digest, empty
	// if the provider doesn't supply one.
	Digest string
	// ContentType is the provider-reported MIME type, if any.
	ContentType string
	// Source names the provider that produced this asset.
	Source ProviderKind
}

func (a Asset) Pretty() api.Text {
	text := clicky.Text("").Append(a.Name, "bold")
	if a.Size > 0 {
		text = text.Append(" ", "muted").Append(formatBytes(a.Size), "text-muted")
	}
	if a.Digest != "" {
		text = text.Append(" ", "muted").Append(a.Digest, "text-muted")
	}
	return text
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FilterPlan is the compiled set of predicates an Asset must satisfy
// to be selected for download.
type FilterPlan struct {
	// Regexes are applied with OR semantics: an asset matching any one
	// of these regexes passes this stage.
	Regexes []string
	// Globs are shell-style patterns (gobwas/glob), OR semantics.
	Globs []string
	// Keywords groups each contain tokens that must all be present
	// (AND); the groups themselves OR together (any one group passing
	// is enough).
	Keywords [][]string
	// Exclude drops any asset whose name contains one of these
	// substrings, regardless of the other stages.
	Exclude []string
	// CaseInsensitive folds case before every comparison above.
	CaseInsensitive bool
}

// IsZero reports whether the plan has no active predicates, meaning
// every asset passes.
func (p FilterPlan) IsZero() bool {
	return len(p.Regexes) == 0 && len(p.Globs) == 0 && len(p.Keywords) == 0 && len(p.Exclude) == 0
}

// OutputPlan describes where a downloaded asset's bytes land on disk
// and what should happen to them afterward.
type OutputPlan struct {
	// Dir is the destination directory.
	Dir string
	// FileName overrides the asset's own name; empty keeps it.
	FileName string
	// Extract requests archive extraction after a successful download.
	Extract bool
	// ExtractDir is where an extracted archive's members are written;
	// when empty, a directory beside the archive named after its stem.
	ExtractDir string
	// ExtractOnly, if true, removes the archive downloaded into Dir
	// after a successful extraction.
	ExtractOnly bool
	// OnExists controls what happens when the destination file exists.
	OnExists ExistsPolicy
}

// ExistsPolicy names the action taken when a download's destination
// path is already occupied.
type ExistsPolicy string

const (
	ExistsSkip      ExistsPolicy = "skip"
	ExistsOverwrite ExistsPolicy = "overwrite"
	ExistsResume    ExistsPolicy = "resume"
	ExistsPrompt    ExistsPolicy = "prompt"
)

// DownloadJob binds one resolved Asset to one OutputPlan; it is the
// unit of work the download engine consumes.
type DownloadJob struct {
	// ID is a stable per-run identifier, used as the task.Task name.
	ID string
	// Ref is the ProjectRef this job was resolved from.
	Ref ProjectRef
	// Asset is the file to fetch.
	Asset Asset
	// Output is where it lands and what to do with it.
	Output OutputPlan
	// Checksum is an expected "algo:hex" digest to verify against,
	// empty if none was supplied or discovered.
	Checksum string
	// Platform is non-nil only for OCI jobs, naming the blob's
	// platform after selection.
	Platform *Platform
	// Headers are extra request headers the engine must attach when
	// streaming Asset.URL, e.g. an OCI registry bearer token. Nil for
	// every non-OCI provider.
	Headers map[string]string
}

// Platform mirrors an OCI image-spec platform descriptor; kept here
// rather than importing image-spec into every caller.
type Platform struct {
	OS           string
	Architecture string
	Variant      string
}

func (p Platform) String() string {
	if p.Variant != "" {
		return fmt.Sprintf("%s/%s/%s", p.OS, p.Architecture, p.Variant)
	}
	return fmt.Sprintf("%s/%s", p.OS, p.Architecture)
}

// JobResult is what the download engine reports back for one job.
type JobResult struct {
	Job      DownloadJob
	Path     string
	Size     int64
	Skipped  bool
	Err      error
	Duration time.Duration
}

func (r JobResult) Pretty() api.Text {
	text := clicky.Text("")
	switch {
	case r.Err != nil:
		text = text.Add(icons.Error).Append(" " + r.Job.Asset.Name + ": ").Append(r.Err.Error(), "text-red-500")
	case r.Skipped:
		text = text.Add(icons.Skip).Append(" " + r.Job.Asset.Name + " already exists", "text-yellow-500")
	default:
		text = text.Add(icons.Success).Append(" " + r.Job.Asset.Name).Append(" -> "+r.Path, "text-muted")
	}
	return text
}

// RunSummary aggregates per-project outcomes across an entire
// invocation, so the process exit code can be computed once every
// project has been attempted.
type RunSummary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Results   []JobResult
}

// Add folds one JobResult into the summary.
func (s *RunSummary) Add(r JobResult) {
	s.Results = append(s.Results, r)
	switch {
	case r.Err != nil:
		s.Failed++
	case r.Skipped:
		s.Skipped++
	default:
		s.Succeeded++
	}
}

// ExitCode maps the summary onto the process exit codes.
func (s RunSummary) ExitCode() int {
	for _, r := range s.Results {
		var cancelled *soarerrors.Cancelled
		if errors.As(r.Err, &cancelled) {
			return 130
		}
	}
	if s.Failed > 0 && s.Succeeded == 0 && s.Skipped == 0 {
		return 1
	}
	if s.Failed > 0 {
		return 1
	}
	return 0
}
