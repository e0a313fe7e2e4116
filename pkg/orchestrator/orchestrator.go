// Package orchestrator wires a parsed ProjectRef through the right
// provider, the asset filter, the selector and the download engine (or,
// for OCI references, straight through the registry client's own
// bounded-concurrency blob fetch), and aggregates every job's outcome
// into a RunSummary the caller turns into a process exit code.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/flanksource/clicky/task"
	flanksourceContext "github.com/flanksource/commons/context"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/filter"
	"github.com/pkgforge/soar-dl/pkg/oci"
	"github.com/pkgforge/soar-dl/pkg/provider"
	"github.com/pkgforge/soar-dl/pkg/provider/direct"
	"github.com/pkgforge/soar-dl/pkg/provider/github"
	"github.com/pkgforge/soar-dl/pkg/provider/gitlab"
	"github.com/pkgforge/soar-dl/pkg/selector"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"

	"github.com/pkgforge/soar-dl/pkg/download"
)

// Orchestrator binds one set of providers, one engine and one run's
// filter/output/selection policy together. Direct/GitHub/GitLab are
// typed as the provider.Provider interface so tests can substitute a
// fake resolver; New wires the real implementations.
type Orchestrator struct {
	Direct provider.Provider
	GitHub provider.Provider
	GitLab provider.Provider
	OCI    *oci.Client
	Engine *download.Engine

	Filter      types.FilterPlan
	Output      types.OutputPlan
	AutoAccept  bool
	Concurrency int
	Prompt      selector.PromptFunc
}

// New builds an Orchestrator whose providers and download engine all
// share client, and whose OCI client talks to registry (empty defaults
// to ghcr.io inside oci.New).
func New(client *transport.Client, registry string) *Orchestrator {
	return &Orchestrator{
		Direct:      direct.New(client),
		GitHub:      github.New(client),
		GitLab:      gitlab.New(client),
		OCI:         oci.New(client, registry),
		Engine:      download.New(client),
		Concurrency: 1,
	}
}

// Run resolves and downloads every ref in turn, returning an aggregate
// RunSummary. A ref that fails to resolve contributes a single failed
// JobResult rather than aborting the remaining refs, except a
// PlanError (a programming-mode mistake like a multi-asset match
// against a single-file sink), which aborts the whole run per spec
// §4.8.
func (o *Orchestrator) Run(ctx context.Context, refs []types.ProjectRef) types.RunSummary {
	var summary types.RunSummary

	for _, ref := range refs {
		results := o.runRef(ctx, ref)
		for _, r := range results {
			summary.Add(r)
		}
		if isPlanError(results) {
			break
		}
	}

	return summary
}

func isPlanError(results []types.JobResult) bool {
	for _, r := range results {
		var planErr *soarerrors.PlanError
		if errors.As(r.Err, &planErr) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) runRef(ctx context.Context, ref types.ProjectRef) []types.JobResult {
	if ref.Kind() == types.ProviderOCI {
		results, err := o.runOCIRef(ctx, ref)
		if err != nil && len(results) == 0 {
			return []types.JobResult{{Job: types.DownloadJob{Ref: ref}, Err: err}}
		}
		return results
	}

	results, err := o.runProviderRef(ctx, ref)
	if err != nil {
		return []types.JobResult{{Job: types.DownloadJob{Ref: ref}, Err: err}}
	}
	return results
}

// runProviderRef drives the direct/GitHub/GitLab path: resolve a
// release, narrow it with the filter plan, hand the survivors to the
// selector, then download each chosen asset through the engine,
// wrapping every download in its own named task so progress and logs
// surface the way the rest of the corpus's task.StartTask call sites
// do.
func (o *Orchestrator) runProviderRef(ctx context.Context, ref types.ProjectRef) ([]types.JobResult, error) {
	p, err := o.providerFor(ref)
	if err != nil {
		return nil, err
	}

	release, err := p.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(release.Assets) == 0 {
		return nil, &soarerrors.EmptyAssetSet{Ref: ref.String(), Tag: release.Tag}
	}

	filtered, err := filter.Apply(ref.String(), release.Assets, o.Filter)
	if err != nil {
		return nil, err
	}

	chosen, err := selector.Select(ref.String(), filtered, o.AutoAccept, o.Prompt)
	if err != nil {
		return nil, err
	}

	if o.Output.FileName != "" && len(chosen) > 1 {
		return nil, &soarerrors.PlanError{Reason: fmt.Sprintf("%s: %d assets matched but an explicit output file name only fits one", ref.String(), len(chosen))}
	}

	results := make([]types.JobResult, 0, len(chosen))
	for i, asset := range chosen {
		job := types.DownloadJob{
			ID:     fmt.Sprintf("%s#%d", ref.String(), i),
			Ref:    ref,
			Asset:  asset,
			Output: o.Output,
		}

		var result types.JobResult
		task.StartTask(job.ID, func(_ flanksourceContext.Context, t *task.Task) (interface{}, error) {
			result = o.Engine.Execute(ctx, t, job)
			return nil, result.Err
		})
		results = append(results, result)
	}
	return results, nil
}

// runOCIRef resolves an OCI reference to its manifest's layer blobs
// and fetches all of them through the registry client's own
// concurrency-bounded path; OCI never goes through the generic
// filter/select stages because a manifest's layer set isn't a list of
// competing candidates the way release assets are, it's the one thing
// requested.
func (o *Orchestrator) runOCIRef(ctx context.Context, ref types.ProjectRef) ([]types.JobResult, error) {
	if o.Output.FileName != "" {
		return nil, &soarerrors.PlanError{Reason: "OCI references always fetch every layer blob; pass a directory, not a file name"}
	}
	if o.Output.Dir == "" {
		return nil, &soarerrors.PlanError{Reason: "OCI download has no output directory"}
	}

	release, err := o.OCI.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	results, err := o.OCI.FetchBlobs(ctx, ref.Repo, release.Assets, o.Output.Dir, concurrency)
	for i := range results {
		results[i].Job.Ref = ref
	}
	if err != nil {
		return results, err
	}
	return results, nil
}

func (o *Orchestrator) providerFor(ref types.ProjectRef) (provider.Provider, error) {
	switch ref.Kind() {
	case types.ProviderGitHub:
		return o.GitHub, nil
	case types.ProviderGitLab:
		return o.GitLab, nil
	case types.ProviderDirect:
		return o.Direct, nil
	default:
		return nil, &soarerrors.InvalidRef{Raw: ref.Raw, Reason: fmt.Sprintf("no provider registered for %q", ref.Kind())}
	}
}
