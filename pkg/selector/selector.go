// Package selector resolves a filtered candidate list down to the
// assets actually downloaded: pass through a single survivor, accept
// every survivor when the caller auto-accepts, or defer to an
// interactive prompt otherwise. It never narrows by platform itself —
// that's the filter stage's job.
package selector

import (
	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// PromptFunc resolves an ambiguous multi-candidate match
// interactively: index selects one asset, all accepts every
// candidate, abort returns an error.
type PromptFunc func(candidates []types.Asset) ([]types.Asset, error)

// Select implements spec §4.6: zero candidates is an error, one is
// returned as-is, many are returned in full when autoAccept is set,
// and otherwise are handed to prompt for an index/all/abort decision.
func Select(ref string, candidates []types.Asset, autoAccept bool, prompt PromptFunc) ([]types.Asset, error) {
	if len(candidates) == 0 {
		return nil, &soarerrors.NoAssetsAfterFilter{Ref: ref, Total: 0}
	}
	if len(candidates) == 1 {
		return candidates, nil
	}
	if autoAccept {
		return candidates, nil
	}
	if prompt == nil {
		return nil, &soarerrors.PlanError{Reason: "multiple assets matched; pass --yes to accept all or run interactively"}
	}
	return prompt(candidates)
}
