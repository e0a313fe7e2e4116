// Package filter narrows a release's asset list down to the ones a
// FilterPlan says are wanted, applying exclude, regex, glob and
// keyword-group stages in sequence.
package filter

import (
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/types"
)

var foldCase = cases.Fold()

// Apply runs plan against assets and returns the surviving subset, in
// their original order. An empty plan passes every asset through.
func Apply(ref string, assets []types.Asset, plan types.FilterPlan) ([]types.Asset, error) {
	if plan.IsZero() {
		return assets, nil
	}

	filtered := assets

	if len(plan.Exclude) > 0 {
		filtered = excludeStage(filtered, plan.Exclude, plan.CaseInsensitive)
	}

	if len(plan.Regexes) > 0 {
		matched, err := regexStage(filtered, plan.Regexes, plan.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		filtered = matched
	}

	if len(plan.Globs) > 0 {
		matched, err := globStage(filtered, plan.Globs, plan.CaseInsensitive)
		if err != nil {
			return nil, err
		}
		filtered = matched
	}

	if len(plan.Keywords) > 0 {
		filtered = keywordStage(filtered, plan.Keywords, plan.CaseInsensitive)
	}

	if len(filtered) == 0 {
		return nil, &soarerrors.NoAssetsAfterFilter{Ref: ref, Total: len(assets)}
	}
	return filtered, nil
}

func fold(s string, ci bool) string {
	if !ci {
		return s
	}
	return foldCase.String(s)
}

// excludeStage drops any asset whose name contains one of the exclude
// tokens, regardless of what the other stages would otherwise accept.
func excludeStage(assets []types.Asset, tokens []string, ci bool) []types.Asset {
	var out []types.Asset
	for _, a := range assets {
		name := fold(a.Name, ci)
		excluded := false
		for _, tok := range tokens {
			if strings.Contains(name, fold(tok, ci)) {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, a)
		}
	}
	return out
}

// regexStage keeps assets whose name matches any one of the regexes.
func regexStage(assets []types.Asset, patterns []string, ci bool) ([]types.Asset, error) {
	res := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		expr := p
		if ci {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		res = append(res, re)
	}

	var out []types.Asset
	for _, a := range assets {
		for _, re := range res {
			if re.MatchString(a.Name) {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

// globStage keeps assets whose name matches any one of the globs.
func globStage(assets []types.Asset, patterns []string, ci bool) ([]types.Asset, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(fold(p, ci))
		if err != nil {
			return nil, err
		}
		globs = append(globs, g)
	}

	var out []types.Asset
	for _, a := range assets {
		name := fold(a.Name, ci)
		for _, g := range globs {
			if g.Match(name) {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

// keywordStage keeps assets that satisfy at least one keyword group;
// within a group, every token must be present (AND), and a candidate
// passes if any group matches (OR across groups).
func keywordStage(assets []types.Asset, groups [][]string, ci bool) []types.Asset {
	var out []types.Asset
	for _, a := range assets {
		name := fold(a.Name, ci)
		matched := false
		for _, group := range groups {
			all := true
			for _, kw := range group {
				if !strings.Contains(name, fold(kw, ci)) {
					all = false
					break
				}
			}
			if all {
				matched = true
				break
			}
		}
		if matched {
			out = append(out, a)
		}
	}
	return out
}
