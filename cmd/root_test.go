package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/soar-dl/pkg/types"
)

// resetFlagVars clears every package-level flag var so each test starts
// from a blank slate regardless of execution order.
func resetFlagVars(t *testing.T) {
	t.Helper()
	githubRefs, gitlabRefs, ghcrRefs = nil, nil, nil
	regexes, globs, matchGroups, excludeTokens = nil, nil, nil, nil
	exactCase = false
	autoAccept = false
	output = "."
	concurrency = 1
	ghcrAPI = ""
	extract, extractDir = false, ""
	skipExisting, forceOverwrite = false, false
	proxyURL, headers, userAgent, quiet = "", nil, "", false
}

func TestBuildRefsOrdersURLsThenGithubThenGitlabThenGhcr(t *testing.T) {
	resetFlagVars(t)
	githubRefs = []string{"acme/widget"}
	gitlabRefs = []string{"acme/gadget"}
	ghcrRefs = []string{"acme/gizmo:v1"}

	refs, err := buildRefs([]string{"https://example.com/file.bin"})
	require.NoError(t, err)
	require.Len(t, refs, 4)
	assert.Equal(t, types.ProviderDirect, refs[0].Provider)
	assert.Equal(t, types.ProviderGitHub, refs[1].Provider)
	assert.Equal(t, types.ProviderGitLab, refs[2].Provider)
	assert.Equal(t, types.ProviderOCI, refs[3].Provider)
}

func TestBuildRefsPropagatesParseError(t *testing.T) {
	resetFlagVars(t)
	_, err := buildRefs([]string{"not-a-url"})
	require.Error(t, err)
}

func TestBuildFilterPlanSplitsMatchGroupsOnComma(t *testing.T) {
	resetFlagVars(t)
	regexes = []string{".*\\.tar\\.gz$"}
	globs = []string{"*.tar.gz"}
	matchGroups = []string{"linux,amd64", "musl"}
	excludeTokens = []string{"sig"}
	exactCase = true

	plan, err := buildFilterPlan()
	require.NoError(t, err)
	assert.Equal(t, []string{".*\\.tar\\.gz$"}, plan.Regexes)
	assert.Equal(t, []string{"*.tar.gz"}, plan.Globs)
	assert.Equal(t, []string{"sig"}, plan.Exclude)
	assert.False(t, plan.CaseInsensitive)
	require.Len(t, plan.Keywords, 2)
	assert.Equal(t, []string{"linux", "amd64"}, plan.Keywords[0])
	assert.Equal(t, []string{"musl"}, plan.Keywords[1])
}

func TestBuildFilterPlanDefaultsToCaseInsensitive(t *testing.T) {
	resetFlagVars(t)
	plan, err := buildFilterPlan()
	require.NoError(t, err)
	assert.True(t, plan.CaseInsensitive)
}

func TestBuildOutputPlanRejectsSkipAndForceTogether(t *testing.T) {
	resetFlagVars(t)
	skipExisting = true
	forceOverwrite = true
	_, _, err := buildOutputPlan()
	require.Error(t, err)
}

func TestBuildOutputPlanDashStreamsToStdout(t *testing.T) {
	resetFlagVars(t)
	output = "-"
	plan, stdout, err := buildOutputPlan()
	require.NoError(t, err)
	assert.True(t, stdout)
	assert.Equal(t, types.ExistsOverwrite, plan.OnExists)
	assert.NotEmpty(t, plan.Dir)
}

func TestBuildOutputPlanTrailingSlashIsDirectory(t *testing.T) {
	resetFlagVars(t)
	output = "out/"
	plan, stdout, err := buildOutputPlan()
	require.NoError(t, err)
	assert.False(t, stdout)
	assert.Equal(t, "out/", plan.Dir)
	assert.Empty(t, plan.FileName)
}

func TestBuildOutputPlanBareNameIsFileInCurrentDir(t *testing.T) {
	resetFlagVars(t)
	output = "widget.tar.gz"
	plan, stdout, err := buildOutputPlan()
	require.NoError(t, err)
	assert.False(t, stdout)
	assert.Equal(t, ".", plan.Dir)
	assert.Equal(t, "widget.tar.gz", plan.FileName)
}

func TestBuildOutputPlanSplitsDirAndFileName(t *testing.T) {
	resetFlagVars(t)
	output = "/tmp/downloads/widget.tar.gz"
	plan, stdout, err := buildOutputPlan()
	require.NoError(t, err)
	assert.False(t, stdout)
	assert.Equal(t, "/tmp/downloads", plan.Dir)
	assert.Equal(t, "widget.tar.gz", plan.FileName)
}

func TestBuildOutputPlanHonorsSkipAndForcePolicies(t *testing.T) {
	resetFlagVars(t)
	output = "out/"
	skipExisting = true
	plan, _, err := buildOutputPlan()
	require.NoError(t, err)
	assert.Equal(t, types.ExistsSkip, plan.OnExists)

	resetFlagVars(t)
	output = "out/"
	forceOverwrite = true
	plan, _, err = buildOutputPlan()
	require.NoError(t, err)
	assert.Equal(t, types.ExistsOverwrite, plan.OnExists)
}

func TestParseHeadersSplitsKeyValue(t *testing.T) {
	got := parseHeaders([]string{"X-Token: abc123", "Accept:application/json"})
	assert.Equal(t, []string{"abc123"}, got["X-Token"])
	assert.Equal(t, []string{"application/json"}, got["Accept"])
}

func TestParseHeadersSkipsMalformedEntries(t *testing.T) {
	got := parseHeaders([]string{"no-colon-here"})
	assert.Empty(t, got)
}

func TestParseHeadersNilOnEmptyInput(t *testing.T) {
	assert.Nil(t, parseHeaders(nil))
}
