// Package cmd implements the soar-dl command line: one root command
// that turns positional URLs and --github/--gitlab/--ghcr flags into
// ProjectRefs, builds a FilterPlan and OutputPlan from the matching
// flags, and drives pkg/orchestrator to completion.
package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/flanksource/clicky"
	"github.com/spf13/cobra"

	"github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/orchestrator"
	"github.com/pkgforge/soar-dl/pkg/provider"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

var (
	githubRefs    []string
	gitlabRefs    []string
	ghcrRefs      []string
	regexes       []string
	globs         []string
	matchGroups   []string
	excludeTokens []string
	exactCase     bool

	autoAccept  bool
	output      string
	concurrency int
	ghcrAPI     string
	extract     bool
	extractDir  string

	skipExisting   bool
	forceOverwrite bool

	proxyURL  string
	headers   []string
	userAgent string
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:          "soar-dl [urls...]",
	Short:        "Resolve and download release artifacts from GitHub, GitLab, OCI registries and direct URLs",
	SilenceUsage: true,
	Long: `soar-dl resolves, filters and downloads release artifacts from
GitHub releases, GitLab releases, OCI (GHCR) registries and direct
URLs. When more than one candidate survives filtering, --yes
downloads every survivor; otherwise a prompt chooses one or all.`,
	RunE: runDownload,
}

func init() {
	clicky.BindAllFlags(rootCmd.PersistentFlags(), "tasks", "!format")

	rootCmd.Flags().StringSliceVar(&githubRefs, "github", nil, "GitHub release reference (owner/repo[@tag]), repeatable")
	rootCmd.Flags().StringSliceVar(&gitlabRefs, "gitlab", nil, "GitLab release reference (owner/repo[@tag] or numeric project id), repeatable")
	rootCmd.Flags().StringSliceVar(&ghcrRefs, "ghcr", nil, "OCI reference (registry/repo[:tag|@digest]), repeatable")

	rootCmd.Flags().StringSliceVar(&regexes, "regex", nil, "keep assets matching this regex, repeatable (OR)")
	rootCmd.Flags().StringSliceVar(&globs, "glob", nil, "keep assets matching this glob, repeatable (OR)")
	rootCmd.Flags().StringArrayVar(&matchGroups, "match", nil, "comma-separated keyword group an asset name must contain all of, repeatable (OR across groups)")
	rootCmd.Flags().StringSliceVar(&excludeTokens, "exclude", nil, "drop assets whose name contains this substring, repeatable")
	rootCmd.Flags().BoolVar(&exactCase, "exact-case", false, "disable case-insensitive matching")

	rootCmd.Flags().BoolVar(&autoAccept, "yes", false, "auto-accept every asset a filter leaves ambiguous, instead of prompting")
	rootCmd.Flags().StringVarP(&output, "output", "o", ".", "destination directory, file path, or - for stdout")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 1, "concurrent blob downloads for OCI references")
	rootCmd.Flags().StringVar(&ghcrAPI, "ghcr-api", "", "override the default OCI registry host (default ghcr.io)")

	rootCmd.Flags().BoolVar(&extract, "extract", false, "extract a downloaded archive after a successful download")
	rootCmd.Flags().StringVar(&extractDir, "extract-dir", "", "directory to extract into (default: beside the archive)")
	rootCmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "skip a download whose destination already exists")
	rootCmd.Flags().BoolVar(&forceOverwrite, "force-overwrite", false, "overwrite an existing destination instead of resuming")

	rootCmd.Flags().StringVar(&proxyURL, "proxy", "", "http://, https:// or socks5:// proxy URL")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra request header KEY:VALUE, repeatable")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "A", "", "override the default User-Agent")
	rootCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "suppress progress output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func runDownload(cmd *cobra.Command, args []string) error {
	clicky.Flags.UseFlags()

	refs, err := buildRefs(args)
	if err != nil {
		return usageError(err)
	}
	if len(refs) == 0 {
		return usageError(fmt.Errorf("no URLs or --github/--gitlab/--ghcr references given"))
	}

	filterPlan, err := buildFilterPlan()
	if err != nil {
		return usageError(err)
	}

	outputPlan, stdout, err := buildOutputPlan()
	if err != nil {
		return usageError(err)
	}

	client, err := transport.New(transport.Config{
		ProxyURL:  proxyURL,
		Headers:   parseHeaders(headers),
		UserAgent: userAgent,
	})
	if err != nil {
		return fmt.Errorf("configuring transport: %w", err)
	}

	o := orchestrator.New(client, ghcrAPI)
	o.Filter = filterPlan
	o.Output = outputPlan
	o.AutoAccept = autoAccept
	o.Concurrency = concurrency
	o.Prompt = promptChoice
	o.Engine.Prompt = promptExists

	summary := o.Run(cmd.Context(), refs)

	for _, result := range summary.Results {
		if quiet {
			continue
		}
		if result.Err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Job.Asset.Name, result.Err)
			continue
		}
		fmt.Printf("✓ %s -> %s\n", result.Job.Asset.Name, result.Path)
	}

	if stdout {
		if err := streamToStdout(summary); err != nil {
			return err
		}
	}

	if code := summary.ExitCode(); code != 0 {
		os.Exit(code)
	}
	return nil
}

// buildRefs turns positional URLs plus --github/--gitlab/--ghcr flags
// into ProjectRefs grouped by kind: positional URLs first, then
// --github, --gitlab and --ghcr refs, each kind in the order its
// values were given. The relative order of different kinds on the
// command line is not kept.
func buildRefs(urls []string) ([]types.ProjectRef, error) {
	var refs []types.ProjectRef
	for _, u := range urls {
		ref, err := provider.ParseDirectRef(u)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	for _, raw := range githubRefs {
		ref, err := provider.ParseGitHubRef(raw)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	for _, raw := range gitlabRefs {
		ref, err := provider.ParseGitLabRef(raw)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	for _, raw := range ghcrRefs {
		ref, err := provider.ParseOCIRef(raw)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func buildFilterPlan() (types.FilterPlan, error) {
	plan := types.FilterPlan{
		Regexes:         regexes,
		Globs:           globs,
		Exclude:         excludeTokens,
		CaseInsensitive: !exactCase,
	}
	for _, group := range matchGroups {
		plan.Keywords = append(plan.Keywords, strings.Split(group, ","))
	}
	return plan, nil
}

// buildOutputPlan translates --output's PATH|- grammar into an
// OutputPlan: a trailing "/" is a directory, a bare "-" defers to
// stdout (downloaded into a scratch directory and streamed out after
// the run, since the engine itself only ever writes to disk), and
// anything else is an explicit single-file destination.
func buildOutputPlan() (types.OutputPlan, bool, error) {
	if skipExisting && forceOverwrite {
		return types.OutputPlan{}, false, fmt.Errorf("--skip-existing and --force-overwrite are mutually exclusive")
	}

	policy := types.ExistsResume
	switch {
	case skipExisting:
		policy = types.ExistsSkip
	case forceOverwrite:
		policy = types.ExistsOverwrite
	}

	if output == "-" {
		dir, err := os.MkdirTemp("", "soar-dl-stdout-")
		if err != nil {
			return types.OutputPlan{}, false, err
		}
		return types.OutputPlan{Dir: dir, Extract: extract, ExtractDir: extractDir, OnExists: types.ExistsOverwrite}, true, nil
	}

	plan := types.OutputPlan{Extract: extract, ExtractDir: extractDir, OnExists: policy}
	if strings.HasSuffix(output, "/") || output == "" || output == "." {
		plan.Dir = output
		if plan.Dir == "" {
			plan.Dir = "."
		}
		return plan, false, nil
	}

	plan.Dir = "."
	if idx := strings.LastIndexByte(output, '/'); idx >= 0 {
		plan.Dir = output[:idx]
		plan.FileName = output[idx+1:]
	} else {
		plan.FileName = output
	}
	return plan, false, nil
}

func parseHeaders(raw []string) map[string][]string {
	if len(raw) == 0 {
		return nil
	}
	headers := make(map[string][]string)
	for _, h := range raw {
		parts := strings.SplitN(h, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		headers[key] = append(headers[key], value)
	}
	return headers
}

// promptChoice implements selector.PromptFunc over stdin: a number
// selects one candidate, "all" accepts every survivor, anything else
// aborts.
func promptChoice(candidates []types.Asset) ([]types.Asset, error) {
	fmt.Fprintln(os.Stderr, "Multiple assets matched:")
	for i, a := range candidates {
		fmt.Fprintf(os.Stderr, "  [%d] %s\n", i+1, a.Name)
	}
	fmt.Fprint(os.Stderr, "Choose a number, \"all\", or anything else to abort: ")

	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)

	if strings.EqualFold(line, "all") {
		return candidates, nil
	}
	if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(candidates) {
		return []types.Asset{candidates[n-1]}, nil
	}
	return nil, fmt.Errorf("aborted: %q is not a valid choice", line)
}

// promptExists implements download.PromptFunc for ExistsPrompt. The
// CLI's --skip-existing/--force-overwrite flags resolve the policy
// before a job ever reaches the engine, so this only fires for a
// caller that built an OutputPlan with OnExists set to ExistsPrompt
// directly (e.g. a future interactive default).
func promptExists(dest string) (types.ExistsPolicy, error) {
	fmt.Fprintf(os.Stderr, "%s already exists. [s]kip, [o]verwrite, [r]esume, [a]bort? ", dest)
	reader := bufio.NewReader(os.Stdin)
	line, _ := reader.ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "skip":
		return types.ExistsSkip, nil
	case "o", "overwrite":
		return types.ExistsOverwrite, nil
	case "r", "resume":
		return types.ExistsResume, nil
	default:
		return "", &errors.Cancelled{Op: "exists prompt for " + dest}
	}
}

// streamToStdout copies every successfully downloaded file to stdout
// and removes its scratch copy, for the bare "-o -" sink.
func streamToStdout(summary types.RunSummary) error {
	for _, result := range summary.Results {
		if result.Err != nil || result.Skipped || result.Path == "" {
			continue
		}
		f, err := os.Open(result.Path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(os.Stdout, f)
		f.Close()
		os.Remove(result.Path)
		if copyErr != nil {
			return copyErr
		}
	}
	return nil
}

func usageError(err error) error {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(2)
	return nil
}
