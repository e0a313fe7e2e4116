package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	client, err := transport.New(transport.Config{})
	require.NoError(t, err)
	return New(client, "")
}

func fileServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
}

func TestRunDirectRefDownloadsSingleAsset(t *testing.T) {
	body := []byte("direct download payload")
	srv := fileServer(t, body)
	defer srv.Close()

	o := newOrchestrator(t)
	o.Output = types.OutputPlan{Dir: t.TempDir()}
	o.AutoAccept = true

	summary := o.Run(t.Context(), []types.ProjectRef{
		{Raw: srv.URL, Provider: types.ProviderDirect, URL: srv.URL},
	})

	require.Len(t, summary.Results, 1)
	assert.NoError(t, summary.Results[0].Err)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestRunUnknownProviderKindFails(t *testing.T) {
	o := newOrchestrator(t)
	o.Output = types.OutputPlan{Dir: t.TempDir()}

	summary := o.Run(t.Context(), []types.ProjectRef{
		{Raw: "bogus", Provider: types.ProviderKind("bogus")},
	})

	require.Len(t, summary.Results, 1)
	require.Error(t, summary.Results[0].Err)
	assert.Equal(t, 1, summary.ExitCode())
}

type fakeMultiAssetProvider struct{}

func (fakeMultiAssetProvider) Kind() types.ProviderKind { return types.ProviderGitHub }

func (fakeMultiAssetProvider) Resolve(_ context.Context, ref types.ProjectRef) (types.Release, error) {
	return types.Release{
		Tag: "v1",
		Assets: []types.Asset{
			{Name: "widget-linux-amd64.tar.gz"},
			{Name: "widget-darwin-amd64.tar.gz"},
		},
	}, nil
}

func TestRunPlanErrorAbortsRemainingRefs(t *testing.T) {
	o := newOrchestrator(t)
	o.GitHub = fakeMultiAssetProvider{}
	o.Output = types.OutputPlan{Dir: t.TempDir(), FileName: "out.bin"}
	o.AutoAccept = true

	refs := []types.ProjectRef{
		{Raw: "acme/widget", Provider: types.ProviderGitHub, Owner: "acme", Repo: "widget"},
		{Raw: "acme/other", Provider: types.ProviderGitHub, Owner: "acme", Repo: "other"},
	}

	summary := o.Run(t.Context(), refs)

	require.Len(t, summary.Results, 1)
	require.Error(t, summary.Results[0].Err)
	assert.Contains(t, summary.Results[0].Err.Error(), "an explicit output file name only fits one")
}

func TestRunOCIRefRejectsFileNameOutput(t *testing.T) {
	o := newOrchestrator(t)
	o.Output = types.OutputPlan{Dir: t.TempDir(), FileName: "single.bin"}

	summary := o.Run(t.Context(), []types.ProjectRef{
		{Raw: "ghcr.io/acme/widget", Provider: types.ProviderOCI, Owner: "ghcr.io", Repo: "acme/widget", Tag: "latest"},
	})

	require.Len(t, summary.Results, 1)
	require.Error(t, summary.Results[0].Err)
	assert.Contains(t, summary.Results[0].Err.Error(), "every layer blob")
}
