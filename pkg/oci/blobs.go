package oci

import (
	"context"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// FetchBlobs downloads every asset (each one a layer blob URL
// produced by Resolve) into destDir concurrently, bounded to
// concurrency simultaneous blobs, verifying each blob's digest as it
// streams. A failed blob is removed before returning so a retry never
// sees a partial file.
func (c *Client) FetchBlobs(ctx context.Context, repo string, assets []types.Asset, destDir string, concurrency int) ([]types.JobResult, error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, &soarerrors.IoError{Path: destDir, Err: err}
	}

	headers, err := c.AuthHeaders(ctx, repo)
	if err != nil {
		return nil, err
	}

	results := make([]types.JobResult, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			path, size, err := c.fetchOneBlob(gctx, asset, destDir, headers)
			results[i] = types.JobResult{
				Job: types.DownloadJob{Asset: asset},
				Path: path,
				Size: size,
				Err:  err,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (c *Client) fetchOneBlob(ctx context.Context, asset types.Asset, destDir string, headers map[string]string) (string, int64, error) {
	req, err := http.NewRequest(http.MethodGet, asset.URL, nil)
	if err != nil {
		return "", 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, &soarerrors.HttpError{URL: asset.URL, Status: resp.StatusCode}
	}

	dest := filepath.Join(destDir, asset.Name)
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", 0, &soarerrors.IoError{Path: tmp, Err: err}
	}

	var expected digest.Digest
	var hasher hash.Hash
	var writer io.Writer = f
	if asset.Digest != "" {
		if d, err := digest.Parse(asset.Digest); err == nil {
			expected = d
			hasher = d.Algorithm().Hash()
			writer = io.MultiWriter(f, hasher)
		}
	}

	n, copyErr := io.Copy(writer, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return "", 0, &soarerrors.IoError{Path: dest, Err: copyErr}
	}
	if closeErr != nil {
		os.Remove(tmp)
		return "", 0, &soarerrors.IoError{Path: dest, Err: closeErr}
	}

	if hasher != nil {
		actual := digest.NewDigest(expected.Algorithm(), hasher)
		if actual != expected {
			os.Remove(tmp)
			return "", 0, &soarerrors.DigestMismatch{Path: dest, Expected: expected.String(), Actual: actual.String()}
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", 0, &soarerrors.IoError{Path: dest, Err: err}
	}
	return dest, n, nil
}
