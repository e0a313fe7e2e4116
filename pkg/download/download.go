// Package download implements the streaming download engine: path
// planning, existing-file policy, chunked transfer with digest
// verification and progress reporting, atomic finalization, and the
// archive-extraction trigger.
package download

import (
	"context"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/flanksource/clicky/task"

	"github.com/pkgforge/soar-dl/pkg/checksum"
	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
	"github.com/pkgforge/soar-dl/pkg/extract"
	"github.com/pkgforge/soar-dl/pkg/transport"
	"github.com/pkgforge/soar-dl/pkg/types"
)

// chunkSize is the fixed transfer buffer size; work between
// suspension points must not allocate unbounded memory.
const chunkSize = 64 * 1024

// progressInterval bounds progress emission to well under the 30 Hz
// ceiling without flooding a terminal renderer.
const progressInterval = 100 * time.Millisecond

// PromptFunc resolves an ExistsPrompt collision interactively,
// returning the policy to apply to this one job.
type PromptFunc func(dest string) (types.ExistsPolicy, error)

// Engine streams DownloadJobs to disk.
type Engine struct {
	Client *transport.Client
	Prompt PromptFunc
}

// New builds an Engine backed by client.
func New(client *transport.Client) *Engine {
	return &Engine{Client: client}
}

// Execute runs job to completion, always returning a JobResult; a
// failure is carried in JobResult.Err rather than as a second return
// value, so callers can aggregate outcomes without special-casing.
func (e *Engine) Execute(ctx context.Context, t *task.Task, job types.DownloadJob) types.JobResult {
	start := time.Now()
	result := types.JobResult{Job: job}

	path, skipped, err := e.run(ctx, t, job)
	result.Duration = time.Since(start)
	result.Path = path
	result.Skipped = skipped
	result.Err = err
	return result
}

func (e *Engine) run(ctx context.Context, t *task.Task, job types.DownloadJob) (string, bool, error) {
	if job.Output.Dir == "" {
		return "", false, &soarerrors.PlanError{Reason: "download job has no output directory"}
	}
	if err := os.MkdirAll(job.Output.Dir, 0o755); err != nil {
		return "", false, &soarerrors.IoError{Path: job.Output.Dir, Err: err}
	}

	name := job.Output.FileName
	if name == "" {
		name = job.Asset.Name
	}
	dest := filepath.Join(job.Output.Dir, name)
	part := dest + ".part"

	rangeStart, skip, err := e.resolveExisting(dest, part, job.Output.OnExists)
	if err != nil {
		return "", false, err
	}
	if skip {
		return dest, true, nil
	}

	size, err := e.stream(ctx, t, job, part, rangeStart)
	if err != nil {
		return "", false, err
	}

	if job.Asset.Size > 0 && size != job.Asset.Size {
		keepForResume := job.Checksum == ""
		if !keepForResume {
			os.Remove(part)
		}
		return "", false, &soarerrors.SizeMismatch{Path: dest, Expected: job.Asset.Size, Actual: size}
	}

	if err := os.Rename(part, dest); err != nil {
		return "", false, &soarerrors.IoError{Path: dest, Err: err}
	}

	if job.Output.Extract {
		extractDir := job.Output.ExtractDir
		if extractDir == "" {
			extractDir = archiveStemDir(dest)
		}
		if err := extract.Archive(dest, extractDir); err != nil {
			return dest, false, err
		}
		if job.Output.ExtractOnly {
			os.Remove(dest)
			return extractDir, false, nil
		}
	}

	return dest, false, nil
}

// resolveExisting applies the ExistsPolicy, returning a byte offset to
// resume from (0 meaning start fresh) and whether the job should be
// reported as skipped without touching the network.
func (e *Engine) resolveExisting(dest, part string, policy types.ExistsPolicy) (int64, bool, error) {
	if policy == "" {
		policy = types.ExistsResume
	}

again:
	switch policy {
	case types.ExistsSkip:
		if fileExists(dest) {
			return 0, true, nil
		}
		return 0, false, nil

	case types.ExistsOverwrite:
		os.Remove(part)
		return 0, false, nil

	case types.ExistsResume:
		if info, err := os.Stat(part); err == nil {
			return info.Size(), false, nil
		}
		if fileExists(dest) {
			return 0, false, &soarerrors.PlanError{Reason: fmt.Sprintf("%s already exists; use --skip-existing or --force-overwrite", dest)}
		}
		return 0, false, nil

	case types.ExistsPrompt:
		if e.Prompt == nil {
			return 0, false, &soarerrors.PlanError{Reason: "destination exists and no interactive prompt is available"}
		}
		chosen, err := e.Prompt(dest)
		if err != nil {
			return 0, false, err
		}
		policy = chosen
		goto again

	default:
		return 0, false, &soarerrors.PlanError{Reason: fmt.Sprintf("unknown exists policy %q", policy)}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// stream fetches job.Asset.URL starting at rangeStart (0 for a fresh
// transfer) into part, appending on resume, and returns the final
// on-disk size.
func (e *Engine) stream(ctx context.Context, t *task.Task, job types.DownloadJob, part string, rangeStart int64) (int64, error) {
	headers := make(http.Header)
	for k, v := range job.Headers {
		headers.Set(k, v)
	}

	if job.Checksum != "" {
		// A digest can't be resumed mid-stream; restart clean.
		rangeStart = 0
	}

	resp, err := e.Client.StreamRange(ctx, job.Asset.URL, rangeStart, headers)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	offset := int64(0)
	switch resp.StatusCode {
	case http.StatusOK:
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		offset = rangeStart
	default:
		return 0, &soarerrors.HttpError{URL: job.Asset.URL, Status: resp.StatusCode}
	}

	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return 0, &soarerrors.IoError{Path: part, Err: err}
	}
	defer f.Close()

	var hasher hash.Hash
	var expected string
	var writer io.Writer = f
	if job.Checksum != "" {
		value, hashType := checksum.ParseChecksum(job.Checksum)
		expected = value
		if hasher, err = checksum.CreateHasher(hashType); err != nil {
			return 0, err
		}
		writer = io.MultiWriter(f, hasher)
	}

	total := resp.ContentLength
	if total > 0 && offset > 0 {
		total += offset
	}

	n, err := copyWithProgress(ctx, t, writer, resp.Body, offset, total)
	if err != nil {
		return 0, &soarerrors.IoError{Path: part, Err: err}
	}

	if hasher != nil {
		actual := fmt.Sprintf("%x", hasher.Sum(nil))
		if actual != expected {
			os.Remove(part)
			return 0, &soarerrors.DigestMismatch{Path: part, Expected: expected, Actual: actual}
		}
	}

	return offset + n, nil
}

func copyWithProgress(ctx context.Context, t *task.Task, dst io.Writer, src io.Reader, received, total int64) (int64, error) {
	buf := make([]byte, chunkSize)
	lastUpdate := time.Now()
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}

			if t != nil && time.Since(lastUpdate) >= progressInterval {
				if total > 0 {
					t.SetProgress(int(received+written), int(total))
				}
				lastUpdate = time.Now()
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return written, rerr
		}
	}

	if t != nil && total > 0 {
		t.SetProgress(int(received+written), int(total))
	}
	return written, nil
}

// archiveStemDir derives "name" from "name.tar.gz" etc, for the
// default extraction directory, placed beside the archive.
func archiveStemDir(archivePath string) string {
	dir := filepath.Dir(archivePath)
	return filepath.Join(dir, extract.Stem(filepath.Base(archivePath)))
}
