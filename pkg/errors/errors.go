// Package errors defines the typed error taxonomy shared by every
// provider and the download/extract engines, so the orchestrator can
// dispatch on error kind rather than on message text.
package errors

import "fmt"

// InvalidRef is returned when a ProjectRef string can't be parsed by
// any known provider grammar.
type InvalidRef struct {
	Raw    string
	Reason string
}

func (e *InvalidRef) Error() string {
	return fmt.Sprintf("invalid reference %q: %s", e.Raw, e.Reason)
}

// NetworkError wraps a transport-level failure. Transient marks
// failures worth retrying (connection reset, timeout, DNS).
type NetworkError struct {
	Op        string
	Err       error
	Transient bool
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HttpError is a non-2xx response the caller couldn't recover from.
type HttpError struct {
	URL    string
	Status int
	Body   string
}

func (e *HttpError) Error() string {
	return fmt.Sprintf("http %d from %s", e.Status, e.URL)
}

// AuthError signals a missing or rejected credential.
type AuthError struct {
	Service string
	Reason  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Service, e.Reason)
}

// NoReleaseFound means the provider has no release matching the
// requested tag, or no releases at all.
type NoReleaseFound struct {
	Ref string
	Tag string
}

func (e *NoReleaseFound) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: no releases found", e.Ref)
	}
	return fmt.Sprintf("%s: no release matching %q", e.Ref, e.Tag)
}

// EmptyAssetSet means a release was found but it carries zero assets.
type EmptyAssetSet struct {
	Ref string
	Tag string
}

func (e *EmptyAssetSet) Error() string {
	return fmt.Sprintf("%s@%s: release has no assets", e.Ref, e.Tag)
}

// NoMatchingPlatform means an OCI index has no manifest for the
// requested platform.
type NoMatchingPlatform struct {
	Ref      string
	Platform string
}

func (e *NoMatchingPlatform) Error() string {
	return fmt.Sprintf("%s: no manifest for platform %s", e.Ref, e.Platform)
}

// NoAssetsAfterFilter means assets existed but none survived the
// filter plan.
type NoAssetsAfterFilter struct {
	Ref   string
	Total int
}

func (e *NoAssetsAfterFilter) Error() string {
	return fmt.Sprintf("%s: %d assets found, none matched the filter", e.Ref, e.Total)
}

// PlanError wraps a failure building an OutputPlan or DownloadJob.
type PlanError struct {
	Reason string
}

func (e *PlanError) Error() string { return "planning error: " + e.Reason }

// IoError wraps a filesystem failure with its path.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("io error on %s: %v", e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// DigestMismatch is raised when a streamed download's computed digest
// doesn't match the expected one.
type DigestMismatch struct {
	Path     string
	Expected string
	Actual   string
}

func (e *DigestMismatch) Error() string {
	return fmt.Sprintf("digest mismatch for %s: expected %s, got %s", e.Path, e.Expected, e.Actual)
}

// ChecksumMismatch is raised by checksum-file verification, distinct
// from DigestMismatch which applies to provider/registry digests.
type ChecksumMismatch struct {
	Path     string
	Expected string
	Actual   string
	Type     string
}

func (e *ChecksumMismatch) Error() string {
	return fmt.Sprintf("%s checksum mismatch for %s: expected %s, got %s", e.Type, e.Path, e.Expected, e.Actual)
}

// SizeMismatch is raised when a stream's final size disagrees with a
// provider-reported size.
type SizeMismatch struct {
	Path     string
	Expected int64
	Actual   int64
}

func (e *SizeMismatch) Error() string {
	return fmt.Sprintf("size mismatch for %s: expected %d, got %d", e.Path, e.Expected, e.Actual)
}

// UnsafeArchivePath is raised when an archive member would escape the
// extraction directory (zip-slip and friends).
type UnsafeArchivePath struct {
	Archive string
	Member  string
}

func (e *UnsafeArchivePath) Error() string {
	return fmt.Sprintf("unsafe path %q in archive %s", e.Member, e.Archive)
}

// UnsupportedArchiveFormat is raised when no extractor recognizes an
// archive's suffix.
type UnsupportedArchiveFormat struct {
	Name string
}

func (e *UnsupportedArchiveFormat) Error() string {
	return fmt.Sprintf("unsupported archive format: %s", e.Name)
}

// Cancelled names an operation the user aborted; RunSummary.ExitCode
// maps it to exit code 130.
type Cancelled struct {
	Op string
}

func (e *Cancelled) Error() string { return e.Op + " cancelled" }
