// Package extract unpacks tar+{gzip,bzip2,xz,zstd} and zip archives
// into a destination directory, rejecting any member whose path would
// escape it.
package extract

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	soarerrors "github.com/pkgforge/soar-dl/pkg/errors"
)

// Archive extracts archivePath's contents into destDir, creating it
// if necessary. The format is chosen from archivePath's suffix.
func Archive(archivePath, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return &soarerrors.IoError{Path: destDir, Err: err}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return &soarerrors.IoError{Path: archivePath, Err: err}
	}
	defer f.Close()

	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".zip") || strings.HasSuffix(lower, ".jar") || strings.HasSuffix(lower, ".war"):
		return extractZip(archivePath, destDir)
	case strings.HasSuffix(lower, ".tar"):
		return extractTar(archivePath, f, destDir)
	case strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening gzip stream: %w", err)
		}
		defer gz.Close()
		return extractTar(archivePath, gz, destDir)
	case strings.HasSuffix(lower, ".tar.bz2") || strings.HasSuffix(lower, ".tbz2"):
		return extractTar(archivePath, bzip2.NewReader(f), destDir)
	case strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening xz stream: %w", err)
		}
		return extractTar(archivePath, xr, destDir)
	case strings.HasSuffix(lower, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		return extractTar(archivePath, zr, destDir)
	default:
		return &soarerrors.UnsupportedArchiveFormat{Name: archivePath}
	}
}

func extractTar(archivePath string, r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar entry: %w", err)
		}

		target, err := safeJoin(destDir, hdr.Name)
		if err != nil {
			return &soarerrors.UnsafeArchivePath{Archive: archivePath, Member: hdr.Name}
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &soarerrors.IoError{Path: target, Err: err}
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return &soarerrors.IoError{Path: target, Err: err}
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return &soarerrors.IoError{Path: target, Err: err}
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return &soarerrors.IoError{Path: target, Err: err}
			}
			out.Close()
		case tar.TypeSymlink:
			linkTarget, err := safeJoin(destDir, hdr.Linkname)
			if err != nil {
				return &soarerrors.UnsafeArchivePath{Archive: archivePath, Member: hdr.Name}
			}
			_ = os.Remove(target)
			if err := os.Symlink(linkTarget, target); err != nil {
				return &soarerrors.IoError{Path: target, Err: err}
			}
		default:
			// skip device files, hardlinks and anything else unusual
		}
	}
}

func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &soarerrors.IoError{Path: archivePath, Err: err}
	}
	defer zr.Close()

	for _, member := range zr.File {
		target, err := safeJoin(destDir, member.Name)
		if err != nil {
			return &soarerrors.UnsafeArchivePath{Archive: archivePath, Member: member.Name}
		}

		if member.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return &soarerrors.IoError{Path: target, Err: err}
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return &soarerrors.IoError{Path: target, Err: err}
		}

		rc, err := member.Open()
		if err != nil {
			return fmt.Errorf("opening zip member %s: %w", member.Name, err)
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, member.Mode().Perm())
		if err != nil {
			rc.Close()
			return &soarerrors.IoError{Path: target, Err: err}
		}
		_, copyErr := io.Copy(out, rc)
		out.Close()
		rc.Close()
		if copyErr != nil {
			return &soarerrors.IoError{Path: target, Err: copyErr}
		}
	}
	return nil
}

// safeJoin joins destDir with member, rejecting absolute paths and
// any ".." component that would let the result escape destDir.
func safeJoin(destDir, member string) (string, error) {
	if filepath.IsAbs(member) {
		return "", fmt.Errorf("absolute path in archive: %s", member)
	}
	cleaned := filepath.Clean(filepath.Join(destDir, member))
	destClean := filepath.Clean(destDir)
	if cleaned != destClean && !strings.HasPrefix(cleaned, destClean+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes destination: %s", member)
	}
	return cleaned, nil
}
