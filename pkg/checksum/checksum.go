// Package checksum detects, parses and verifies file digests, and
// opportunistically probes for a ".b3sum" sibling file next to an
// asset URL.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/flanksource/commons/logger"

	"github.com/pkgforge/soar-dl/pkg/transport"
)

// HashType names a supported digest algorithm.
type HashType string

const (
	HashTypeMD5    HashType = "md5"
	HashTypeSHA1   HashType = "sha1"
	HashTypeSHA256 HashType = "sha256"
	HashTypeSHA384 HashType = "sha384"
	HashTypeSHA512 HashType = "sha512"
)

// DetectHashType guesses the algorithm from a checksum string, using
// an explicit "type:hex" prefix when present, falling back to the hex
// length otherwise.
func DetectHashType(checksum string) HashType {
	checksum = strings.TrimSpace(checksum)

	if idx := strings.Index(checksum, ":"); idx >= 0 {
		prefix := strings.ToLower(strings.TrimSpace(checksum[:idx]))
		switch prefix {
		case "md5":
			return HashTypeMD5
		case "sha1":
			return HashTypeSHA1
		case "sha256":
			return HashTypeSHA256
		case "sha384":
			return HashTypeSHA384
		case "sha512":
			return HashTypeSHA512
		}
		checksum = checksum[idx+1:]
	}

	switch len(strings.TrimSpace(checksum)) {
	case 32:
		return HashTypeMD5
	case 40:
		return HashTypeSHA1
	case 96:
		return HashTypeSHA384
	case 128:
		return HashTypeSHA512
	default:
		return HashTypeSHA256
	}
}

// CreateHasher returns a fresh hash.Hash for hashType.
func CreateHasher(hashType HashType) (hash.Hash, error) {
	switch hashType {
	case HashTypeMD5:
		return md5.New(), nil
	case HashTypeSHA1:
		return sha1.New(), nil
	case HashTypeSHA256:
		return sha256.New(), nil
	case HashTypeSHA384:
		return sha512.New384(), nil
	case HashTypeSHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash type: %s", hashType)
	}
}

// ParseChecksum splits a "type:hex" or bare-hex string into its value
// and type, guessing the type when no prefix is present.
func ParseChecksum(checksum string) (value string, hashType HashType) {
	checksum = strings.TrimSpace(checksum)
	if idx := strings.Index(checksum, ":"); idx >= 0 {
		return strings.TrimSpace(checksum[idx+1:]), DetectHashType(checksum)
	}
	return checksum, DetectHashType(checksum)
}

// ParseChecksumWithType requires an explicit "type:hex" prefix,
// returning an error when the string carries none.
func ParseChecksumWithType(checksum string) (value string, hashType HashType, err error) {
	checksum = strings.TrimSpace(checksum)
	idx := strings.Index(checksum, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("checksum type not specified (expected 'type:checksum'), got: %s", checksum)
	}
	return strings.TrimSpace(checksum[idx+1:]), HashType(strings.ToLower(strings.TrimSpace(checksum[:idx]))), nil
}

// FormatChecksum renders value with its type prefix.
func FormatChecksum(value string, hashType HashType) string {
	return fmt.Sprintf("%s:%s", hashType, value)
}

// CalculateFileChecksum streams filePath through hashType's hasher.
func CalculateFileChecksum(filePath string, hashType HashType) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", filePath, err)
	}
	defer file.Close()

	hasher, err := CreateHasher(hashType)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("hashing %s: %w", filePath, err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// VerifyFile checks filePath against an expected "type:hex" (or bare
// hex) checksum, returning the actual value alongside any mismatch.
func VerifyFile(filePath, expectedChecksum string) (actual string, err error) {
	expectedValue, hashType := ParseChecksum(expectedChecksum)

	actual, err = CalculateFileChecksum(filePath, hashType)
	if err != nil {
		return "", err
	}
	if !strings.EqualFold(actual, expectedValue) {
		return actual, fmt.Errorf("checksum mismatch: expected %s:%s, got %s:%s", hashType, expectedValue, hashType, actual)
	}
	return actual, nil
}

// knownHashTypes is the set DetectHashType/ParseChecksumWithType can
// actually verify; anything else (notably "b3"/"blake3") is reported
// but never faked.
var knownHashTypes = map[HashType]bool{
	HashTypeMD5:    true,
	HashTypeSHA1:   true,
	HashTypeSHA256: true,
	HashTypeSHA384: true,
	HashTypeSHA512: true,
}

// ProbeB3Sum does a best-effort GET of "<assetURL>.b3sum" and, if the
// file exists and its single non-empty line carries an explicit
// "type:hex" prefix this package can verify (md5, sha1, sha256, sha384
// or sha512; a bare
// b3sum line normally has neither a prefix nor a way to tell it apart
// from a raw sha256 hex string), returns that checksum ready to pass
// to VerifyFile. BLAKE3 isn't in any known dependency of this module,
// so an unrecognized or prefix-less sibling file is logged and
// skipped rather than guessed at.
func ProbeB3Sum(ctx context.Context, client *transport.Client, assetURL string) (checksum string, ok bool, err error) {
	resp, err := client.Get(ctx, assetURL+".b3sum", nil)
	if err != nil {
		return "", false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", false, nil
	}

	line := strings.TrimSpace(strings.SplitN(string(body), "\n", 2)[0])
	if line == "" {
		return "", false, nil
	}

	value, hashType, perr := ParseChecksumWithType(line)
	if perr != nil {
		logger.Debugf(".b3sum sibling for %s has no type prefix, skipping opportunistic verification", assetURL)
		return "", false, nil
	}
	if !knownHashTypes[hashType] {
		logger.Warnf(".b3sum sibling for %s declares unsupported type %q, skipping", assetURL, hashType)
		return "", false, nil
	}
	return FormatChecksum(value, hashType), true, nil
}
