// Package export delivers finished audio artifacts to a local directory or to
// the NATS object store.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultDirPermissions  = 0o750
	defaultFilePermissions = 0o600
	invalidCharReplacement = "_"
	fallbackFilename       = "export.bin"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// Size formatting constants.
const (
	formatGB    = "%.1f GB"
	formatMB    = "%.1f MB"
	formatKB    = "%.1f KB"
	formatBytes = "%d B"
)

var filenameReplacer = strings.NewReplacer(
	"<", invalidCharReplacement,
	">", invalidCharReplacement,
	":", invalidCharReplacement,
	"\"", invalidCharReplacement,
	"/", invalidCharReplacement,
	"\\", invalidCharReplacement,
	"|", invalidCharReplacement,
	"?", invalidCharReplacement,
	"*", invalidCharReplacement,
)

// EnsureDir creates path and its parents if they do not exist.
func EnsureDir(path string) error {
	err := os.MkdirAll(path, defaultDirPermissions)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	return nil
}

// SanitizeFilename replaces characters that are invalid in most filesystems and
// strips any directory part.
func SanitizeFilename(filename string) string {
	cleaned := filenameReplacer.Replace(strings.TrimSpace(filename))
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return fallbackFilename
	}

	return cleaned
}

// FormatFileSize formats a size in bytes for humans, e.g. "1.2 MB".
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// writeFile writes data to dir/name with private permissions.
func writeFile(dir, name string, data []byte) (string, error) {
	err := EnsureDir(dir)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, SanitizeFilename(name))

	err = os.WriteFile(path, data, defaultFilePermissions)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}
