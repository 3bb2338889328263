package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const mxlrcFile = ".mxlrc"

// FindMXLRC walks up from startDir looking for a .mxlrc file, the
// per-directory pointer to a default domain. Returns the path to the
// file if found, or empty string and nil if not found.
func FindMXLRC(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		candidate := filepath.Join(dir, mxlrcFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			return "", nil
		}
		dir = parent
	}
}

// ReadMXLRC reads the domain path from a .mxlrc file. The file is
// expected to contain just the path, optionally with whitespace.
func ReadMXLRC(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading .mxlrc: %w", err)
	}
	domain := strings.TrimSpace(string(data))
	if domain == "" {
		return "", fmt.Errorf(".mxlrc is empty: %s", path)
	}
	return domain, nil
}

// WriteMXLRC writes a domain path to a .mxlrc file in the given directory.
func WriteMXLRC(dir, domain string) error {
	path := filepath.Join(dir, mxlrcFile)
	return os.WriteFile(path, []byte(domain+"\n"), 0o644)
}
