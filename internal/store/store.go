// Package store reads and writes the registry document on disk.
package store

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/soplang/registry/internal/core"
)

// DefaultPath is the registry file used when no path is given.
const DefaultPath = "registry.json"

// Load reads the registry document at path.
func Load(path string) (*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry: %w", err)
	}
	var doc core.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding registry %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes doc to path with two-space indentation, keeping key order.
// The file is replaced through a temporary sibling so a failed write never
// leaves a truncated registry behind.
func Save(path string, doc *core.Document) error {
	data, err := core.Indent(doc)
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}
