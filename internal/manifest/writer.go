// Package manifest reads, writes and checks batch build manifests.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json sorts map keys so manifests diff cleanly between builds.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// New creates an empty manifest with defaults.
func New(profileName string) *Manifest {
	return &Manifest{
		Version:     SupportedManifestVersion,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Profile:     profileName,
		BasePath:    "./",
		Assets:      make(map[string]Asset),
	}
}

// ComputeStats recalculates aggregate statistics from assets. Counters
// that are not derivable from assets are kept.
func (m *Manifest) ComputeStats() {
	s := Stats{
		SkippedRegress: m.Stats.SkippedRegress,
		Failed:         m.Stats.Failed,
	}
	s.TotalAssets = len(m.Assets)
	for _, a := range m.Assets {
		s.TotalInputBytes += a.Original.Size
		s.TotalVariants += len(a.Variants)
		for _, v := range a.Variants {
			s.TotalOutputBytes += v.Size
		}
	}
	m.Stats = s
}

// Marshal returns the indented manifest followed by a newline.
func Marshal(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteJSON refreshes the stats and writes the manifest to path.
func WriteJSON(m *Manifest, path string) error {
	m.ComputeStats()

	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Read loads a manifest. A directory is taken to contain FileName.
func Read(path string) (*Manifest, string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		path = filepath.Join(path, FileName)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", fmt.Errorf("parse manifest: %w", err)
	}
	return &m, path, nil
}
