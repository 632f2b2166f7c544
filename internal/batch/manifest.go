package batch

import (
	"encoding/json"
	"fmt"
	"os"
)

// ManifestEntry represents one job in the output manifest.
type ManifestEntry struct {
	Name       string  `json:"name"`
	Frames     int     `json:"frames"`
	Success    bool    `json:"success"`
	Error      string  `json:"error,omitempty"`
	DurationMs float64 `json:"duration_ms"`
	Image      string  `json:"image,omitempty"`
}

// WriteManifest writes a JSON summary of results to path. image maps a
// successful job to the file rendered for it; it may be nil.
func WriteManifest(path string, results []Result, image func(name string) string) error {
	entries := make([]ManifestEntry, len(results))
	for i, r := range results {
		entries[i] = ManifestEntry{
			Name:       r.Name,
			Frames:     r.Frames,
			Success:    r.Success,
			Error:      r.Error,
			DurationMs: float64(r.Duration.Microseconds()) / 1000,
		}
		if r.Success && image != nil {
			entries[i].Image = image(r.Name)
		}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("batch: manifest: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
