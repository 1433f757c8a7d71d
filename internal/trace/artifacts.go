package trace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mtrwatch/internal/probe"
)

// Book owns the on-disk label artifacts for one target. It is used by exactly
// one monitor worker; cross-process exclusivity is the coordination lock's job.
type Book struct {
	dir    string
	target string
	Stats  Stats
}

// Open loads the rolling stats for a target, starting empty when no stats
// file exists yet.
func Open(dir, target string) (*Book, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure trace directory: %w", err)
	}
	b := &Book{dir: dir, target: target, Stats: Stats{}}

	data, err := os.ReadFile(b.statsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return b, nil
		}
		return nil, fmt.Errorf("read hop stats: %w", err)
	}
	if err := json.Unmarshal(data, &b.Stats); err != nil {
		// Corrupt stats are not worth failing a monitor over; start fresh.
		b.Stats = Stats{}
	}
	return b, nil
}

func (b *Book) stem() string       { return filepath.Join(b.dir, b.target) }
func (b *Book) statsPath() string  { return b.stem() + "_hops_stats.json" }
func (b *Book) labelsPath() string { return b.stem() + "_hops.json" }

// SaveStats persists the rolling stats so restarts do not reset stability.
func (b *Book) SaveStats() error {
	return writeJSON(b.statsPath(), b.Stats)
}

// WriteLabels rewrites the rendered label list in full.
func (b *Book) WriteLabels(t Tuning) error {
	labels := b.Stats.Labels(t)
	if len(labels) == 0 {
		return nil
	}
	return writeJSON(b.labelsPath(), labels)
}

// WriteSnapshot writes the human-readable trace and the legacy hopN→host map
// for the given cycle. Hop 0 is never written.
func (b *Book) WriteSnapshot(cycle probe.Cycle) error {
	var txt strings.Builder
	legacy := make(map[string]string)
	for _, h := range cycle {
		if h.Index < 1 {
			continue
		}
		fmt.Fprintf(&txt, "%d %s %.2f ms\n", h.Index, h.Host, h.AvgMs)
		legacy[fmt.Sprintf("hop%d", h.Index)] = h.Host
	}
	if len(legacy) == 0 {
		return nil
	}
	if err := writeAtomic(b.stem()+".trace.txt", []byte(txt.String())); err != nil {
		return err
	}
	return writeJSON(b.stem()+".json", legacy)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(path, append(data, '\n'))
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
