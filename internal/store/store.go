// Package store is the append-only per-target history of per-hop metrics.
//
// A series holds one fixed-schema table per target: one column per
// hop{i}_{metric} pair for i in 1..MaxHops. Retention is bounded by one or
// more archives, each a {step, rows} ring: one consolidated point per step
// bucket, oldest point dropped once the ring is full. Missing values are
// recorded as null, never zero.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mtrwatch/internal/probe"
)

// Schema fixes the column layout of every series in a store.
type Schema struct {
	MaxHops int      `json:"max_hops"`
	Metrics []string `json:"metrics"`
}

// Columns returns the column names in hop-major, metric-minor order. The
// append path relies on this order staying fixed for the life of a series.
func (s Schema) Columns() []string {
	cols := make([]string, 0, s.MaxHops*len(s.Metrics))
	for i := 1; i <= s.MaxHops; i++ {
		for _, m := range s.Metrics {
			cols = append(cols, fmt.Sprintf("hop%d_%s", i, m))
		}
	}
	return cols
}

// Width is the number of value columns per row.
func (s Schema) Width() int { return s.MaxHops * len(s.Metrics) }

func (s Schema) equal(o Schema) bool {
	if s.MaxHops != o.MaxHops || len(s.Metrics) != len(o.Metrics) {
		return false
	}
	for i := range s.Metrics {
		if s.Metrics[i] != o.Metrics[i] {
			return false
		}
	}
	return true
}

// ArchiveSpec defines one retention window.
type ArchiveSpec struct {
	Step time.Duration
	Rows int
}

// Point is one consolidated row within an archive.
type Point struct {
	Bucket int64      `json:"t"` // unix seconds, aligned to the archive step
	Values []*float64 `json:"v"` // len == Schema.Width(); nil is unknown
}

// Archive is a bounded ring of points at one step resolution.
type Archive struct {
	StepSeconds int64   `json:"step_seconds"`
	Rows        int     `json:"rows"`
	Points      []Point `json:"points"`
}

func (a *Archive) append(ts int64, values []*float64) {
	bucket := ts - ts%a.StepSeconds
	if n := len(a.Points); n > 0 {
		last := a.Points[n-1].Bucket
		if bucket < last {
			return // never write out of temporal order
		}
		if bucket == last {
			a.Points[n-1].Values = values // latest sample wins within a bucket
			return
		}
	}
	a.Points = append(a.Points, Point{Bucket: bucket, Values: values})
	if len(a.Points) > a.Rows {
		a.Points = a.Points[len(a.Points)-a.Rows:]
	}
}

// Series is the persisted history for one target.
type Series struct {
	Target   string     `json:"target"`
	Schema   Schema     `json:"schema"`
	Archives []*Archive `json:"archives"`

	path string
}

// Store manages one series per target under a data directory.
type Store struct {
	dir      string
	schema   Schema
	archives []ArchiveSpec

	mu   sync.Mutex
	open map[string]*Series
}

// New creates a store rooted at dir. Series files are created lazily the
// first time a target is written.
func New(dir string, schema Schema, archives []ArchiveSpec) *Store {
	return &Store{dir: dir, schema: schema, archives: archives, open: map[string]*Series{}}
}

// Open returns the series for a target, loading it from disk or creating it
// if absent. Creation is idempotent.
func (st *Store) Open(target string) (*Series, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.open[target]; ok {
		return s, nil
	}
	if err := os.MkdirAll(st.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}

	s := &Series{
		Target: target,
		Schema: st.schema,
		path:   filepath.Join(st.dir, target+".series.json"),
	}
	data, err := os.ReadFile(s.path)
	switch {
	case err == nil:
		if jerr := json.Unmarshal(data, s); jerr != nil {
			return nil, fmt.Errorf("parse series for %s: %w", target, jerr)
		}
		// Appending rows of a different width into old archives would corrupt
		// every consumer indexing Values by column.
		if !s.Schema.equal(st.schema) {
			return nil, fmt.Errorf("series for %s: stored schema (%d hops, metrics %v) does not match configured (%d hops, metrics %v)",
				target, s.Schema.MaxHops, s.Schema.Metrics, st.schema.MaxHops, st.schema.Metrics)
		}
	case os.IsNotExist(err):
		for _, spec := range st.archives {
			s.Archives = append(s.Archives, &Archive{
				StepSeconds: int64(spec.Step / time.Second),
				Rows:        spec.Rows,
			})
		}
	default:
		return nil, fmt.Errorf("read series for %s: %w", target, err)
	}
	st.open[target] = s
	return s, nil
}

// Append writes one timestamped row built from a probe cycle and persists
// the series. Hops the cycle did not report are recorded as unknown.
func (st *Store) Append(target string, ts time.Time, cycle probe.Cycle) error {
	s, err := st.Open(target)
	if err != nil {
		return err
	}
	s.Append(ts, rowValues(st.schema, cycle))
	return s.persist()
}

// Append folds one row into every archive.
func (s *Series) Append(ts time.Time, values []*float64) {
	for _, a := range s.Archives {
		a.append(ts.Unix(), values)
	}
}

// Latest returns the newest point of the finest archive, if any.
func (s *Series) Latest() (Point, bool) {
	if len(s.Archives) == 0 || len(s.Archives[0].Points) == 0 {
		return Point{}, false
	}
	pts := s.Archives[0].Points
	return pts[len(pts)-1], true
}

func (s *Series) persist() error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode series: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write series: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// rowValues flattens a cycle into schema order. Hop 0 is never stored.
func rowValues(schema Schema, cycle probe.Cycle) []*float64 {
	byIndex := make(map[int]probe.HopSample, len(cycle))
	for _, h := range cycle {
		if h.Index >= 1 {
			byIndex[h.Index] = h
		}
	}
	values := make([]*float64, 0, schema.Width())
	for i := 1; i <= schema.MaxHops; i++ {
		h, ok := byIndex[i]
		for _, m := range schema.Metrics {
			if !ok {
				values = append(values, nil)
				continue
			}
			values = append(values, metricValue(h, m))
		}
	}
	return values
}

func metricValue(h probe.HopSample, metric string) *float64 {
	var v float64
	switch metric {
	case "avg":
		v = h.AvgMs
	case "last":
		v = h.LastMs
	case "best":
		v = h.BestMs
	case "loss":
		v = h.LossPct
	default:
		return nil
	}
	return &v
}
