// Package sink exports per-hop cycle rows to optional downstream consumers.
package sink

import "time"

// PathRow is one hop measurement from one probe cycle, flattened for export.
type PathRow struct {
	Target    string    `json:"target"`
	Hop       int       `json:"hop"`
	Host      string    `json:"host"`
	LossPct   float64   `json:"loss_pct"`
	AvgMs     float64   `json:"avg_ms"`
	BestMs    float64   `json:"best_ms"`
	LastMs    float64   `json:"last_ms"`
	Timestamp time.Time `json:"ts"`
}

// RowWriter is an interface to support different output writers.
type RowWriter interface {
	Write(PathRow) error
}

// Optional: writers can also support batch mode.
type batchWriter interface {
	WriteBatch([]PathRow) error
}

// MultiWriter fans rows out to multiple writers.
type MultiWriter struct {
	writers []RowWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(writers ...RowWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write sends a row to all writers.
func (mw *MultiWriter) Write(row PathRow) error {
	for _, w := range mw.writers {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteBatch sends multiple rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteBatch(rows []PathRow) error {
	for _, w := range mw.writers {
		if bw, ok := w.(batchWriter); ok {
			if err := bw.WriteBatch(rows); err != nil {
				return err
			}
			continue
		}
		for _, r := range rows {
			if err := w.Write(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteAll writes a batch through any RowWriter, preferring batch mode.
func WriteAll(w RowWriter, rows []PathRow) error {
	if len(rows) == 0 || w == nil {
		return nil
	}
	if bw, ok := w.(batchWriter); ok {
		return bw.WriteBatch(rows)
	}
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return nil
}
