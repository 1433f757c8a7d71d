package store

import (
	"testing"
	"time"

	"mtrwatch/internal/probe"
)

func testSchema() Schema {
	return Schema{MaxHops: 3, Metrics: []string{"avg", "loss"}}
}

func testCycle() probe.Cycle {
	return probe.Cycle{
		{Index: 0, Host: "local", AvgMs: 0.1, LossPct: 0},
		{Index: 1, Host: "gw", AvgMs: 1.5, LossPct: 0},
		{Index: 2, Host: "core", AvgMs: 9.0, LossPct: 12.5},
	}
}

func TestSchema_Columns(t *testing.T) {
	cols := testSchema().Columns()
	want := []string{"hop1_avg", "hop1_loss", "hop2_avg", "hop2_loss", "hop3_avg", "hop3_loss"}
	if len(cols) != len(want) {
		t.Fatalf("got %d columns, want %d", len(cols), len(want))
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("column %d = %q, want %q", i, cols[i], want[i])
		}
	}
}

func TestAppend_UnknownNeverZero(t *testing.T) {
	st := New(t.TempDir(), testSchema(), []ArchiveSpec{{Step: time.Second, Rows: 10}})
	if err := st.Append("8.8.8.8", time.Unix(100, 0), testCycle()); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}

	s, _ := st.Open("8.8.8.8")
	p, ok := s.Latest()
	if !ok {
		t.Fatal("no point recorded")
	}
	// hop1_avg, hop1_loss, hop2_avg, hop2_loss present; hop3 unreported.
	if p.Values[0] == nil || *p.Values[0] != 1.5 {
		t.Errorf("hop1_avg = %v, want 1.5", p.Values[0])
	}
	if p.Values[3] == nil || *p.Values[3] != 12.5 {
		t.Errorf("hop2_loss = %v, want 12.5", p.Values[3])
	}
	if p.Values[4] != nil || p.Values[5] != nil {
		t.Errorf("hop3 values must be unknown, got %v %v", p.Values[4], p.Values[5])
	}
}

func TestAppend_RetentionBound(t *testing.T) {
	st := New(t.TempDir(), testSchema(), []ArchiveSpec{{Step: time.Second, Rows: 5}})
	for i := 0; i < 12; i++ {
		ts := time.Unix(int64(1000+i), 0)
		if err := st.Append("t", ts, testCycle()); err != nil {
			t.Fatalf("Append() returned error: %v", err)
		}
	}

	s, _ := st.Open("t")
	a := s.Archives[0]
	if len(a.Points) != 5 {
		t.Fatalf("archive grew to %d points, capacity 5", len(a.Points))
	}
	if a.Points[0].Bucket != 1007 {
		t.Errorf("earliest rows must be dropped first: oldest bucket = %d, want 1007", a.Points[0].Bucket)
	}
	if a.Points[4].Bucket != 1011 {
		t.Errorf("newest bucket = %d, want 1011", a.Points[4].Bucket)
	}
}

func TestAppend_ConsolidatesWithinBucket(t *testing.T) {
	st := New(t.TempDir(), testSchema(), []ArchiveSpec{{Step: 60 * time.Second, Rows: 10}})
	c := testCycle()
	_ = st.Append("t", time.Unix(120, 0), c)
	c[1].AvgMs = 99.0
	_ = st.Append("t", time.Unix(150, 0), c) // same 60s bucket

	s, _ := st.Open("t")
	a := s.Archives[0]
	if len(a.Points) != 1 {
		t.Fatalf("same-bucket writes must not add points, got %d", len(a.Points))
	}
	if *a.Points[0].Values[0] != 99.0 {
		t.Errorf("latest sample should win within a bucket, got %v", *a.Points[0].Values[0])
	}
}

func TestAppend_RejectsOutOfOrder(t *testing.T) {
	st := New(t.TempDir(), testSchema(), []ArchiveSpec{{Step: time.Second, Rows: 10}})
	_ = st.Append("t", time.Unix(500, 0), testCycle())
	_ = st.Append("t", time.Unix(400, 0), testCycle())

	s, _ := st.Open("t")
	if n := len(s.Archives[0].Points); n != 1 {
		t.Errorf("out-of-order write must be dropped, got %d points", n)
	}
}

func TestOpen_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	specs := []ArchiveSpec{{Step: time.Second, Rows: 10}}

	st := New(dir, testSchema(), specs)
	if err := st.Append("8.8.8.8", time.Unix(100, 0), testCycle()); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}

	st2 := New(dir, testSchema(), specs)
	s, err := st2.Open("8.8.8.8")
	if err != nil {
		t.Fatalf("Open() after restart returned error: %v", err)
	}
	if _, ok := s.Latest(); !ok {
		t.Error("points did not survive restart")
	}
}

func TestOpen_RejectsSchemaMismatch(t *testing.T) {
	dir := t.TempDir()
	specs := []ArchiveSpec{{Step: time.Second, Rows: 10}}

	st := New(dir, testSchema(), specs)
	if err := st.Append("t", time.Unix(100, 0), testCycle()); err != nil {
		t.Fatalf("Append() returned error: %v", err)
	}

	// Reopening with more hops would append wider rows into the old archives.
	wider := New(dir, Schema{MaxHops: 4, Metrics: []string{"avg", "loss"}}, specs)
	if _, err := wider.Open("t"); err == nil {
		t.Error("Open() must refuse a series whose stored schema differs")
	}

	// Changed metric set is a mismatch too.
	reordered := New(dir, Schema{MaxHops: 3, Metrics: []string{"loss", "avg"}}, specs)
	if _, err := reordered.Open("t"); err == nil {
		t.Error("Open() must refuse a series with a different metric order")
	}

	// The unchanged schema still loads.
	same := New(dir, testSchema(), specs)
	if _, err := same.Open("t"); err != nil {
		t.Errorf("Open() with matching schema returned error: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	st := New(t.TempDir(), testSchema(), []ArchiveSpec{{Step: time.Second, Rows: 10}})
	a, err := st.Open("t")
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Open("t")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Open must return the same series for a target")
	}
}
