package trace

import (
	"strings"
	"testing"
)

func observeN(s Stats, hop int, host string, n int, t Tuning) {
	for i := 0; i < n; i++ {
		s.Observe(hop, host, t)
	}
}

func TestLabel_MajorityRule(t *testing.T) {
	tn := DefaultTuning()
	s := Stats{}
	observeN(s, 1, "A", 6, tn)
	observeN(s, 1, "B", 4, tn)

	if got := s[1].Label(tn); got != "A" {
		t.Errorf("label = %q, want A (share 0.6 >= 0.45)", got)
	}
}

func TestLabel_VariesRule(t *testing.T) {
	tn := DefaultTuning()
	s := Stats{}
	observeN(s, 1, "A", 3, tn)
	observeN(s, 1, "B", 3, tn)
	observeN(s, 1, "C", 4, tn)

	got := s[1].Label(tn)
	if !strings.HasPrefix(got, "varies (") {
		t.Fatalf("label = %q, want varies (...)", got)
	}
	if got != "varies (C, A, B)" {
		t.Errorf("label = %q, want hosts by descending frequency with insertion-order ties", got)
	}
}

func TestLabel_TopKLimit(t *testing.T) {
	tn := DefaultTuning()
	tn.UnstableThreshold = 0.99 // force varies
	s := Stats{}
	for _, h := range []string{"A", "B", "C", "D"} {
		observeN(s, 1, h, 2, tn)
	}
	got := s[1].Label(tn)
	if strings.Count(got, ",") != 2 {
		t.Errorf("label = %q, want exactly 3 hosts listed", got)
	}
}

func TestSticky_Hysteresis(t *testing.T) {
	tn := DefaultTuning()
	s := Stats{}

	// Establish A as sticky with full wins.
	observeN(s, 1, "A", 5, tn)
	if s[1].Sticky != "A" || s[1].Wins != tn.StickyMinWins {
		t.Fatalf("sticky = %q wins = %d after warmup", s[1].Sticky, s[1].Wins)
	}

	// B becomes modal at its 6th observation; the label must not flip
	// until the win count has been decremented to zero.
	observeN(s, 1, "B", 7, tn)
	if s[1].Sticky != "A" {
		t.Fatalf("sticky flipped too early: %q", s[1].Sticky)
	}
	s.Observe(1, "B", tn) // third decrement, wins reach zero
	if s[1].Sticky != "B" {
		t.Errorf("sticky = %q, want B after wins exhausted", s[1].Sticky)
	}

	// A brief flap back to A must not flip immediately.
	s.Observe(1, "A", tn)
	if s[1].Sticky != "B" {
		t.Errorf("single flap flipped sticky label to %q", s[1].Sticky)
	}
}

func TestDecay_WindowBound(t *testing.T) {
	tn := DefaultTuning()
	tn.Window = 10
	s := Stats{}
	observeN(s, 1, "A", 8, tn)
	observeN(s, 1, "B", 7, tn)

	total := 0
	for _, c := range s[1].Tally {
		total += c
	}
	if total > tn.Window {
		t.Errorf("total tally = %d exceeds window %d", total, tn.Window)
	}
	// A is the oldest-inserted host, so decay must have eaten A first.
	if s[1].Tally["B"] != 7 {
		t.Errorf("decay removed from newest host: tally = %v", s[1].Tally)
	}
}

func TestDecay_EvictsEmptyHost(t *testing.T) {
	tn := DefaultTuning()
	tn.Window = 3
	s := Stats{}
	s.Observe(1, "A", tn)
	observeN(s, 1, "B", 5, tn)

	if _, ok := s[1].Tally["A"]; ok {
		t.Errorf("host A should be fully evicted, tally = %v", s[1].Tally)
	}
	for _, h := range s[1].Order {
		if h == "A" {
			t.Errorf("evicted host still in order: %v", s[1].Order)
		}
	}
}

func TestObserve_IgnoresHopZero(t *testing.T) {
	tn := DefaultTuning()
	s := Stats{}
	s.Observe(0, "local", tn)
	s.Observe(-1, "junk", tn)
	if len(s) != 0 {
		t.Errorf("hops below 1 must not be tracked: %v", s)
	}
}

func TestFirstDiff(t *testing.T) {
	tests := []struct {
		name    string
		prev    []string
		curr    []string
		wantHop int
		wantOK  bool
	}{
		{"equal", []string{"a", "b"}, []string{"a", "b"}, 0, false},
		{"substitution", []string{"a", "b", "c"}, []string{"a", "x", "c"}, 1, true},
		{"grown", []string{"a"}, []string{"a", "b"}, 1, true},
		{"shrunk", []string{"a", "b"}, []string{"a"}, 1, true},
		{"empty prev", nil, []string{"a"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hop, ok := FirstDiff(tt.prev, tt.curr)
			if hop != tt.wantHop || ok != tt.wantOK {
				t.Errorf("FirstDiff() = (%d, %v), want (%d, %v)", hop, ok, tt.wantHop, tt.wantOK)
			}
		})
	}
}

func TestReset_FromFirstDiff(t *testing.T) {
	tn := DefaultTuning()
	s := Stats{}
	for hop := 1; hop <= 4; hop++ {
		s.Observe(hop, "h", tn)
	}
	s.Reset(3, tn)
	if _, ok := s[2]; !ok {
		t.Error("hops below the first diff must be kept")
	}
	if _, ok := s[3]; ok {
		t.Error("hop 3 should have been dropped")
	}
	if _, ok := s[4]; ok {
		t.Error("hop 4 should have been dropped")
	}
}

func TestReset_Modes(t *testing.T) {
	for _, mode := range []string{"none", "all"} {
		tn := DefaultTuning()
		tn.ResetMode = mode
		s := Stats{}
		s.Observe(1, "h", tn)
		s.Observe(2, "h", tn)
		s.Reset(1, tn)
		switch mode {
		case "none":
			if len(s) != 2 {
				t.Errorf("mode none should keep stats, got %d hops", len(s))
			}
		case "all":
			if len(s) != 0 {
				t.Errorf("mode all should clear stats, got %d hops", len(s))
			}
		}
	}
}

func TestLabels_Ordering(t *testing.T) {
	tn := DefaultTuning()
	s := Stats{}
	s.Observe(3, "c", tn)
	s.Observe(1, "a", tn)
	s.Observe(2, "b", tn)

	labels := s.Labels(tn)
	if len(labels) != 3 {
		t.Fatalf("expected 3 labels, got %d", len(labels))
	}
	for i, want := range []int{1, 2, 3} {
		if labels[i].Hop != want {
			t.Errorf("labels[%d].Hop = %d, want %d", i, labels[i].Hop, want)
		}
	}
}
