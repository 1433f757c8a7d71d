// Package trace maintains stable per-hop display labels for a target.
//
// Each monitored hop keeps a rolling tally of observed hosts. The tally is
// capped at a window size (decaying the oldest host first) and the displayed
// label only flips after the new modal host has out-voted the sticky one,
// so single-cycle route flaps do not churn the legends.
package trace

import (
	"fmt"
	"sort"
	"strings"
)

// HopStats is the rolling tally for one hop index.
type HopStats struct {
	Tally  map[string]int `json:"tally"`
	Order  []string       `json:"order"` // distinct hosts, oldest first
	Sticky string         `json:"sticky"`
	Wins   int            `json:"wins"`
}

// Stats maps hop index (>=1) to its rolling tally.
type Stats map[int]*HopStats

// Tuning holds the stabilizer knobs.
type Tuning struct {
	Window            int     // soft cap on total samples kept per hop
	StickyMinWins     int     // hysteresis: wins required before the label flips
	UnstableThreshold float64 // top share below this renders "varies (...)"
	TopKToShow        int     // hosts listed inside "varies (...)"
	ResetMode         string  // none | all | from_first_diff
}

// DefaultTuning mirrors the documented defaults.
func DefaultTuning() Tuning {
	return Tuning{
		Window:            200,
		StickyMinWins:     3,
		UnstableThreshold: 0.45,
		TopKToShow:        3,
		ResetMode:         "from_first_diff",
	}
}

// Observe folds one host observation for one hop into the stats. hop < 1 is
// ignored (index 0 is the local interface).
func (s Stats) Observe(hop int, host string, t Tuning) {
	if hop < 1 || host == "" {
		return
	}
	hs := s[hop]
	if hs == nil {
		hs = &HopStats{Tally: map[string]int{}}
		s[hop] = hs
	}
	hs.observe(host, t)
}

func (h *HopStats) observe(host string, t Tuning) {
	if h.Tally == nil {
		h.Tally = map[string]int{}
	}
	if _, seen := h.Tally[host]; !seen {
		h.Order = append(h.Order, host)
	}
	h.Tally[host]++

	h.decay(t.Window)

	modal := h.modal()
	switch {
	case h.Sticky == "":
		h.Sticky = modal
		h.Wins = 1
	case modal == h.Sticky:
		if h.Wins < t.StickyMinWins {
			h.Wins++
		}
	default:
		h.Wins--
		if h.Wins <= 0 {
			h.Sticky = modal
			h.Wins = 1
		}
	}
}

// decay removes one occurrence from the oldest-inserted host once the total
// exceeds the window, evicting the host entirely when it reaches zero.
func (h *HopStats) decay(window int) {
	if window <= 0 {
		return
	}
	total := 0
	for _, c := range h.Tally {
		total += c
	}
	if total <= window {
		return
	}
	for i, host := range h.Order {
		if h.Tally[host] <= 0 {
			continue
		}
		h.Tally[host]--
		if h.Tally[host] == 0 {
			delete(h.Tally, host)
			h.Order = append(h.Order[:i:i], h.Order[i+1:]...)
		}
		return
	}
}

// modal returns the highest-tally host; ties break toward the first-inserted.
func (h *HopStats) modal() string {
	best, bestCount := "", -1
	for _, host := range h.Order {
		if c := h.Tally[host]; c > bestCount {
			best, bestCount = host, c
		}
	}
	return best
}

// Label renders the display label for this hop's stats.
func (h *HopStats) Label(t Tuning) string {
	type entry struct {
		host  string
		count int
	}
	items := make([]entry, 0, len(h.Tally))
	total := 0
	for _, host := range h.Order {
		c := h.Tally[host]
		if c <= 0 {
			continue
		}
		items = append(items, entry{host, c})
		total += c
	}
	if total == 0 {
		return ""
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].count > items[j].count })

	share := float64(items[0].count) / float64(total)
	if share < t.UnstableThreshold && len(items) >= 2 {
		k := t.TopKToShow
		if k <= 0 || k > len(items) {
			k = len(items)
		}
		hosts := make([]string, k)
		for i := 0; i < k; i++ {
			hosts[i] = items[i].host
		}
		return fmt.Sprintf("varies (%s)", strings.Join(hosts, ", "))
	}
	if h.Sticky != "" {
		return h.Sticky
	}
	return items[0].host
}

// HopLabel is one rendered label, as exported for dashboard legends.
type HopLabel struct {
	Hop   int    `json:"count"`
	Label string `json:"host"`
}

// Labels renders all hops in index order, skipping hops without samples.
func (s Stats) Labels(t Tuning) []HopLabel {
	hops := make([]int, 0, len(s))
	for hop := range s {
		if hop >= 1 {
			hops = append(hops, hop)
		}
	}
	sort.Ints(hops)

	var out []HopLabel
	for _, hop := range hops {
		if l := s[hop].Label(t); l != "" {
			out = append(out, HopLabel{Hop: hop, Label: l})
		}
	}
	return out
}

// FirstDiff returns the lowest hop index at which two host sequences differ,
// comparing index-for-index, with a length mismatch counting as a difference
// at the first index past the shorter sequence. ok is false when equal.
func FirstDiff(prev, curr []string) (hop int, ok bool) {
	n := len(prev)
	if len(curr) < n {
		n = len(curr)
	}
	for i := 0; i < n; i++ {
		if prev[i] != curr[i] {
			return i, true
		}
	}
	if len(prev) != len(curr) {
		return n, true
	}
	return 0, false
}

// Reset applies the configured reset policy after a path change. firstDiff is
// the hop index where the old and new paths first disagree.
func (s Stats) Reset(firstDiff int, t Tuning) {
	switch t.ResetMode {
	case "none":
		return
	case "all":
		for hop := range s {
			delete(s, hop)
		}
	default: // from_first_diff
		for hop := range s {
			if hop >= firstDiff {
				delete(s, hop)
			}
		}
	}
}
