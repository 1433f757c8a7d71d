package monitor

import (
	"math"

	"mtrwatch/internal/probe"
)

// HopChange is one index-for-index host substitution between two cycles.
// Old or New is empty when the hop was added or removed at the path tail.
type HopChange struct {
	Index int
	Old   string
	New   string
}

// pathChanged reports whether the ordered hop host sequence differs. Any
// insertion, removal, or substitution counts.
func pathChanged(prev, curr []string) bool {
	if len(prev) != len(curr) {
		return true
	}
	for i := range prev {
		if prev[i] != curr[i] {
			return true
		}
	}
	return false
}

// changedHops lists every index where the two host sequences disagree.
func changedHops(prev, curr []string) []HopChange {
	n := len(prev)
	if len(curr) > n {
		n = len(curr)
	}
	var out []HopChange
	for i := 0; i < n; i++ {
		var old, new string
		if i < len(prev) {
			old = prev[i]
		}
		if i < len(curr) {
			new = curr[i]
		}
		if old != new {
			out = append(out, HopChange{Index: i, Old: old, New: new})
		}
	}
	return out
}

// lossState maps hop index to loss percentage, restricted to hops >= 1 with
// nonzero loss. Values are rounded to two decimals so float jitter from the
// probe does not register as a change.
func lossState(cycle probe.Cycle) map[int]float64 {
	state := make(map[int]float64)
	for _, h := range cycle {
		if h.Index < 1 || h.LossPct <= 0 {
			continue
		}
		state[h.Index] = math.Round(h.LossPct*100) / 100
	}
	return state
}

// lossChanged compares two loss states by key set and values.
func lossChanged(prev, curr map[int]float64) bool {
	if len(prev) != len(curr) {
		return true
	}
	for hop, loss := range curr {
		if p, ok := prev[hop]; !ok || p != loss {
			return true
		}
	}
	return false
}
