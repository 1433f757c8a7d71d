package probe

import (
	"encoding/json"
	"fmt"
)

// report mirrors the shape of `mtr --json` output.
type report struct {
	Report struct {
		Hubs []hub `json:"hubs"`
	} `json:"report"`
}

// hub keeps the raw fields loose; mtr emits numbers but older builds have
// been seen quoting them.
type hub struct {
	Host string          `json:"host"`
	Loss json.RawMessage `json:"Loss%"`
	Avg  json.RawMessage `json:"Avg"`
	Best json.RawMessage `json:"Best"`
	Last json.RawMessage `json:"Last"`
}

// ParseReport converts raw mtr JSON into a normalized hop list. Hops are
// renumbered 0-based in report order; consumers skip index 0.
func ParseReport(data []byte) (Cycle, error) {
	var r report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse mtr output: %w", err)
	}

	cycle := make(Cycle, 0, len(r.Report.Hubs))
	for i, h := range r.Report.Hubs {
		host := h.Host
		if host == "" {
			host = fmt.Sprintf("hop%d", i)
		}
		cycle = append(cycle, HopSample{
			Index:   i,
			Host:    host,
			LossPct: looseFloat(h.Loss),
			AvgMs:   looseFloat(h.Avg),
			BestMs:  looseFloat(h.Best),
			LastMs:  looseFloat(h.Last),
		})
	}
	return cycle, nil
}

// looseFloat accepts a JSON number or a quoted number, defaulting to 0.
func looseFloat(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if _, err := fmt.Sscanf(s, "%g", &f); err == nil {
			return f
		}
	}
	return 0
}
