package probe

import (
	"testing"
)

const sampleReport = `{
  "report": {
    "mtr": {"src": "host", "dst": "8.8.8.8"},
    "hubs": [
      {"count": 1, "host": "192.168.1.1", "Loss%": 0.0, "Last": 1.2, "Avg": 1.5, "Best": 1.0, "Wrst": 3.1, "StDev": 0.4},
      {"count": 2, "host": "10.0.0.1", "Loss%": 25.0, "Last": 8.0, "Avg": 9.5, "Best": 7.2, "Wrst": 14.0, "StDev": 1.1},
      {"count": 3, "host": "8.8.8.8", "Loss%": 0.0, "Last": 12.0, "Avg": 12.4, "Best": 11.8, "Wrst": 13.0, "StDev": 0.2}
    ]
  }
}`

func TestParseReport(t *testing.T) {
	cycle, err := ParseReport([]byte(sampleReport))
	if err != nil {
		t.Fatalf("ParseReport() returned error: %v", err)
	}
	if len(cycle) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(cycle))
	}
	// Hops are renumbered 0-based in report order.
	for i, h := range cycle {
		if h.Index != i {
			t.Errorf("hop %d: index = %d, want %d", i, h.Index, i)
		}
	}
	if cycle[1].Host != "10.0.0.1" {
		t.Errorf("hop 1 host = %q", cycle[1].Host)
	}
	if cycle[1].LossPct != 25.0 {
		t.Errorf("hop 1 loss = %v, want 25", cycle[1].LossPct)
	}
	if cycle[2].AvgMs != 12.4 || cycle[2].BestMs != 11.8 || cycle[2].LastMs != 12.0 {
		t.Errorf("hop 2 latencies = %+v", cycle[2])
	}
}

func TestParseReport_QuotedNumbers(t *testing.T) {
	raw := `{"report":{"hubs":[{"host":"a","Loss%":"12.5","Avg":"3.2"}]}}`
	cycle, err := ParseReport([]byte(raw))
	if err != nil {
		t.Fatalf("ParseReport() returned error: %v", err)
	}
	if cycle[0].LossPct != 12.5 || cycle[0].AvgMs != 3.2 {
		t.Errorf("quoted numbers not coerced: %+v", cycle[0])
	}
}

func TestParseReport_MissingHost(t *testing.T) {
	raw := `{"report":{"hubs":[{"Loss%":0},{"host":"b"}]}}`
	cycle, err := ParseReport([]byte(raw))
	if err != nil {
		t.Fatalf("ParseReport() returned error: %v", err)
	}
	if cycle[0].Host != "hop0" {
		t.Errorf("fallback host = %q, want hop0", cycle[0].Host)
	}
}

func TestParseReport_Malformed(t *testing.T) {
	if _, err := ParseReport([]byte("mtr: command output garbage")); err == nil {
		t.Fatal("expected error for non-JSON output")
	}
}

func TestHosts(t *testing.T) {
	c := Cycle{{Index: 0, Host: "a"}, {Index: 1, Host: "b"}}
	hosts := c.Hosts()
	if len(hosts) != 2 || hosts[0] != "a" || hosts[1] != "b" {
		t.Errorf("Hosts() = %v", hosts)
	}
}
