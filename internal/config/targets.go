package config

import (
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target is one monitored destination. Identity is the IP.
type Target struct {
	IP          string `yaml:"ip"`
	SourceIP    string `yaml:"source_ip"`
	Description string `yaml:"description"`
	Paused      bool   `yaml:"paused"`
}

type targetsFile struct {
	Targets []yaml.Node `yaml:"targets"`
}

// LoadTargets reads the targets YAML. Malformed entries are skipped with a
// log line; they never fail the whole load. A missing file yields an empty
// list so the supervisor simply winds every worker down.
func LoadTargets(path string, log *slog.Logger) ([]Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tf targetsFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, err
	}

	out := make([]Target, 0, len(tf.Targets))
	for i, node := range tf.Targets {
		var t Target
		if err := node.Decode(&t); err != nil {
			log.Warn("skipping malformed target entry", "index", i, "err", err)
			continue
		}
		t.IP = strings.TrimSpace(t.IP)
		if t.IP == "" {
			log.Warn("skipping target without ip", "index", i)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// ActiveIPs returns the IPs of all non-paused targets.
func ActiveIPs(targets []Target) []string {
	var ips []string
	for _, t := range targets {
		if !t.Paused {
			ips = append(ips, t.IP)
		}
	}
	return ips
}
