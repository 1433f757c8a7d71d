// YAML settings loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MTR holds knobs for the probe command line.
type MTR struct {
	PacketsPerCycle   int     `yaml:"packets_per_cycle"`
	PerPacketInterval float64 `yaml:"per_packet_interval"`
	ResolveDNS        bool    `yaml:"resolve_dns"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// Labels tunes the hop label stabilizer.
type Labels struct {
	ResetMode         string  `yaml:"reset_mode"`
	UnstableThreshold float64 `yaml:"unstable_threshold"`
	TopKToShow        int     `yaml:"topk_to_show"`
	MajorityWindow    int     `yaml:"majority_window"`
	StickyMinWins     int     `yaml:"sticky_min_wins"`
}

// Archive defines one retention window of the time-series store.
type Archive struct {
	StepSeconds int `yaml:"step_seconds"`
	Rows        int `yaml:"rows"`
}

// Store defines the per-target time-series schema and retention.
type Store struct {
	Metrics  []string  `yaml:"metrics"`
	Archives []Archive `yaml:"archives"`
}

// SeverityRule classifies a detected change. Match is a CUE expression over
// the event context, e.g. "loss > 50" or "hop_changed && loss > 0".
type SeverityRule struct {
	Match string `yaml:"match"`
	Tag   string `yaml:"tag"`
	Level string `yaml:"level"`
}

// Controller tunes the supervisor reconciliation loop.
type Controller struct {
	ReconcileSeconds      int `yaml:"reconcile_seconds"`
	RestartGraceSeconds   int `yaml:"restart_grace_seconds"`
	RestartBackoffSeconds int `yaml:"restart_backoff_seconds"`
}

// Paths locates the on-disk artifact directories.
type Paths struct {
	Data       string `yaml:"data"`
	Traceroute string `yaml:"traceroute"`
}

// Sink configures the optional central telemetry sink.
type Sink struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Logging configures the slog handler.
type Logging struct {
	Level string `yaml:"level"`
}

// Settings is the root configuration for the monitoring daemon.
type Settings struct {
	IntervalSeconds int            `yaml:"interval_seconds"`
	MaxHops         int            `yaml:"max_hops"`
	TargetsFile     string         `yaml:"targets_file"`
	Paths           Paths          `yaml:"paths"`
	MTR             MTR            `yaml:"mtr"`
	Labels          Labels         `yaml:"labels"`
	Store           Store          `yaml:"store"`
	SeverityRules   []SeverityRule `yaml:"severity_rules"`
	Controller      Controller     `yaml:"controller"`
	Logging         Logging        `yaml:"logging"`
	AdminListen     string         `yaml:"admin_listen"`
	Sink            Sink           `yaml:"sink"`
}

// Load loads YAML settings and validates them against a CUE schema.
// schemaPath may be empty to skip validation.
func Load(configPath, schemaPath string) (*Settings, error) {
	if schemaPath != "" {
		if err := ValidateWithCue(configPath, schemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	s.applyDefaults()
	return &s, nil
}

func (s *Settings) applyDefaults() {
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = 60
	}
	if s.MaxHops <= 0 {
		s.MaxHops = 30
	}
	if s.TargetsFile == "" {
		s.TargetsFile = "mtr_targets.yaml"
	}
	if s.Paths.Data == "" {
		s.Paths.Data = "data"
	}
	if s.Paths.Traceroute == "" {
		s.Paths.Traceroute = "traceroute"
	}
	if s.MTR.PacketsPerCycle <= 0 {
		s.MTR.PacketsPerCycle = 10
	}
	if s.MTR.PerPacketInterval <= 0 {
		s.MTR.PerPacketInterval = 1.0
	}
	if s.Labels.ResetMode == "" {
		s.Labels.ResetMode = "from_first_diff"
	}
	if s.Labels.UnstableThreshold <= 0 {
		s.Labels.UnstableThreshold = 0.45
	}
	if s.Labels.TopKToShow <= 0 {
		s.Labels.TopKToShow = 3
	}
	if s.Labels.MajorityWindow <= 0 {
		s.Labels.MajorityWindow = 200
	}
	if s.Labels.StickyMinWins <= 0 {
		s.Labels.StickyMinWins = 3
	}
	if len(s.Store.Metrics) == 0 {
		s.Store.Metrics = []string{"avg", "last", "best", "loss"}
	}
	if len(s.Store.Archives) == 0 {
		s.Store.Archives = []Archive{
			{StepSeconds: 60, Rows: 4320},
			{StepSeconds: 300, Rows: 4032},
		}
	}
	if s.Controller.ReconcileSeconds <= 0 {
		s.Controller.ReconcileSeconds = 10
	}
	if s.Controller.RestartGraceSeconds <= 0 {
		s.Controller.RestartGraceSeconds = 2
	}
	if s.Controller.RestartBackoffSeconds <= 0 {
		s.Controller.RestartBackoffSeconds = 2
	}
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
}

// Interval returns the monitoring cycle interval.
func (s *Settings) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// ProbeTimeout returns the hard timeout for one probe run. A zero/missing
// timeout_seconds falls back to max(20s, packets*interval+5s).
func (s *Settings) ProbeTimeout() time.Duration {
	if s.MTR.TimeoutSeconds > 0 {
		return time.Duration(s.MTR.TimeoutSeconds) * time.Second
	}
	auto := time.Duration(float64(s.MTR.PacketsPerCycle)*s.MTR.PerPacketInterval)*time.Second + 5*time.Second
	if auto < 20*time.Second {
		return 20 * time.Second
	}
	return auto
}

// ModTime returns the modification time of path, or the zero time if it
// cannot be read. Used by the supervisor to detect settings changes.
func ModTime(path string) time.Time {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return fi.ModTime()
}
