// Package probe runs one mtr pass against a target and normalizes the result.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"time"
)

// HopSample is one hop within one probe cycle. Index 0 is the local
// interface and is excluded from storage and labeling downstream.
type HopSample struct {
	Index   int     `json:"count"`
	Host    string  `json:"host"`
	LossPct float64 `json:"loss"`
	AvgMs   float64 `json:"avg"`
	BestMs  float64 `json:"best"`
	LastMs  float64 `json:"last"`
}

// Cycle is the ordered hop list of one probe pass.
type Cycle []HopSample

// Hosts returns the ordered hop host sequence.
func (c Cycle) Hosts() []string {
	hosts := make([]string, len(c))
	for i, h := range c {
		hosts[i] = h.Host
	}
	return hosts
}

// Prober produces one probe cycle for a target. A failed or timed-out probe
// is reported as an empty cycle with the underlying error; it never panics
// past this boundary.
type Prober interface {
	Probe(ctx context.Context, target, sourceIP string) (Cycle, error)
}

// MTRProber executes the mtr binary with --json output.
type MTRProber struct {
	Binary            string  // defaults to "mtr"
	PacketsPerCycle   int     // -c
	PerPacketInterval float64 // -i, seconds
	ResolveDNS        bool    // adds -n when false
	Timeout           time.Duration
}

// NewMTRProber returns a prober with the given knobs applied over defaults.
func NewMTRProber(packets int, interval float64, resolveDNS bool, timeout time.Duration) *MTRProber {
	if packets <= 0 {
		packets = 10
	}
	if interval <= 0 {
		interval = 1.0
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &MTRProber{
		Binary:            "mtr",
		PacketsPerCycle:   packets,
		PerPacketInterval: interval,
		ResolveDNS:        resolveDNS,
		Timeout:           timeout,
	}
}

// Probe runs a single mtr pass. The continuous loop lives in the monitor so
// settings can change between cycles.
func (p *MTRProber) Probe(ctx context.Context, target, sourceIP string) (Cycle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary(), p.args(target, sourceIP)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := firstLine(stderr.Bytes())
		if msg != "" {
			return nil, fmt.Errorf("mtr %s: %w: %s", target, err, msg)
		}
		return nil, fmt.Errorf("mtr %s: %w", target, err)
	}
	return ParseReport(stdout.Bytes())
}

func (p *MTRProber) binary() string {
	if p.Binary == "" {
		return "mtr"
	}
	return p.Binary
}

// args builds the mtr command line. --report is deliberately avoided; some
// mtr builds emit non-JSON when it is present.
func (p *MTRProber) args(target, sourceIP string) []string {
	args := []string{"--json", "-c", strconv.Itoa(p.PacketsPerCycle)}
	if !p.ResolveDNS {
		args = append(args, "-n")
	}
	if p.PerPacketInterval != 1.0 {
		args = append(args, "-i", strconv.FormatFloat(p.PerPacketInterval, 'f', -1, 64))
	}
	if sourceIP != "" {
		if ip := net.ParseIP(sourceIP); ip != nil {
			if ip.To4() != nil {
				args = append([]string{"-4"}, args...)
			} else {
				args = append([]string{"-6"}, args...)
			}
		}
		args = append(args, "--address", sourceIP)
	}
	return append(args, target)
}

func firstLine(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}
