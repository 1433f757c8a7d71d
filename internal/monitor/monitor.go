// Package monitor runs the per-target probe/detect/persist loop.
package monitor

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"mtrwatch/internal/config"
	"mtrwatch/internal/logging"
	"mtrwatch/internal/metrics"
	"mtrwatch/internal/probe"
	"mtrwatch/internal/severity"
	"mtrwatch/internal/sink"
	"mtrwatch/internal/store"
	"mtrwatch/internal/trace"
)

// Monitor probes one target on a fixed interval, detects path and loss
// changes, and persists samples. One Monitor is the sole writer for its
// target's series and label artifacts.
type Monitor struct {
	target   config.Target
	interval time.Duration
	tuning   trace.Tuning

	prober probe.Prober
	store  *store.Store
	book   *trace.Book
	engine *severity.Engine
	export sink.RowWriter // optional; nil disables export

	// previous successful cycle; empty cycles leave these untouched
	prevHosts []string
	prevLoss  map[int]float64
}

// New wires a monitor for one target. export may be nil.
func New(target config.Target, s *config.Settings, prober probe.Prober, st *store.Store, book *trace.Book, export sink.RowWriter) *Monitor {
	rules := make([]severity.Rule, len(s.SeverityRules))
	for i, r := range s.SeverityRules {
		rules[i] = severity.Rule{Match: r.Match, Tag: r.Tag, Level: r.Level}
	}
	return &Monitor{
		target:   target,
		interval: s.Interval(),
		tuning: trace.Tuning{
			Window:            s.Labels.MajorityWindow,
			StickyMinWins:     s.Labels.StickyMinWins,
			UnstableThreshold: s.Labels.UnstableThreshold,
			TopKToShow:        s.Labels.TopKToShow,
			ResetMode:         s.Labels.ResetMode,
		},
		prober:   prober,
		store:    st,
		book:     book,
		engine:   severity.NewEngine(rules),
		export:   export,
		prevLoss: map[int]float64{},
	}
}

// Run executes cycles until ctx is cancelled. An in-flight probe completes
// or times out naturally; cancellation is only acted on between cycles.
func (m *Monitor) Run(ctx context.Context) {
	log := logging.FromContext(ctx).With("target", m.target.IP)
	log.Info("monitoring loop started", "interval", m.interval)

	m.Cycle(ctx, log)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Cycle(ctx, log)
		case <-ctx.Done():
			log.Info("monitoring loop stopped")
			return
		}
	}
}

// Cycle runs one probe pass and folds the result into store, labels, and
// severity logging. A cycle with no data is transparent: it is logged and
// retried next interval, and the remembered previous state is preserved.
func (m *Monitor) Cycle(ctx context.Context, log *slog.Logger) {
	cycle, err := m.prober.Probe(ctx, m.target.IP, m.target.SourceIP)
	if err != nil || len(cycle) == 0 {
		log.Warn("probe returned no data, target unreachable or command failed", "err", err)
		metrics.ObserveCycle(m.target.IP, metrics.OutcomeNoData)
		return
	}
	metrics.ObserveCycle(m.target.IP, metrics.OutcomeOK)
	now := time.Now()

	currHosts := cycle.Hosts()
	hopPathChanged := pathChanged(m.prevHosts, currHosts)
	currLoss := lossState(cycle)
	lossStateChanged := lossChanged(m.prevLoss, currLoss)

	if hopPathChanged {
		metrics.ObserveChange(m.target.IP, "path")
		m.logPathChanges(log, currHosts)
	}
	if lossStateChanged {
		metrics.ObserveChange(m.target.IP, "loss")
		m.logLossChanges(log, currLoss, hopPathChanged)
	}

	// Samples are stored every cycle, change or not.
	if err := m.store.Append(m.target.IP, now, cycle); err != nil {
		log.Error("series write failed", "err", err)
		metrics.ObserveStoreFailure(m.target.IP)
	}

	if hopPathChanged || lossStateChanged {
		m.updateLabels(log, cycle, currHosts, hopPathChanged)
	} else {
		log.Debug("no change detected", "hops", len(cycle))
	}

	if m.export != nil {
		if err := sink.WriteAll(m.export, exportRows(m.target.IP, cycle, now)); err != nil {
			log.Error("export write failed", "err", err)
		}
	}

	m.prevHosts = currHosts
	m.prevLoss = currLoss
}

func (m *Monitor) logPathChanges(log *slog.Logger, currHosts []string) {
	added := len(currHosts) > len(m.prevHosts)
	removed := len(currHosts) < len(m.prevHosts)
	for _, ch := range changedHops(m.prevHosts, currHosts) {
		tag, level, ok := m.engine.Evaluate(severity.Context{
			"hop_changed": true,
			"hop_added":   added,
			"hop_removed": removed,
		})
		args := []any{"hop", ch.Index, "from", orNone(ch.Old), "to", orNone(ch.New)}
		if ok {
			args = append(args, "tag", tag)
			log.Log(context.Background(), logging.ParseLevel(level), "hop changed", args...)
		} else {
			log.Info("hop changed", args...)
		}
	}
}

func (m *Monitor) logLossChanges(log *slog.Logger, currLoss map[int]float64, hopPathChanged bool) {
	hops := make([]int, 0, len(currLoss))
	for hop := range currLoss {
		hops = append(hops, hop)
	}
	sort.Ints(hops)
	for _, hop := range hops {
		loss := currLoss[hop]
		prev := m.prevLoss[hop]
		tag, level, ok := m.engine.Evaluate(severity.Context{
			"loss":        loss,
			"prev_loss":   prev,
			"hop_changed": hopPathChanged,
		})
		args := []any{"hop", hop, "loss_pct", loss, "prev_loss_pct", prev}
		switch {
		case ok:
			args = append(args, "tag", tag)
			log.Log(context.Background(), logging.ParseLevel(level), "hop loss", args...)
		case loss > 0:
			log.Warn("hop loss", args...)
		default:
			log.Info("hop loss", args...)
		}
	}
}

// updateLabels applies the reset policy, folds the cycle into the rolling
// stats, and rewrites all label artifacts. I/O failures here are logged and
// never interrupt the cycle.
func (m *Monitor) updateLabels(log *slog.Logger, cycle probe.Cycle, currHosts []string, hopPathChanged bool) {
	// The first cycle after a (re)start has no previous path; applying the
	// reset policy there would discard the persisted stability.
	if hopPathChanged && len(m.prevHosts) > 0 {
		if first, ok := trace.FirstDiff(m.prevHosts, currHosts); ok {
			m.book.Stats.Reset(first, m.tuning)
		}
	}
	for _, h := range cycle {
		m.book.Stats.Observe(h.Index, h.Host, m.tuning)
	}
	if err := m.book.SaveStats(); err != nil {
		log.Error("saving hop stats failed", "err", err)
	}
	if err := m.book.WriteLabels(m.tuning); err != nil {
		log.Error("writing hop labels failed", "err", err)
	}
	if err := m.book.WriteSnapshot(cycle); err != nil {
		log.Error("writing trace snapshot failed", "err", err)
	}
	log.Debug("trace and hop labels saved", "hops", len(cycle))
}

func exportRows(target string, cycle probe.Cycle, ts time.Time) []sink.PathRow {
	rows := make([]sink.PathRow, 0, len(cycle))
	for _, h := range cycle {
		if h.Index < 1 {
			continue
		}
		rows = append(rows, sink.PathRow{
			Target:    target,
			Hop:       h.Index,
			Host:      h.Host,
			LossPct:   h.LossPct,
			AvgMs:     h.AvgMs,
			BestMs:    h.BestMs,
			LastMs:    h.LastMs,
			Timestamp: ts,
		})
	}
	return rows
}

func orNone(host string) string {
	if host == "" {
		return "(none)"
	}
	return host
}
