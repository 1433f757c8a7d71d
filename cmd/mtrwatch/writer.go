package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mtrwatch/internal/config"
	"mtrwatch/internal/monitor"
	"mtrwatch/internal/probe"
	"mtrwatch/internal/sink"
	"mtrwatch/internal/store"
	"mtrwatch/internal/supervisor"
	"mtrwatch/internal/trace"
)

// newStore builds the time-series store from settings.
func newStore(s *config.Settings) *store.Store {
	specs := make([]store.ArchiveSpec, len(s.Store.Archives))
	for i, a := range s.Store.Archives {
		specs[i] = store.ArchiveSpec{
			Step: time.Duration(a.StepSeconds) * time.Second,
			Rows: a.Rows,
		}
	}
	schema := store.Schema{MaxHops: s.MaxHops, Metrics: s.Store.Metrics}
	return store.New(s.Paths.Data, schema, specs)
}

// newExportWriter sets up the optional row export stack: a JSONL file when
// logFile is given, and GreptimeDB when an endpoint is configured (the
// GREPTIMEDB_ENDPOINT env var overrides settings). Returns nil when neither
// is configured; export is entirely optional.
func newExportWriter(s *config.Settings, logFile string, log *slog.Logger) (sink.RowWriter, func(), error) {
	cleanup := func() {}

	endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
	if endpoint == "" {
		endpoint = s.Sink.Endpoint
	}

	var writers []sink.RowWriter
	if endpoint != "" {
		gw, err := sink.NewGreptimeWriter(endpoint, s.Sink.Database, s.Sink.Table, log)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, gw)
	}
	if logFile != "" {
		fw, err := sink.NewFileWriter(logFile)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
		cleanup = func() { fw.Close() }
	}

	switch len(writers) {
	case 0:
		return nil, cleanup, nil
	case 1:
		return writers[0], cleanup, nil
	default:
		return sink.NewMultiWriter(writers...), cleanup, nil
	}
}

// newWorkerFunc returns the supervisor's per-target worker entrypoint.
func newWorkerFunc(st *store.Store, export sink.RowWriter, log *slog.Logger) supervisor.WorkerFunc {
	return func(ctx context.Context, target config.Target, s *config.Settings) {
		runMonitor(ctx, target, s, st, export, log)
	}
}

// runMonitor wires and runs one monitor loop. A failure to open artifacts is
// logged and the worker exits; the supervisor retries on a later pass.
func runMonitor(ctx context.Context, target config.Target, s *config.Settings, st *store.Store, export sink.RowWriter, log *slog.Logger) {
	book, err := trace.Open(s.Paths.Traceroute, target.IP)
	if err != nil {
		log.Error("cannot open trace artifacts", "target", target.IP, "err", err)
		return
	}
	prober := probe.NewMTRProber(s.MTR.PacketsPerCycle, s.MTR.PerPacketInterval, s.MTR.ResolveDNS, s.ProbeTimeout())
	monitor.New(target, s, prober, st, book, export).Run(ctx)
}

// lockPath is the single-writer lock guarding the trace artifact directory.
func lockPath(s *config.Settings) string {
	return filepath.Join(s.Paths.Traceroute, ".writer.lock")
}
