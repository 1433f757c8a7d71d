// Package supervisor keeps one monitor worker alive per configured target.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mtrwatch/internal/config"
	"mtrwatch/internal/logging"
	"mtrwatch/internal/metrics"
)

// WorkerFunc is one monitor worker's entrypoint. It must return only when
// ctx is cancelled or the worker has failed.
type WorkerFunc func(ctx context.Context, target config.Target, settings *config.Settings)

// worker is the handle for one running monitor goroutine.
type worker struct {
	target    config.Target
	runID     string
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

func (w *worker) dead() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Supervisor reconciles the set of running workers against the targets file
// on a fixed interval and restarts everything when the settings file changes.
type Supervisor struct {
	settingsPath string
	schemaPath   string
	run          WorkerFunc

	mu       sync.Mutex
	workers  map[string]*worker
	retryAt  map[string]time.Time // crashed targets held back until this instant
	settings *config.Settings
	lastMod  time.Time
}

// New creates a supervisor. settings is the already-loaded configuration the
// first generation of workers runs with.
func New(settingsPath, schemaPath string, settings *config.Settings, run WorkerFunc) *Supervisor {
	return &Supervisor{
		settingsPath: settingsPath,
		schemaPath:   schemaPath,
		run:          run,
		workers:      map[string]*worker{},
		retryAt:      map[string]time.Time{},
		settings:     settings,
		lastMod:      config.ModTime(settingsPath),
	}
}

// Run reconciles until ctx is cancelled, then shuts every worker down.
func (s *Supervisor) Run(ctx context.Context) {
	log := logging.FromContext(ctx)
	interval := s.reconcileInterval()
	log.Info("supervisor started", "reconcile_interval", interval, "targets_file", s.settings.TargetsFile)

	s.pass(ctx, log)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pass(ctx, log)
			// A settings reload may have changed the reconcile cadence.
			if next := s.reconcileInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		case <-ctx.Done():
			log.Info("supervisor stopping")
			s.StopAll(log)
			return
		}
	}
}

// pass runs one iteration: settings watch, then reconciliation. Errors are
// logged and retried next pass; a pass never kills the supervisor.
func (s *Supervisor) pass(ctx context.Context, log *slog.Logger) {
	if mod := config.ModTime(s.settingsPath); !mod.Equal(s.lastMod) && !mod.IsZero() {
		s.lastMod = mod
		s.restartAll(ctx, log)
	}
	if err := s.Reconcile(ctx, log); err != nil {
		log.Error("reconciliation pass failed", "err", err)
	}
}

// Reconcile makes the running worker set match the targets file: starts
// additions, stops removals, and restarts workers that died. Running it
// again with an unchanged target set performs no action.
func (s *Supervisor) Reconcile(ctx context.Context, log *slog.Logger) error {
	targets, err := config.LoadTargets(s.settings.TargetsFile, log)
	if err != nil {
		return err
	}

	desired := make(map[string]config.Target)
	for _, t := range targets {
		if !t.Paused {
			desired[t.IP] = t
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Collect the dead before diffing so a crashed worker is restarted as
	// though its target were newly added. The backoff is tracked as a
	// not-before instant rather than a sleep so the lock is never held idle.
	backoff := time.Duration(s.settings.Controller.RestartBackoffSeconds) * time.Second
	now := time.Now()
	for ip, w := range s.workers {
		if w.dead() {
			log.Warn("worker exited unexpectedly", "target", ip, "run_id", w.runID)
			delete(s.workers, ip)
			if _, still := desired[ip]; still {
				metrics.ObserveReconcileAction("restart")
				s.retryAt[ip] = now.Add(backoff)
			}
		}
	}

	for ip, t := range desired {
		if _, ok := s.workers[ip]; ok {
			continue
		}
		if until, held := s.retryAt[ip]; held && now.Before(until) {
			continue
		}
		delete(s.retryAt, ip)
		s.startLocked(ctx, t, log)
	}
	for ip := range s.workers {
		if _, ok := desired[ip]; !ok {
			s.stopLocked(ip, log)
		}
	}

	metrics.SetWorkersRunning(len(s.workers))
	return nil
}

// restartAll forces every worker through stop and start so settings changes
// take effect, with a grace delay to let terminations land.
func (s *Supervisor) restartAll(ctx context.Context, log *slog.Logger) {
	log.Info("settings file changed, restarting all workers")
	s.StopAll(log)
	sleepCtx(ctx, time.Duration(s.settings.Controller.RestartGraceSeconds)*time.Second)

	if reloaded, err := config.Load(s.settingsPath, s.schemaPath); err != nil {
		log.Error("settings reload failed, keeping previous settings", "err", err)
	} else {
		s.mu.Lock()
		s.settings = reloaded
		s.mu.Unlock()
	}
	// The following Reconcile starts the new generation.
}

// StopAll terminates every worker and waits briefly for each to exit.
func (s *Supervisor) StopAll(log *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ip := range s.workers {
		s.stopLocked(ip, log)
	}
	metrics.SetWorkersRunning(0)
}

func (s *Supervisor) startLocked(ctx context.Context, t config.Target, log *slog.Logger) {
	wctx, cancel := context.WithCancel(ctx)
	w := &worker{
		target:    t,
		runID:     uuid.New().String(),
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	settings := s.settings
	go func() {
		defer close(w.done)
		defer func() {
			// A panic stays isolated to this target; the next pass restarts it.
			if r := recover(); r != nil {
				log.Error("worker panicked", "target", t.IP, "panic", r)
			}
		}()
		s.run(wctx, t, settings)
	}()
	s.workers[t.IP] = w
	metrics.ObserveReconcileAction("start")
	log.Info("started monitor", "target", t.IP, "run_id", w.runID)
}

// stopLocked sends a best-effort termination and drops the worker from
// tracking regardless of whether it exits in time.
func (s *Supervisor) stopLocked(ip string, log *slog.Logger) {
	w, ok := s.workers[ip]
	if !ok {
		return
	}
	w.cancel()
	select {
	case <-w.done:
	case <-time.After(5 * time.Second):
		log.Warn("worker did not exit in time, dropping from tracking", "target", ip)
	}
	delete(s.workers, ip)
	metrics.ObserveReconcileAction("stop")
	log.Info("stopped monitor", "target", ip, "run_id", w.runID)
}

// WorkerStatus is a point-in-time view of one worker for the admin API.
type WorkerStatus struct {
	Target      string    `json:"target"`
	Description string    `json:"description,omitempty"`
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	Running     bool      `json:"running"`
}

// Snapshot lists all tracked workers.
func (s *Supervisor) Snapshot() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, WorkerStatus{
			Target:      w.target.IP,
			Description: w.target.Description,
			RunID:       w.runID,
			StartedAt:   w.startedAt,
			Running:     !w.dead(),
		})
	}
	return out
}

// WorkerCount returns the number of tracked workers.
func (s *Supervisor) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// reconcileInterval reads the current reconcile cadence under the lock so a
// settings reload takes effect on the running ticker.
func (s *Supervisor) reconcileInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.settings.Controller.ReconcileSeconds) * time.Second
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
