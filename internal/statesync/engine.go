// internal/statesync/engine.go
package statesync

import (
	"context"
	"sync"
	"time"

	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/transport"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFastInterval = 700 * time.Millisecond
	DefaultSlowInterval = 1200 * time.Millisecond
)

// Fetcher asks the server for the state newer than sinceVersion.
type Fetcher interface {
	GetState(ctx context.Context, sinceVersion int64) (*models.StateSnapshot, error)
}

// Config wires an Engine.
type Config struct {
	// ViewerID is the local user; polling speeds up while it holds the turn.
	ViewerID string
	Fast     time.Duration
	Slow     time.Duration
	Clock    clockwork.Clock
	Logger   *logrus.Entry

	// OnSnapshot receives every snapshot that advanced or replaced the view.
	// notModified replies never reach it.
	OnSnapshot func(*models.StateSnapshot)
	// OnError receives refresh failures from the background loop.
	OnError func(error)
}

// Engine keeps a monotonic state cursor and polls the server on an adaptive interval.
type Engine struct {
	fetch Fetcher
	cfg   Config
	log   *logrus.Entry

	// refreshMu serializes refreshes so the cursor is only read at the start
	// and written at the end of one request.
	refreshMu sync.Mutex
	// publishMu spans applying a snapshot and handing it to OnSnapshot, so
	// Stop cannot return while a publish is in progress.
	publishMu sync.Mutex

	mu       sync.Mutex
	version  int64
	snapshot *models.StateSnapshot
	interval time.Duration
	timer    clockwork.Timer
	gen      uint64
	running  bool
	loopCtx  context.Context
	cancel   context.CancelFunc
}

// New builds an engine with a zero cursor.
func New(fetch Fetcher, cfg Config) *Engine {
	if cfg.Fast <= 0 {
		cfg.Fast = DefaultFastInterval
	}
	if cfg.Slow <= 0 {
		cfg.Slow = DefaultSlowInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		fetch:    fetch,
		cfg:      cfg,
		log:      cfg.Logger.WithField("component", "statesync"),
		interval: cfg.Slow,
	}
}

// Version is the live cursor.
func (e *Engine) Version() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Snapshot is the last accepted snapshot, or nil before the first one.
func (e *Engine) Snapshot() *models.StateSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// Interval is the delay that will be used for the next scheduled refresh.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// Refresh fetches the state newer than the cursor. It returns the snapshot now
// held by the engine, which is the previous one on a notModified reply. A reply
// that arrives after ctx is cancelled is discarded.
func (e *Engine) Refresh(ctx context.Context) (*models.StateSnapshot, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	since := e.Version()
	snap, err := e.fetch.GetState(ctx, since)
	if err != nil {
		return nil, err
	}

	e.publishMu.Lock()
	defer e.publishMu.Unlock()

	e.mu.Lock()
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		e.log.WithField("since", since).Debug("discarding state reply after cancel")
		return nil, err
	}
	if snap.NotModified {
		held := e.snapshot
		e.mu.Unlock()
		e.log.WithField("version", since).Trace("state not modified")
		return held, nil
	}
	if snap.StateVersion != 0 && snap.StateVersion < e.version {
		held, current := e.snapshot, e.version
		e.mu.Unlock()
		e.log.WithFields(logrus.Fields{
			"version": current,
			"got":     snap.StateVersion,
		}).Debug("dropping stale snapshot")
		return held, nil
	}
	if snap.StateVersion > e.version {
		e.version = snap.StateVersion
	}
	e.snapshot = snap
	version := e.version
	e.mu.Unlock()

	e.log.WithField("version", version).Debug("state advanced")
	if e.cfg.OnSnapshot != nil {
		e.cfg.OnSnapshot(snap)
	}
	return snap, nil
}

// Resync refreshes immediately and, when the loop is running, restarts the
// countdown to the next tick from now.
func (e *Engine) Resync(ctx context.Context) error {
	snap, err := e.Refresh(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	running := e.running
	if running {
		e.interval = e.intervalFor(snap)
	}
	e.mu.Unlock()
	if running {
		e.schedule()
	}
	return nil
}

// Start begins the polling loop with an immediate refresh.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.loopCtx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	e.log.Info("state sync started")
	go e.tick()
}

// Stop cancels the pending timer and any in-flight refresh. No tick fires and
// no loop snapshot is published after Stop returns. The cursor and snapshot
// are kept. Stop must not be called from OnSnapshot.
func (e *Engine) Stop() {
	e.publishMu.Lock()
	defer e.publishMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.gen++
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.cancel()
	e.log.Info("state sync stopped")
}

// Dispose stops the loop and forgets all state.
func (e *Engine) Dispose() {
	e.Stop()
	e.mu.Lock()
	e.version = 0
	e.snapshot = nil
	e.interval = e.cfg.Slow
	e.mu.Unlock()
}

func (e *Engine) tick() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	ctx := e.loopCtx
	e.mu.Unlock()

	snap, err := e.Refresh(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		e.log.WithError(err).WithField("kind", transport.Classify(err)).Warn("state refresh failed")
		if e.cfg.OnError != nil {
			e.cfg.OnError(err)
		}
	} else {
		e.mu.Lock()
		e.interval = e.intervalFor(snap)
		e.mu.Unlock()
	}
	e.schedule()
}

// intervalFor picks the fast cadence while the viewer is expected to act.
func (e *Engine) intervalFor(snap *models.StateSnapshot) time.Duration {
	if snap.ViewerHasTurn(e.cfg.ViewerID) {
		return e.cfg.Fast
	}
	return e.cfg.Slow
}

// schedule replaces the pending timer with one firing after the current interval.
func (e *Engine) schedule() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	gen := e.gen
	e.timer = e.cfg.Clock.AfterFunc(e.interval, func() {
		e.mu.Lock()
		stale := gen != e.gen || !e.running
		e.mu.Unlock()
		if stale {
			return
		}
		e.tick()
	})
}
