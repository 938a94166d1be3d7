// Package detector polls the applet server for remote changes. Each cycle
// probes both resources with HEAD requests and triggers a reload when either
// version marker moves.
package detector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

// DefaultInterval is the polling period used when Options.Interval is unset
const DefaultInterval = 333 * time.Millisecond

// Prober reads version markers without downloading payloads.
// *client.Client satisfies it.
type Prober interface {
	ProbeStorage(ctx context.Context, id types.AppletID) (string, error)
	ProbeContent(ctx context.Context, id types.AppletID) (string, error)
}

// ReloadFunc refetches and re-renders the applet. It handles its own errors.
type ReloadFunc func(ctx context.Context)

// Options tunes the detector
type Options struct {
	// Interval is the polling frequency. Default: 333ms.
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *monitoring.SyncMetrics
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Detector tracks the last-known markers of one applet. It is safe for
// concurrent use; Run must not be called concurrently with itself.
type Detector struct {
	prober Prober
	reload ReloadFunc
	opts   Options

	mu      sync.Mutex
	id      types.AppletID
	markers types.Markers

	checks   atomic.Int64
	changes  atomic.Int64
	errors   atomic.Int64
	reloads  atomic.Int64
	reloadNs atomic.Int64
}

// Stats are point-in-time counters
type Stats struct {
	Checks          int64         `json:"checks"`
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Reloads         int64         `json:"reloads"`
	AvgReloadTime   time.Duration `json:"avg_reload_time"`
}

// New creates a detector. Call Track before the first check.
func New(prober Prober, reload ReloadFunc, opts Options) *Detector {
	opts.defaults()
	return &Detector{prober: prober, reload: reload, opts: opts}
}

// Track sets the applet being watched and its last-known markers
func (d *Detector) Track(id types.AppletID, markers types.Markers) {
	d.mu.Lock()
	d.id = id
	d.markers = markers
	d.mu.Unlock()
}

// Target returns the watched applet and its last-known markers
func (d *Detector) Target() (types.AppletID, types.Markers) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.id, d.markers
}

// Markers returns the last-known markers
func (d *Detector) Markers() types.Markers {
	_, m := d.Target()
	return m
}

// Stats returns the current counters
func (d *Detector) Stats() Stats {
	s := Stats{
		Checks:          d.checks.Load(),
		ChangesDetected: d.changes.Load(),
		Errors:          d.errors.Load(),
		Reloads:         d.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(d.reloadNs.Load() / s.Reloads)
	}
	return s
}

// Run blocks until ctx is cancelled, checking once per interval. Probe
// failures are logged and the cycle is skipped.
func (d *Detector) Run(ctx context.Context) {
	log := d.opts.Logger
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	log.Debug("Change detector started", zap.Duration("interval", d.opts.Interval))

	for {
		select {
		case <-ctx.Done():
			log.Debug("Change detector stopped")
			return
		case <-ticker.C:
			if _, err := d.Check(ctx); err != nil && ctx.Err() == nil {
				log.Warn("Change probe failed", zap.Error(err))
			}
		}
	}
}

// Check runs one probe cycle and reports whether a reload was triggered.
// Markers are only touched when both probes succeed.
func (d *Detector) Check(ctx context.Context) (bool, error) {
	d.checks.Add(1)

	id, known := d.Target()
	if id == "" {
		return false, nil
	}

	var next types.Markers
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		marker, err := d.prober.ProbeStorage(gctx, id)
		if err != nil {
			return fmt.Errorf("probe storage: %w", err)
		}
		next.Storage = marker
		return nil
	})
	g.Go(func() error {
		marker, err := d.prober.ProbeContent(gctx, id)
		if err != nil {
			return fmt.Errorf("probe content: %w", err)
		}
		next.Content = marker
		return nil
	})

	err := g.Wait()
	d.opts.Metrics.RecordProbe(err)
	if err != nil {
		d.errors.Add(1)
		return false, err
	}

	if !Changed(known, next) || !d.adopt(id, known, next) {
		return false, nil
	}

	d.changes.Add(1)
	d.opts.Metrics.IncChanges()
	d.opts.Logger.Info("Remote change detected",
		zap.String("applet", id.String()),
		zap.String("storage", next.Storage),
		zap.String("content", next.Content),
	)

	start := time.Now()
	d.reload(ctx)
	d.reloads.Add(1)
	d.reloadNs.Add(time.Since(start).Nanoseconds())
	return true, nil
}

// adopt replaces the markers unless a reload or a new applet moved them
// while the probes were in flight
func (d *Detector) adopt(id types.AppletID, known, next types.Markers) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.id != id || d.markers != known {
		return false
	}
	d.markers = next
	return true
}

// Changed reports whether either fresh marker is non-empty and differs from
// the last-known one
func Changed(known, fresh types.Markers) bool {
	return (fresh.Storage != "" && fresh.Storage != known.Storage) ||
		(fresh.Content != "" && fresh.Content != known.Content)
}
