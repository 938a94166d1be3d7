// Package orchestrator keeps a sandboxed applet in sync with its server.
// It performs the initial load, writes storage changes back, and reloads
// whenever the change detector sees a remote modification.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/GriffinCanCode/appletsync/internal/client"
	"github.com/GriffinCanCode/appletsync/internal/detector"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/loader"
	"github.com/GriffinCanCode/appletsync/internal/sandbox"
	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

// ErrAlreadyStarted is returned by Start on a running orchestrator
var ErrAlreadyStarted = errors.New("orchestrator already started")

// API is the subset of the applet server the orchestrator talks to.
// *client.Client satisfies it.
type API interface {
	detector.Prober
	FetchStorage(ctx context.Context, id types.AppletID) (*client.StorageResponse, error)
	FetchContent(ctx context.Context, id types.AppletID) (*client.ContentResponse, error)
	PutStorage(ctx context.Context, id types.AppletID, snapshot types.Snapshot) error
}

// Frame is a rendering surface that relays applet messages.
// *sandbox.Frame satisfies it.
type Frame interface {
	loader.Surface
	Subscribe(listener sandbox.Listener) (unsubscribe func())
}

// Options configures an orchestrator
type Options struct {
	// Interval is the change detection period. Default: 333ms.
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *monitoring.SyncMetrics
	// OnWriteError is called after a failed storage write-back
	OnWriteError func(error)
	// OnLoad is called after every successful load
	OnLoad func(id types.AppletID)
}

// Stats are point-in-time counters
type Stats struct {
	Detector detector.Stats `json:"detector"`
	Loads    int64          `json:"loads"`
	Failures int64          `json:"load_failures"`
	Writes   int64          `json:"writes"`
	Rejected int64          `json:"write_failures"`
}

// Orchestrator binds one applet to one frame
type Orchestrator struct {
	api      API
	frame    Frame
	loader   *loader.Loader
	detector *detector.Detector
	opts     Options
	logger   *zap.Logger

	// reloadMu serializes loads so a slow fetch cannot overwrite a newer one
	reloadMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// New creates an orchestrator for applet id rendered into frame
func New(id types.AppletID, api API, frame Frame, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	o := &Orchestrator{
		api:    api,
		frame:  frame,
		loader: loader.New(frame, opts.Logger),
		opts:   opts,
		logger: opts.Logger,
	}
	o.detector = detector.New(api, func(ctx context.Context) {
		_ = o.Reload(ctx)
	}, detector.Options{
		Interval: opts.Interval,
		Logger:   opts.Logger,
		Metrics:  opts.Metrics,
	})
	o.detector.Track(id, types.Markers{})
	return o
}

// ID returns the applet currently bound to the frame
func (o *Orchestrator) ID() types.AppletID {
	id, _ := o.detector.Target()
	return id
}

// Markers returns the last-known version markers
func (o *Orchestrator) Markers() types.Markers {
	return o.detector.Markers()
}

// Stats returns the current counters
func (o *Orchestrator) Stats() Stats {
	o.statsMu.Lock()
	s := o.stats
	o.statsMu.Unlock()
	s.Detector = o.detector.Stats()
	return s
}

// Start subscribes to frame messages, loads the applet, and begins change
// detection. A failed initial load is logged; polling starts regardless.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.ctx = runCtx
	o.cancel = cancel
	o.unsubscribe = o.frame.Subscribe(o.handleMessage)
	o.mu.Unlock()

	_ = o.InitialLoad(runCtx)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.detector.Run(runCtx)
	}()

	o.logger.Info("Applet sync started", zap.String("applet", o.ID().String()))
	return nil
}

// Stop cancels change detection and removes the message listener. It waits
// for an in-flight check to finish and is safe to call more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, unsubscribe := o.cancel, o.unsubscribe
	o.cancel, o.unsubscribe = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	o.wg.Wait()
	unsubscribe()

	o.logger.Info("Applet sync stopped", zap.String("applet", o.ID().String()))
}

// InitialLoad performs the first fetch and render
func (o *Orchestrator) InitialLoad(ctx context.Context) error {
	return o.Reload(ctx)
}

// Reload refetches both resources and re-renders the applet. Failures are
// logged and returned; the frame keeps its previous document.
func (o *Orchestrator) Reload(ctx context.Context) error {
	o.reloadMu.Lock()
	defer o.reloadMu.Unlock()
	return o.reloadLocked(ctx)
}

// SetApplet binds a different applet, typically the one returned by a
// replacement, and loads it. Markers start over.
func (o *Orchestrator) SetApplet(ctx context.Context, id types.AppletID) error {
	o.reloadMu.Lock()
	defer o.reloadMu.Unlock()

	o.detector.Track(id, types.Markers{})
	o.logger.Info("Applet rebound", zap.String("applet", id.String()))
	return o.reloadLocked(ctx)
}

func (o *Orchestrator) reloadLocked(ctx context.Context) error {
	id := o.ID()
	err := o.load(ctx, id)
	o.opts.Metrics.RecordReload(err)

	o.statsMu.Lock()
	if err != nil {
		o.stats.Failures++
	} else {
		o.stats.Loads++
	}
	o.statsMu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("Applet load failed", zap.String("applet", id.String()), zap.Error(err))
		}
		return err
	}
	if o.opts.OnLoad != nil {
		o.opts.OnLoad(id)
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, id types.AppletID) error {
	var (
		storage *client.StorageResponse
		content *client.ContentResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		storage, err = o.api.FetchStorage(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		content, err = o.api.FetchContent(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	o.detector.Track(id, types.Markers{Storage: storage.Marker, Content: content.Marker})

	if err := o.loader.Load(ctx, storage.Data, content.HTML); err != nil {
		return fmt.Errorf("render applet: %w", err)
	}
	return nil
}

// handleMessage writes storageChanged snapshots back to the server. Every
// other message is ignored.
func (o *Orchestrator) handleMessage(msg sandbox.Message) {
	env, ok := types.ParseEnvelope(msg.Data)
	if !ok || env.Type != types.StorageChanged {
		return
	}

	o.mu.Lock()
	ctx := o.ctx
	o.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	id := o.ID()
	if ctx.Err() != nil {
		// stopped while the message was queued
		o.logger.Debug("Storage write dropped after stop", zap.String("applet", id.String()), zap.Int("keys", len(env.Data)))
		return
	}
	err := o.api.PutStorage(ctx, id, env.Data)
	o.opts.Metrics.RecordWrite(err)

	o.statsMu.Lock()
	if err != nil {
		o.stats.Rejected++
	} else {
		o.stats.Writes++
	}
	o.statsMu.Unlock()

	if err != nil {
		o.logger.Warn("Storage write failed",
			zap.String("applet", id.String()),
			zap.Int("keys", len(env.Data)),
			zap.Error(err),
		)
		if o.opts.OnWriteError != nil {
			o.opts.OnWriteError(err)
		}
		return
	}
	o.logger.Debug("Storage written", zap.String("applet", id.String()), zap.Int("keys", len(env.Data)))
}
