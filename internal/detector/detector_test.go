package detector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/shared/types"
)

const (
	monday  = "Mon, 01 Jan 2024 00:00:00 GMT"
	tuesday = "Tue, 02 Jan 2024 00:00:00 GMT"
)

type fakeProber struct {
	mu      sync.Mutex
	markers types.Markers
	fail    error
	calls   int
}

func (p *fakeProber) set(m types.Markers, fail error) {
	p.mu.Lock()
	p.markers = m
	p.fail = fail
	p.mu.Unlock()
}

func (p *fakeProber) ProbeStorage(_ context.Context, _ types.AppletID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.markers.Storage, nil
}

func (p *fakeProber) ProbeContent(_ context.Context, _ types.AppletID) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail != nil {
		return "", p.fail
	}
	return p.markers.Content, nil
}

type reloadCounter struct{ n atomic.Int64 }

func (r *reloadCounter) reload(context.Context) { r.n.Add(1) }

func TestChanged(t *testing.T) {
	tests := []struct {
		name  string
		known types.Markers
		fresh types.Markers
		want  bool
	}{
		{"identical", types.Markers{Storage: monday, Content: monday}, types.Markers{Storage: monday, Content: monday}, false},
		{"storage moved", types.Markers{Storage: monday, Content: monday}, types.Markers{Storage: tuesday, Content: monday}, true},
		{"content moved", types.Markers{Storage: monday, Content: monday}, types.Markers{Storage: monday, Content: tuesday}, true},
		{"marker disappeared", types.Markers{Storage: monday, Content: monday}, types.Markers{Storage: "", Content: monday}, false},
		{"first marker seen", types.Markers{}, types.Markers{Storage: monday}, true},
		{"both empty", types.Markers{}, types.Markers{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Changed(tt.known, tt.fresh))
		})
	}
}

func TestCheckIdenticalMarkers(t *testing.T) {
	markers := types.Markers{Storage: monday, Content: monday}
	prober := &fakeProber{markers: markers}
	counter := &reloadCounter{}

	d := New(prober, counter.reload, Options{})
	d.Track("app", markers)

	for i := 0; i < 3; i++ {
		changed, err := d.Check(context.Background())
		require.NoError(t, err)
		assert.False(t, changed)
	}
	assert.Equal(t, int64(0), counter.n.Load())
	assert.Equal(t, 6, prober.calls)
}

func TestCheckContentChangeRefreshesBoth(t *testing.T) {
	prober := &fakeProber{markers: types.Markers{Storage: tuesday, Content: tuesday}}
	counter := &reloadCounter{}
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewSyncMetrics(reg)

	d := New(prober, counter.reload, Options{Metrics: metrics})
	d.Track("app", types.Markers{Storage: tuesday, Content: monday})

	changed, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(1), counter.n.Load())
	assert.Equal(t, types.Markers{Storage: tuesday, Content: tuesday}, d.Markers())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ChangesDetected))

	changed, err = d.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int64(1), counter.n.Load())
}

func TestCheckFailedProbeKeepsMarkers(t *testing.T) {
	known := types.Markers{Storage: monday, Content: monday}
	prober := &fakeProber{}
	prober.set(types.Markers{Storage: tuesday, Content: tuesday}, errors.New("connection refused"))
	counter := &reloadCounter{}

	d := New(prober, counter.reload, Options{})
	d.Track("app", known)

	changed, err := d.Check(context.Background())
	assert.Error(t, err)
	assert.False(t, changed)
	assert.Equal(t, known, d.Markers())
	assert.Equal(t, int64(0), counter.n.Load())

	prober.set(types.Markers{Storage: tuesday, Content: tuesday}, nil)

	changed, err = d.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = d.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	assert.Equal(t, int64(1), counter.n.Load())

	stats := d.Stats()
	assert.Equal(t, int64(3), stats.Checks)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.ChangesDetected)
	assert.Equal(t, int64(1), stats.Reloads)
}

func TestCheckWithoutTarget(t *testing.T) {
	prober := &fakeProber{}
	d := New(prober, func(context.Context) { t.Fatal("unexpected reload") }, Options{})

	changed, err := d.Check(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Zero(t, prober.calls)
}

func TestCheckSkipsWhenMarkersMovedDuringProbe(t *testing.T) {
	prober := &fakeProber{markers: types.Markers{Storage: tuesday, Content: tuesday}}
	counter := &reloadCounter{}
	d := New(prober, counter.reload, Options{})
	d.Track("app", types.Markers{Storage: monday, Content: monday})

	// a reload recorded newer markers between the read and the adopt
	assert.False(t, d.adopt("app", types.Markers{Storage: "stale"}, types.Markers{Storage: tuesday}))
	assert.False(t, d.adopt("other", types.Markers{Storage: monday, Content: monday}, types.Markers{Storage: tuesday}))
	assert.Equal(t, types.Markers{Storage: monday, Content: monday}, d.Markers())
}

func TestRun(t *testing.T) {
	prober := &fakeProber{markers: types.Markers{Storage: monday, Content: monday}}
	counter := &reloadCounter{}

	d := New(prober, counter.reload, Options{Interval: 5 * time.Millisecond})
	d.Track("app", types.Markers{Storage: monday, Content: monday})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return d.Stats().Checks >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(0), counter.n.Load())

	prober.set(types.Markers{Storage: monday, Content: tuesday}, nil)
	assert.Eventually(t, func() bool { return counter.n.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("detector did not stop")
	}
	assert.Equal(t, int64(1), counter.n.Load())
}

func TestDefaults(t *testing.T) {
	d := New(&fakeProber{}, func(context.Context) {}, Options{})
	assert.Equal(t, DefaultInterval, d.opts.Interval)
	assert.NotNil(t, d.opts.Logger)
}
