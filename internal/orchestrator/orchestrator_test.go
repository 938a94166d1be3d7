package orchestrator

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/appletsync/internal/client"
	"github.com/GriffinCanCode/appletsync/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/appletsync/internal/sandbox"
	"github.com/GriffinCanCode/appletsync/internal/shared/types"
	"github.com/GriffinCanCode/appletsync/internal/testutil"
)

const (
	appletID = "6d1c2b7e-98a4-4f51-b0c2-3e9a1f4d7a20"
	document = "<html><head></head><body><p id=\"msg\">hello</p></body></html>"
)

type harness struct {
	server *testutil.AppletServer
	frame  *sandbox.Frame
	orch   *Orchestrator
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	server := testutil.NewAppletServer(t)
	server.SetHTML(appletID, document)
	server.SetStorage(appletID, `{"a":"1"}`)

	cfg := client.DefaultConfig()
	cfg.BaseURL = server.URL
	api := client.NewClient(cfg)

	frame := sandbox.New(sandbox.DefaultConfig(), nil)
	t.Cleanup(func() { _ = frame.Close() })

	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	orch := New(appletID, api, frame, opts)
	t.Cleanup(orch.Stop)

	return &harness{server: server, frame: frame, orch: orch}
}

func (h *harness) eval(t *testing.T, script string) interface{} {
	t.Helper()
	val, err := h.frame.Eval(context.Background(), script)
	require.NoError(t, err)
	return val
}

func TestInitialLoad(t *testing.T) {
	h := newHarness(t, Options{})

	require.NoError(t, h.orch.InitialLoad(context.Background()))

	assert.Equal(t, "1", h.eval(t, "localStorage.getItem('a')"))
	assert.Equal(t, "hello", h.eval(t, "document.getElementById('msg').textContent"))

	storage, content := h.server.Markers(appletID)
	assert.Equal(t, types.Markers{Storage: storage, Content: content}, h.orch.Markers())
	assert.Equal(t, int64(1), h.orch.Stats().Loads)
}

func TestInitialLoadNonObjectStorage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "array", raw: `["a"]`},
		{name: "number", raw: `42`},
		{name: "invalid json", raw: `{oops`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Options{})
			h.server.SetStorage(appletID, tt.raw)

			require.NoError(t, h.orch.InitialLoad(context.Background()))
			assert.Equal(t, int64(0), h.eval(t, "localStorage.length"))
		})
	}
}

func TestLoadFailureKeepsDocument(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewSyncMetrics(reg)
	h := newHarness(t, Options{Metrics: metrics})
	require.NoError(t, h.orch.InitialLoad(context.Background()))
	before := h.orch.Markers()

	h.server.SetHTML(appletID, "<html><head></head><body>new</body></html>")
	h.server.Fail(http.MethodGet, "/applet/"+appletID+"/storage", http.StatusInternalServerError)

	err := h.orch.Reload(context.Background())
	assert.ErrorIs(t, err, client.ErrUnexpectedStatus)

	assert.Equal(t, "hello", h.eval(t, "document.getElementById('msg').textContent"))
	assert.Equal(t, before, h.orch.Markers())
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.Reloads.WithLabelValues(monitoring.ResultFailure)))
	assert.Equal(t, int64(1), h.orch.Stats().Failures)
}

func TestStorageWriteBack(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.orch.Start(context.Background()))

	h.eval(t, "localStorage.setItem('b', 2)")

	require.Eventually(t, func() bool { return len(h.server.Puts()) == 1 }, time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"a":"1","b":"2"}`, h.server.Puts()[0])
	assert.Equal(t, int64(1), h.orch.Stats().Writes)
}

func TestWritesArriveInOrder(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.orch.Start(context.Background()))

	h.eval(t, `
		localStorage.setItem('n', '1');
		localStorage.setItem('n', '2');
		localStorage.removeItem('a');
		localStorage.clear();
	`)

	require.Eventually(t, func() bool { return len(h.server.Puts()) == 4 }, time.Second, 5*time.Millisecond)
	puts := h.server.Puts()
	assert.JSONEq(t, `{"a":"1","n":"1"}`, puts[0])
	assert.JSONEq(t, `{"a":"1","n":"2"}`, puts[1])
	assert.JSONEq(t, `{"n":"2"}`, puts[2])
	assert.JSONEq(t, `{}`, puts[3])
}

func TestIgnoresOtherMessages(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.orch.Start(context.Background()))

	h.eval(t, `
		parent.postMessage('hello', '*');
		parent.postMessage({type: 'resize', height: 10}, '*');
		parent.postMessage({data: {a: '2'}}, '*');
		parent.postMessage(null, '*');
		localStorage.setItem('last', 'x');
	`)

	require.Eventually(t, func() bool { return len(h.server.Puts()) >= 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, h.server.Puts(), 1)
	assert.JSONEq(t, `{"a":"1","last":"x"}`, h.server.Puts()[0])
}

func TestWriteFailureReported(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []error
	)
	h := newHarness(t, Options{OnWriteError: func(err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	}})
	h.server.Fail(http.MethodPut, "/applet/"+appletID+"/storage", http.StatusInternalServerError)
	require.NoError(t, h.orch.Start(context.Background()))

	h.eval(t, "localStorage.setItem('b', '2')")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(failed) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, failed[0], client.ErrUnexpectedStatus)
	mu.Unlock()

	// the local value survives a rejected write
	assert.Equal(t, "2", h.eval(t, "localStorage.getItem('b')"))
	assert.Equal(t, int64(1), h.orch.Stats().Rejected)
}

func TestRemoteChangeReloads(t *testing.T) {
	var loads atomic.Int64
	h := newHarness(t, Options{
		Interval: 10 * time.Millisecond,
		OnLoad:   func(types.AppletID) { loads.Add(1) },
	})
	require.NoError(t, h.orch.Start(context.Background()))

	h.frame.ScrollTo(0, 240)
	h.server.SetHTML(appletID, "<html><head></head><body><p id=\"msg\">updated</p></body></html>")

	require.Eventually(t, func() bool {
		doc, err := h.frame.Document()
		return err == nil && strings.Contains(doc, "updated")
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return loads.Load() == 2 }, time.Second, 5*time.Millisecond)

	_, y, ok := h.frame.ScrollOffset()
	assert.True(t, ok)
	assert.Equal(t, 240.0, y)

	storage, content := h.server.Markers(appletID)
	assert.Eventually(t, func() bool {
		return h.orch.Markers() == types.Markers{Storage: storage, Content: content}
	}, time.Second, 10*time.Millisecond)
}

func TestProbeFailureSkipsCycle(t *testing.T) {
	h := newHarness(t, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, h.orch.Start(context.Background()))
	before := h.orch.Markers()

	h.server.Fail(http.MethodHead, "/applet/"+appletID+"/html", http.StatusServiceUnavailable)
	h.server.SetStorage(appletID, `{"a":"9"}`)

	require.Eventually(t, func() bool { return h.orch.Stats().Detector.Errors >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, before, h.orch.Markers())
	assert.Equal(t, "1", h.eval(t, "localStorage.getItem('a')"))

	h.server.Fail(http.MethodHead, "/applet/"+appletID+"/html", 0)
	require.Eventually(t, func() bool {
		val, err := h.frame.Eval(context.Background(), "localStorage.getItem('a')")
		return err == nil && val == "9"
	}, time.Second, 10*time.Millisecond)
}

func TestStopUnsubscribes(t *testing.T) {
	h := newHarness(t, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, h.orch.Start(context.Background()))
	h.orch.Stop()
	h.orch.Stop()

	checks := h.orch.Stats().Detector.Checks
	h.eval(t, "localStorage.setItem('b', '2')")

	assert.Never(t, func() bool { return len(h.server.Puts()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, checks, h.orch.Stats().Detector.Checks)
}

func TestQueuedWriteAfterStopIsDropped(t *testing.T) {
	var writeErrors atomic.Int64
	h := newHarness(t, Options{OnWriteError: func(error) { writeErrors.Add(1) }})
	require.NoError(t, h.orch.Start(context.Background()))
	h.orch.Stop()

	h.orch.handleMessage(sandbox.Message{Data: map[string]interface{}{
		"type": "storageChanged",
		"data": map[string]interface{}{"a": "2"},
	}})

	assert.Empty(t, h.server.Puts())
	assert.Zero(t, writeErrors.Load())
	assert.Zero(t, h.orch.Stats().Rejected)
	assert.Zero(t, h.orch.Stats().Writes)
}

func TestStartTwice(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.orch.Start(context.Background()))
	assert.ErrorIs(t, h.orch.Start(context.Background()), ErrAlreadyStarted)
}

func TestStartSurvivesInitialFailure(t *testing.T) {
	h := newHarness(t, Options{Interval: 10 * time.Millisecond})
	path := "/applet/" + appletID + "/html"
	h.server.Fail(http.MethodGet, path, http.StatusInternalServerError)
	h.server.Fail(http.MethodHead, path, http.StatusInternalServerError)

	require.NoError(t, h.orch.Start(context.Background()))
	_, err := h.frame.Document()
	assert.ErrorIs(t, err, sandbox.ErrNoDocument)

	h.server.Fail(http.MethodGet, path, 0)
	h.server.Fail(http.MethodHead, path, 0)
	// markers were never recorded, so the first successful probe reloads
	require.Eventually(t, func() bool {
		_, err := h.frame.Document()
		return err == nil
	}, time.Second, 10*time.Millisecond)
}

func TestSetApplet(t *testing.T) {
	h := newHarness(t, Options{})
	require.NoError(t, h.orch.Start(context.Background()))

	const next = "9f8e7d6c-5b4a-4392-8170-6f5e4d3c2b1a"
	h.server.SetHTML(next, "<html><head></head><body><p id=\"msg\">second</p></body></html>")
	h.server.SetStorage(next, `{"z":"26"}`)

	require.NoError(t, h.orch.SetApplet(context.Background(), next))
	assert.Equal(t, types.AppletID(next), h.orch.ID())
	assert.Equal(t, "second", h.eval(t, "document.getElementById('msg').textContent"))
	assert.Nil(t, h.eval(t, "localStorage.getItem('a')"))
	assert.Equal(t, "26", h.eval(t, "localStorage.getItem('z')"))

	h.eval(t, "localStorage.setItem('y', '25')")
	require.Eventually(t, func() bool { return strings.Contains(h.server.Storage(next), `"y"`) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, `{"a":"1"}`, h.server.Storage(appletID))
}
