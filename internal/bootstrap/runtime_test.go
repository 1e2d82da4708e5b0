package bootstrap

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanmatrix/dhanmatrix/config"
)

// stepLog records shutdown steps from several goroutines.
type stepLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *stepLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, s)
}

func (l *stepLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.steps...)
}

func testProcess(t *testing.T, log *stepLog, loop func(context.Context) error) process {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := newHTTPServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	return process{
		server:      srv,
		listener:    ln,
		background:  []backgroundService{{name: "loop", run: loop}},
		closers:     []func(){func() { log.add("contexts closed") }},
		httpTimeout: time.Second,
		logger:      discardLogger(),
	}
}

func TestRunProcess_CancelStopsInOrder(t *testing.T) {
	var log stepLog
	var addr string
	p := testProcess(t, &log, func(ctx context.Context) error {
		<-ctx.Done()
		if _, err := net.DialTimeout("tcp", addr, 200*time.Millisecond); err != nil {
			log.add("http drained")
		}
		log.add("loop stopped")
		return ctx.Err()
	})
	addr = p.listener.Addr().String()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runProcess(ctx, p) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + p.listener.Addr().String())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("runProcess did not return after cancel")
	}

	// The loop only sees cancellation after the listener is gone.
	assert.ElementsMatch(t, []string{"http drained", "loop stopped", "contexts closed"}, log.snapshot())
}

func TestRunProcess_BackgroundFailureStopsEverything(t *testing.T) {
	var log stepLog
	boom := errors.New("pubsub closed")
	p := testProcess(t, &log, func(context.Context) error { return boom })

	err := runProcess(context.Background(), p)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "loop failed")
	assert.Contains(t, log.snapshot(), "contexts closed")

	_, dialErr := net.DialTimeout("tcp", p.listener.Addr().String(), 200*time.Millisecond)
	assert.Error(t, dialErr, "listener is closed")
}

func TestServe_BindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	err = Serve(context.Background(), &ServiceOrchestrationConfig{
		Config: &config.AppConfig{HTTP: config.HTTPConfig{Addr: taken.Addr().String()}},
		Logger: discardLogger(),
	})
	require.ErrorContains(t, err, "listen on "+taken.Addr().String())
}

func TestServe_RequiresConfig(t *testing.T) {
	require.Error(t, Serve(context.Background(), nil))
	require.Error(t, Serve(context.Background(), &ServiceOrchestrationConfig{}))
}

func TestBuildBackgroundServices_Empty(t *testing.T) {
	assert.Empty(t, buildBackgroundServices(ServiceContainer{}))
}
