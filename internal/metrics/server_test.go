package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer starts a metrics server on port and arranges shutdown.
func startServer(t *testing.T, port int) *Server {
	t.Helper()
	srv := NewServer(port, zerolog.Nop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
	})
	// Let the listener come up
	time.Sleep(100 * time.Millisecond)
	return srv
}

func get(t *testing.T, port int, path string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(fmt.Sprintf("http://localhost:%d%s", port, path))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestNewServer(t *testing.T) {
	srv := NewServer(19181, zerolog.Nop())

	require.NotNil(t, srv)
	assert.Equal(t, 19181, srv.port)
	assert.Nil(t, srv.server)
}

func TestServerHealthEndpoint(t *testing.T) {
	port := 19182
	startServer(t, port)

	resp, body := get(t, port, "/health")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body)
}

func TestServerServesEngineSeries(t *testing.T) {
	port := 19183
	RecordTick(42)
	RecordSignalGenerated("LIQUIDATION_HUNT", "SHORT")
	startServer(t, port)

	resp, body := get(t, port, "/metrics")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.Contains(t, body, "signalengine_tick_duration_ms")
	assert.Contains(t, body, "signalengine_signals_generated_total")
}

func TestServerShutdownStopsServing(t *testing.T) {
	port := 19184
	srv := NewServer(port, zerolog.Nop())
	require.NoError(t, srv.Start())
	time.Sleep(100 * time.Millisecond)

	resp, _ := get(t, port, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	time.Sleep(100 * time.Millisecond)
	stale, err := http.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if stale != nil {
		stale.Body.Close()
	}
	assert.Error(t, err)
}

func TestShutdownBeforeStartIsNoop(t *testing.T) {
	srv := NewServer(19185, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestEngineAndVerifierPortsCoexist(t *testing.T) {
	// The engine and the verifier each expose their own scrape port
	enginePort, verifierPort := 19186, 19187
	startServer(t, enginePort)
	startServer(t, verifierPort)

	for _, port := range []int{enginePort, verifierPort} {
		resp, _ := get(t, port, "/health")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
}
