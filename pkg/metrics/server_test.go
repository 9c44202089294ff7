package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServesAndStops(t *testing.T) {
	srv := NewServer(ServerConfig{BindAddress: "127.0.0.1", Port: -1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not start")
	}
	require.NotZero(t, srv.Port())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/", srv.Port()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/metrics")

	resp, err = http.Get(fmt.Sprintf("http://127.0.0.1:%d/metrics", srv.Port()))
	require.NoError(t, err)
	_ = resp.Body.Close()
	if IsEnabled() {
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	} else {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
