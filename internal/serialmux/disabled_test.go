package serialmux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDisabledSerialMux_SubscribeUnsubscribe(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	assert.Equal(t, 1, d.Stats().Subscribers)

	d.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, d.Stats().Subscribers)
	d.Unsubscribe(id)
}

func TestDisabledSerialMux_CloseUnblocksReaders(t *testing.T) {
	d := NewDisabledSerialMux()
	_, ch := d.Subscribe()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	assert.NoError(t, d.Close())
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("reader was not released by Close")
	}
	assert.NoError(t, d.Close())

	_, late := d.Subscribe()
	_, open := <-late
	assert.False(t, open, "subscribing after Close yields a closed channel")
}

func TestDisabledSerialMux_MonitorWaitsForContext(t *testing.T) {
	d := NewDisabledSerialMux()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.DeadlineExceeded)
	assert.Zero(t, d.Stats().BytesRead)
}

func TestDisabledSerialMux_AdminRoute(t *testing.T) {
	mux := http.NewServeMux()
	NewDisabledSerialMux().AttachAdminRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/serial-disabled", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "serial disabled", rec.Body.String())
}
