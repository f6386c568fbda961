package server

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/chatrelay/broadcast"
)

// readFrame reads one SSE frame, skipping keep-alive comments.
func readFrame(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	frame := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "" && len(frame) > 0:
			return frame
		case line == "", strings.HasPrefix(line, ":"):
			continue
		default:
			k, v, _ := strings.Cut(line, ": ")
			frame[k] = v
		}
	}
}

func TestEvents_Stream(t *testing.T) {
	env := newTestEnv(t, envOptions{config: Config{Heartbeat: 10 * time.Millisecond}})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	ev, err := broadcast.NewEvent(broadcast.EventNewMessage, map[string]string{"text": "hi"})
	require.NoError(t, err)
	require.NoError(t, env.hub.Publish(context.Background(), ev))

	frame := readFrame(t, bufio.NewReader(resp.Body))
	assert.Equal(t, ev.ID, frame["id"])
	assert.Equal(t, broadcast.EventNewMessage, frame["event"])
	assert.Contains(t, frame["data"], `"text":"hi"`)
}

func TestEvents_EndsWhenHubCloses(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ts := httptest.NewServer(env.srv.Handler())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.hub.Close())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = bufio.NewReader(resp.Body).ReadString(0)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end")
	}
}

func TestEvents_ClosedHub(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	require.NoError(t, env.hub.Close())

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
