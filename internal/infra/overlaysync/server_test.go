package overlaysync

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialSync(t *testing.T, srv *httptest.Server, job string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/sync?job=" + job
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestSyncSessionSwapsOverlays(t *testing.T) {
	s := NewServer(zap.NewNop())
	s.Register("job-1", Sequence{FrameCount: 4, Duration: 2.0, OverlayPrefix: "u1/job-1"})

	mux := http.NewServeMux()
	mux.Handle("/sync", s.Handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	conn := dialSync(t, srv, "job-1")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	// Opening evaluation shows frame 0.
	var swap OverlaySwap
	require.NoError(t, conn.ReadJSON(&swap))
	assert.Equal(t, 0, swap.FrameIndex)

	// Mid-clip position maps to frame 3 of 4 at t=1.5/2.0.
	require.NoError(t, conn.WriteJSON(TimeUpdate{CurrentTime: 1.5}))
	require.NoError(t, conn.ReadJSON(&swap))
	assert.Equal(t, 3, swap.FrameIndex)
	assert.Equal(t, "u1/job-1/frame_0003.png", swap.OverlayKey)
}

func TestSyncUnknownJobRejected(t *testing.T) {
	s := NewServer(zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?job=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
