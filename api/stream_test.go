package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portwatch/jobs"
)

func dialStream(t *testing.T, env *testEnv, id string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/scans/" + id + "/stream"
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestStreamScan_PushesUntilTerminal(t *testing.T) {
	prober := sshOpen()
	prober.gate = make(chan struct{})
	env := newTestEnv(t, prober)

	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "20-25"})

	conn, _, err := dialStream(t, env, id)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))

	var first StreamMessage
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "status", first.Type)
	assert.Equal(t, jobs.StateRunning, first.Data.State)
	assert.Zero(t, first.Data.Progress)

	close(prober.gate)

	var (
		last StreamMessage
		logs = len(first.Data.Logs)
	)
	for last.Type != "complete" {
		require.NoError(t, conn.ReadJSON(&last))
		logs += len(last.Data.Logs)
	}

	assert.Equal(t, jobs.StateCompleted, last.Data.State)
	assert.Equal(t, 100, last.Data.Progress)
	assert.Contains(t, last.Data.Results, 22)
	assert.Equal(t, last.Data.NextLogIndex, logs, "every log entry delivered exactly once")

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestStreamScan_FinishedJobSendsSingleMessage(t *testing.T) {
	env := newTestEnv(t, sshOpen())
	id := env.start(t, StartScanRequest{Target: "127.0.0.1", Ports: "22"})
	env.waitTerminal(t, id)

	conn, _, err := dialStream(t, env, id)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg StreamMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "complete", msg.Type)
	assert.Equal(t, jobs.StateCompleted, msg.Data.State)
}

func TestStreamScan_UnknownJob(t *testing.T) {
	env := newTestEnv(t, sshOpen())

	_, resp, err := dialStream(t, env, "missing")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
