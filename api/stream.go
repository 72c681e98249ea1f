package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"portwatch/jobs"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamMessage is one websocket frame of the live scan stream.
type StreamMessage struct {
	Type      string              `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Data      jobs.StatusSnapshot `json:"data"`
}

// @Summary      Live scan stream
// @Description  Upgrades to a websocket and pushes a status message whenever new log entries arrive or progress changes. The server sends a final message once the scan is terminal and closes the connection.
// @Tags         Scans
// @Param        id   path  string  true  "Scan id"
// @Success      101  {object}  StreamMessage
// @Failure      404  {object}  ErrorResponse  "Unknown scan id"
// @Router       /scans/{id}/stream [get]
func (s *Server) streamScanHandler(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.jobs.Status(id, 0); err != nil {
		s.abortWithError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade websocket connection", "scan_id", id, "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("scan_id", id, "client_ip", c.ClientIP())
	logger.Info("stream opened")

	// The read loop only handles control frames and notices disconnects.
	gone := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	next, lastProgress, first := 0, -1, true
	for {
		snapshot, err := s.jobs.Status(id, next)
		if err != nil {
			logger.Warn("stream aborted", "error", err)
			return
		}

		terminal := snapshot.State.Terminal()
		if first || terminal || len(snapshot.Logs) > 0 || snapshot.Progress != lastProgress {
			msgType := "status"
			if terminal {
				msgType = "complete"
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(StreamMessage{Type: msgType, Timestamp: time.Now().UTC(), Data: snapshot}); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
			first = false
			next = snapshot.NextLogIndex
			lastProgress = snapshot.Progress
		}

		if terminal {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(snapshot.State)),
				time.Now().Add(writeWait))
			logger.Info("stream closed", "status", snapshot.State)
			return
		}

		select {
		case <-gone:
			logger.Info("stream client disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
