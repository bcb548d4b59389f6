package handler

import (
	"net/http"
	"time"

	"storyboard-ai/internal/response"
	"storyboard-ai/log"
	apperrors "storyboard-ai/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RunEvents streams the events of one run over a websocket: first the
// history kept by the broker, then live events until the run ends or the
// client goes away.
func (h Handler) RunEvents(c *gin.Context) {
	runID := c.Param("runId")
	var known bool
	if h.Broker != nil {
		_, known = h.Broker.Last(runID)
	}
	if !known {
		response.RunError(c, runID, apperrors.Newf(apperrors.CodeNotFound, "运行不存在或进度已清理 Run not found or progress evicted", "%s", runID))
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.GetLogger().Warn("websocket upgrade failed", zap.String("run_id", runID), zap.Error(err))
		return
	}
	defer conn.Close()

	events, cancel := h.Broker.Subscribe(runID)
	defer cancel()

	// reads only serve to notice the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				deadline := time.Now().Add(eventWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), deadline)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.GetLogger().Debug("websocket write failed", zap.String("run_id", runID), zap.Error(err))
				return
			}
		}
	}
}
