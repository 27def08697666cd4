package server

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/coinchat/internal/feed"
	"go.uber.org/zap"
)

// sseBuffer bounds the live events queued for a slow client.
const sseBuffer = 256

// events streams feed events to the client until it disconnects. The
// client first receives a connected event, then a replay of the balance and
// the active thread written to this stream only.
func (h *handlers) events(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ch := make(chan feed.Event, sseBuffer)
	sub := h.s.Hub().Subscribe(func(e feed.Event) {
		select {
		case ch <- e:
		default:
			h.log.Warn("sse client too slow, event dropped", zap.String("kind", string(e.Kind)))
		}
	})
	defer sub.Close()

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	ctx := c.Request.Context()
	for _, e := range h.s.ReplayEvents(ctx) {
		writeSSE(c.Writer, string(e.Kind), e)
	}
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case e := <-ch:
			writeSSE(c.Writer, string(e.Kind), e)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
