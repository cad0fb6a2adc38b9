package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// keepAliveInterval is how often an idle stream sends a comment line so
// proxies keep the connection open.
var keepAliveInterval = 15 * time.Second

// streamBoard pushes the whole board as a server-sent event now and after
// every change.
func (h *handlers) streamBoard(c echo.Context, m *requestMetrics) error {
	res := c.Response()
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		m.SetErrorStage("stream_unsupported")
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		changed := h.svc.Changed()
		payload := boardResponse{Revision: h.svc.Revision(), Stages: h.svc.Board()}
		data, err := sonic.Marshal(payload)
		if err != nil {
			m.SetErrorStage("encode_response")
			return err
		}
		if _, err := res.Write([]byte("id: " + strconv.FormatUint(payload.Revision, 10) + "\nevent: board\ndata: ")); err != nil {
			return nil
		}
		if _, err := res.Write(data); err != nil {
			return nil
		}
		if _, err := res.Write([]byte("\n\n")); err != nil {
			return nil
		}
		flusher.Flush()

	idle:
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-changed:
				break idle
			case <-ticker.C:
				if _, err := res.Write([]byte(": ping\n\n")); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}
