package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"syncboard/domain"
	"syncboard/stream"
)

const keepaliveInterval = 30 * time.Second

// streamEvents serves the server-sent events feed. The first frame hands the
// client its connection id for edit signals; closing the request releases
// every edit lock held under that connection.
func streamEvents(b Board, hub *stream.Hub, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			// EventSource cannot set headers, allow the token as a query param.
			if token := c.QueryParam("token"); token != "" {
				header = "Bearer " + token
			}
		}
		if _, err := auth.UserIDFromAuthHeader(header); err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}

		w := c.Response()
		flusher, ok := w.Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		}

		w.Header().Set(echo.HeaderContentType, "text/event-stream")
		w.Header().Set(echo.HeaderCacheControl, "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		connID := uuid.NewString()
		frames := hub.Subscribe(connID)
		defer func() {
			b.Disconnect(connID)
			hub.Unsubscribe(connID)
		}()

		hello, err := stream.EncodeFrame(domain.TopicConnected, domain.ConnectedEvent{ConnectionID: connID})
		if err != nil {
			return err
		}
		if err := writeFrame(w, flusher, hello); err != nil {
			return nil
		}

		ticker := time.NewTicker(keepaliveInterval)
		defer ticker.Stop()
		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case data := <-frames:
				if err := writeFrame(w, flusher, data); err != nil {
					return nil
				}
			case <-ticker.C:
				// Comment line keeps idle connections from being reaped.
				if _, err := fmt.Fprint(w, ":keepalive\n\n"); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeFrame(w *echo.Response, flusher http.Flusher, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
