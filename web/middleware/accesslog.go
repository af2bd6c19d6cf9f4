package middleware

import (
	"context"

	"github.com/trellis-web/trellis/pkg/logger"
	"github.com/trellis-web/trellis/web"
)

// AccessLog is a log handler that writes the request line plus every message
// accumulated on the context through the structured logger.
type AccessLog struct {
	Logger *logger.Logger `inject:""`
}

// ModuleName implements web.Named.
func (*AccessLog) ModuleName() string { return "access-log" }

// Log implements web.LogHandler.
func (h *AccessLog) Log(ctx context.Context, c *web.Context, messages []web.Message) error {
	event := h.Logger.Zerolog().Info().
		Str("trace_id", TraceID(c)).
		Int("status", c.Response.Status())
	if c.Request != nil {
		event = event.Str("method", c.Request.Method).Str("path", c.URL.Path)
	}
	event.Msg("request completed")

	for _, m := range messages {
		var evt = h.Logger.Zerolog().Debug()
		switch m.Type {
		case web.MessageWarning:
			evt = h.Logger.Zerolog().Warn()
		case web.MessageError:
			evt = h.Logger.Zerolog().Error()
		case web.MessageLog:
			evt = h.Logger.Zerolog().Info()
		}
		evt.Str("trace_id", TraceID(c)).Str("pos", m.Pos.String()).Msg(m.Text)
	}
	return nil
}
