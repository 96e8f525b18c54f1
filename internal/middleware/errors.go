package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/fisk-sga/campus-feedback/backend/internal/apperr"
	"github.com/fisk-sga/campus-feedback/backend/internal/metrics"
)

// AbortWithError renders err as a JSON error response, logs it and records
// it in http_errors_total.
func AbortWithError(c *gin.Context, err error) {
	e := apperr.From(err)
	metrics.HTTPErrorsTotal.WithLabelValues(string(e.Type)).Inc()

	attrs := []any{
		"error_type", e.Type,
		"message", e.Message,
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", e.HTTPStatus(),
	}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}
	for k, v := range e.Context {
		attrs = append(attrs, k, v)
	}
	if actor, ok := lookupActor(c); ok && !actor.IsAnonymous() {
		attrs = append(attrs, "user_id", actor.UserID)
	}

	switch e.Type {
	case apperr.TypeInternal, apperr.TypeUnavailable:
		slog.Error("request failed", attrs...)
	default:
		slog.Debug("request rejected", attrs...)
	}

	_ = c.Error(e)
	c.AbortWithStatusJSON(e.HTTPStatus(), e.ToResponse())
}
