package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"gfwpro-workflow/internal/shared/server/respond"
	"gfwpro-workflow/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 error body and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			fields := map[string]any{
				"request_id": RequestIDFromContext(c),
				"error":      rec,
				"stack":      string(debug.Stack()),
				"route":      c.FullPath(),
				"method":     c.Request.Method,
			}
			for _, key := range []string{"runId", "listId", "analysisId"} {
				if v := c.GetString(key); v != "" {
					fields[logKey(key)] = v
				}
			}
			telemetry.Error("http.panic", fields)
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "unexpected server error", nil)
		}()
		c.Next()
	}
}
