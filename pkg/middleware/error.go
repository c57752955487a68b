package middleware

import (
	"errors"

	"smallbiznis-gamification/pkg/errutil"
	"smallbiznis-gamification/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error attached with c.Error as a JSON error body.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if !errors.As(last.Err, &base) {
			base = errutil.BaseError{
				Code:    errutil.StatusOf(last.Err),
				Message: "internal error",
			}
		}

		status := base.Code.HTTPStatus()
		if status >= 500 {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("path", c.FullPath()),
				zap.Error(last.Err),
			)
			base.Err = nil
		}

		c.AbortWithStatusJSON(status, base.JSON())
	}
}
