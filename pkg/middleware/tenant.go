package middleware

import (
	"context"
	"strconv"

	"smallbiznis-gamification/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const HeaderCompanyID = "X-Company-ID"

type companyKey struct{}

func WithCompanyID(ctx context.Context, companyID int64) context.Context {
	return context.WithValue(ctx, companyKey{}, companyID)
}

func CompanyIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(companyKey{}).(int64)
	return id, ok && id > 0
}

// Tenant requires the X-Company-ID header and stores the parsed id on the
// request context.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderCompanyID)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			_ = c.Error(errutil.BadRequest("missing or invalid "+HeaderCompanyID+" header", err))
			c.Abort()
			return
		}

		c.Request = c.Request.WithContext(WithCompanyID(c.Request.Context(), id))
		c.Next()
	}
}

// CompanyID returns the tenant set by Tenant.
func CompanyID(c *gin.Context) int64 {
	id, _ := CompanyIDFromContext(c.Request.Context())
	return id
}

const HeaderUserID = "X-User-ID"

// UserID returns the acting user from the X-User-ID header, or 0.
func UserID(c *gin.Context) int64 {
	id, err := strconv.ParseInt(c.GetHeader(HeaderUserID), 10, 64)
	if err != nil || id < 0 {
		return 0
	}
	return id
}
