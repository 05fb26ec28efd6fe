package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/mealsub/internal/observability/context"
	"github.com/smallbiznis/mealsub/internal/usercontext"
)

const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// UserRequired resolves the caller from the X-User-ID header. The header is
// trusted as-is; credential checks happen in front of this service.
func UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := usercontext.WithUserID(c.Request.Context(), userID)
		ctx = obscontext.WithActor(ctx, "user", userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextUserIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	id, _ := usercontext.UserIDFromContext(c.Request.Context())
	return id
}
