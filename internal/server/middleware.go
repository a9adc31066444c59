package server

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/motorgrid/exportd/internal/config"
	"github.com/motorgrid/exportd/internal/jwt"
	"github.com/motorgrid/exportd/internal/logger"
	"github.com/motorgrid/exportd/internal/resp"
)

// TraceMiddleware stamps every request with a trace ID, propagated to
// the request context and echoed back in the X-Trace-Id header.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, traceID := logger.EnsureTraceID(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Trace-Id", traceID)
		c.Next()
	}
}

// AuthMiddleware validates the bearer token on protected routes.
// Whitelisted path prefixes pass through. Websocket upgrades may carry
// the token as a query parameter since browsers cannot set headers on
// the upgrade request.
func AuthMiddleware(tm *jwt.TokenManager, cfg *config.Auth, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, prefix := range cfg.Whitelist {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		token := bearerToken(c)
		if token == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("missing authorization token"))
			c.Abort()
			return
		}

		claims, err := tm.DecodeToken(token)
		if err != nil {
			log.Warn(c.Request.Context(), "Invalid token", "error", err)
			resp.Fail(c.Writer, resp.UnAuthorized("invalid token"))
			c.Abort()
			return
		}
		if !jwt.IsAccessToken(claims) {
			resp.Fail(c.Writer, resp.UnAuthorized("not an access token"))
			c.Abort()
			return
		}

		c.Set("token_id", jwt.GetTokenID(claims))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}
