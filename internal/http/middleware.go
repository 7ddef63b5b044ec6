package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/axon-pharmacy/internal/session"
)

const (
	traceHeader = "X-Trace-Id"
	traceKey    = "trace_id"
	sessionKey  = "session"
)

// requestLogger tags every request with a trace id and logs one line when it
// completes.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(traceKey, traceID)
		c.Header(traceHeader, traceID)

		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "request",
			slog.String(traceKey, traceID),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

func traceID(c *gin.Context) string {
	return c.GetString(traceKey)
}

// authenticate resolves the bearer token to a live session. An empty role
// admits any session.
func (s *Server) authenticate(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		sess, err := s.accounts.Authenticate(token)
		if err != nil {
			s.logger.Warn("authentication failed",
				slog.String(traceKey, traceID(c)),
				slog.String("error", err.Error()),
			)
			c.AbortWithStatusJSON(mapErrorToStatus(err), gin.H{"error": errorMessage(err)})
			return
		}
		if role != "" && sess.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "this route needs the " + role + " role"})
			return
		}

		c.Set(sessionKey, sess)
		c.Next()
	}
}

func currentSession(c *gin.Context) *session.Session {
	sess, _ := c.MustGet(sessionKey).(*session.Session)
	return sess
}
