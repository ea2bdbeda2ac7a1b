package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggingMiddleware writes one summary line per request.
func LoggingMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"request_method": c.Request.Method,
			"request_url":    redactedURL(c),
			"remote_addr":    c.ClientIP(),
			"status":         c.Writer.Status(),
			"latency":        time.Since(start).String(),
		}
		if action := c.Param("action"); action != "" {
			fields["action"] = action
		}
		if token := GetToken(c); token != "" {
			fields["token"] = RedactToken(token)
		}
		entry := logger.WithFields(fields)
		if len(c.Errors) > 0 {
			entry.WithField("errors", c.Errors.String()).Error("request failed")
			return
		}
		entry.Info("request")
	}
}

// redactedURL is the request path and query with the ":token" path segment
// replaced by its redacted form.
func redactedURL(c *gin.Context) string {
	path := c.Request.URL.Path
	if token := c.Param("token"); token != "" {
		path = strings.Replace(path, "/"+token, "/"+RedactToken(token), 1)
	}
	if c.Request.URL.RawQuery != "" {
		path += "?" + c.Request.URL.RawQuery
	}
	return path
}
