package middleware

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/errors"
)

// SentryMiddleware attaches a Sentry hub to each request and reports panics.
func SentryMiddleware() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ErrorHandler reports unexpected errors recorded with c.Error, and bare 5xx responses, to Sentry.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		hub := sentrygin.GetHubFromContext(c)
		if hub == nil {
			return
		}

		hub.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "http",
			Category: "http.request",
			Message:  fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()),
			Level:    errors.Level(status),
			Data: map[string]interface{}{
				"status_code": status,
				"duration_ms": time.Since(start).Milliseconds(),
			},
		}, nil)

		reported := false
		for _, ginErr := range c.Errors {
			if !errors.ShouldReportError(ginErr.Err, status) {
				continue
			}
			hub.WithScope(func(scope *sentry.Scope) {
				tagScope(c, scope, status)
				hub.CaptureException(ginErr.Err)
			})
			reported = true
		}

		if !reported && status >= 500 && len(c.Errors) == 0 {
			hub.WithScope(func(scope *sentry.Scope) {
				tagScope(c, scope, status)
				hub.CaptureMessage(fmt.Sprintf("HTTP %d: %s %s", status, c.Request.Method, c.FullPath()))
			})
		}
	}
}

func tagScope(c *gin.Context, scope *sentry.Scope, status int) {
	scope.SetLevel(errors.Level(status))
	scope.SetTag("http.method", c.Request.Method)
	scope.SetTag("http.status_code", fmt.Sprintf("%d", status))
	scope.SetTag("endpoint", c.FullPath())
	scope.SetTag("correlation_id", GetCorrelationID(c))
	if userID, err := GetUserID(c); err == nil {
		scope.SetUser(sentry.User{ID: userID.String(), IPAddress: c.ClientIP()})
	}
}
