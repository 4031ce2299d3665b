package daemon

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// accessLogLevel maps a response status to the level its access log line is
// written at. Successful requests are noise for a daemon polled by a tray icon.
func accessLogLevel(status int) logrus.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case status >= http.StatusBadRequest:
		return logrus.WarnLevel
	default:
		return logrus.DebugLevel
	}
}

// isDeviceRoute reports whether requests to path act on the open device.
func isDeviceRoute(path string) bool {
	return path == "/monitor" || path == "/devices/select"
}

// accessLogger logs one line per request. Requests that act on the open
// device carry its address, and event streams report how long they stayed
// open instead of a latency.
func (s *Server) accessLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		statusCode := c.Writer.Status()

		fields := logrus.Fields{
			"statusCode": statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": max(c.Writer.Size(), 0),
		}
		if path == "/events" || path == "/ws" {
			fields["streamed"] = elapsed.Round(time.Second).String()
		} else {
			fields["latency"] = elapsed.Milliseconds()
		}
		if isDeviceRoute(path) {
			if m := s.currentMonitor(); m != nil {
				fields["device"] = m.Selection().Address
			}
		}

		msg := c.Request.Method + " " + path + " " + http.StatusText(statusCode)
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			msg += ": " + strings.Join(errs.Errors(), "; ")
		}
		logger.WithFields(fields).Log(accessLogLevel(statusCode), msg)
	}
}
