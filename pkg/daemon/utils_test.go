package daemon

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessLogLevel(t *testing.T) {
	tests := []struct {
		status int
		want   logrus.Level
	}{
		{status: http.StatusOK, want: logrus.DebugLevel},
		{status: http.StatusCreated, want: logrus.DebugLevel},
		{status: http.StatusNotFound, want: logrus.WarnLevel},
		{status: http.StatusConflict, want: logrus.WarnLevel},
		{status: http.StatusInternalServerError, want: logrus.ErrorLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, accessLogLevel(tt.status), "status %d", tt.status)
	}
}

func TestAccessLogger(t *testing.T) {
	ts := newTestServer(t, true)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ts.s.accessLogger(logger))
	router.GET("/monitor", ts.s.getMonitor)
	router.PUT("/monitor", ts.s.setMonitor)
	router.GET("/version", ts.s.getVersion)

	serve := func(method, path, body string) *logrus.Entry {
		hook.Reset()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		require.Len(t, hook.AllEntries(), 1)
		return hook.LastEntry()
	}

	// No device open yet: a warning carrying the handler error, no device field.
	entry := serve(http.MethodGet, "/monitor", "")
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Contains(t, entry.Message, "no device selected")
	assert.NotContains(t, entry.Data, "device")

	entry = serve(http.MethodPut, "/monitor", `{"name":"Buds","address":"aa:bb:cc:dd:ee:01","connected":true}`)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, http.StatusCreated, entry.Data["statusCode"])
	assert.Equal(t, buds.Address, entry.Data["device"])
	assert.Contains(t, entry.Data, "latency")

	// Other routes never carry the device.
	entry = serve(http.MethodGet, "/version", "")
	assert.NotContains(t, entry.Data, "device")
}
