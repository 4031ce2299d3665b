package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/config"
	"github.com/charlie0129/bluebatt/pkg/devicelist"
	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/permission"
	"github.com/charlie0129/bluebatt/pkg/version"
)

// DevicesResponse is the rendered device list screen.
type DevicesResponse struct {
	Rows    []devicelist.Row `json:"rows"`
	Labels  []string         `json:"labels"`
	Waiting bool             `json:"waitingForPermissions"`
}

// PermissionsResponse describes every capability.
type PermissionsResponse struct {
	Permissions []permission.Status `json:"permissions"`
	Missing     []gatt.Permission   `json:"missing"`
	Pending     int                 `json:"pendingRequests"`
}

func abortWithError(c *gin.Context, code int, err error) {
	c.IndentedJSON(code, err.Error())
	_ = c.AbortWithError(code, err)
}

func (s *Server) getConfig(c *gin.Context) {
	fc, err := config.NewRawFileConfigFromConfig(s.conf)
	if err != nil {
		_ = c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
	c.IndentedJSON(http.StatusOK, fc)
}

func (s *Server) getVersion(c *gin.Context) {
	c.IndentedJSON(http.StatusOK, version.Version)
}

func (s *Server) getDevices(c *gin.Context) {
	l, err := s.screen.Show(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Warn("failed to show device list")
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	rows := l.Rows()
	if rows == nil {
		rows = []devicelist.Row{}
	}
	labels := l.Labels()
	if labels == nil {
		labels = []string{}
	}
	c.IndentedJSON(http.StatusOK, DevicesResponse{
		Rows:    rows,
		Labels:  labels,
		Waiting: s.screen.Waiting(),
	})
}

// selectDevice opens the device behind a row of the current list. The body is
// the row's address: row indexes go stale as soon as the list is rebuilt.
func (s *Server) selectDevice(c *gin.Context) {
	var address string
	if err := c.BindJSON(&address); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	address, err := gatt.NormalizeAddress(address)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	sel, err := s.screen.List().SelectAddress(address)
	if err != nil {
		if errors.Is(err, devicelist.ErrNotListed) {
			abortWithError(c, http.StatusConflict, pkgerrors.Wrapf(err, "list the devices again"))
			return
		}
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	m := s.openMonitor(c.Request.Context(), sel)
	c.IndentedJSON(http.StatusCreated, m.Snapshot())
}

func (s *Server) setMonitor(c *gin.Context) {
	var sel devicelist.Selection
	if err := c.BindJSON(&sel); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	address, err := gatt.NormalizeAddress(sel.Address)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	sel.Address = address

	m := s.openMonitor(c.Request.Context(), sel)
	c.IndentedJSON(http.StatusCreated, m.Snapshot())
}

func (s *Server) getMonitor(c *gin.Context) {
	m := s.currentMonitor()
	if m == nil {
		abortWithError(c, http.StatusNotFound, pkgerrors.New("no device selected"))
		return
	}
	c.IndentedJSON(http.StatusOK, m.Snapshot())
}

func (s *Server) deleteMonitor(c *gin.Context) {
	if !s.closeMonitor() {
		c.IndentedJSON(http.StatusOK, "no device was selected")
		return
	}
	logrus.Info("device closed")
	c.IndentedJSON(http.StatusOK, "ok")
}

func (s *Server) getPermissions(c *gin.Context) {
	missing := s.perms.Missing(gatt.AllPermissions...)
	if missing == nil {
		missing = []gatt.Permission{}
	}
	c.IndentedJSON(http.StatusOK, PermissionsResponse{
		Permissions: s.perms.Statuses(),
		Missing:     missing,
		Pending:     s.perms.Pending(),
	})
}

func (s *Server) setPermission(c *gin.Context) {
	p, err := gatt.ParsePermission(c.Param("name"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var granted bool
	if err := c.BindJSON(&granted); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := s.perms.Set(p, granted); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	verb := "revoked"
	if granted {
		verb = "granted"
	}
	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("%s permission %s", p, verb))
}

func (s *Server) setPollInterval(c *gin.Context) {
	var seconds int
	if err := c.BindJSON(&seconds); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if seconds < 1 {
		abortWithError(c, http.StatusBadRequest, pkgerrors.Errorf("poll interval must be at least 1 second, got %d", seconds))
		return
	}

	s.conf.SetPollInterval(time.Duration(seconds) * time.Second)
	if err := s.conf.Save(); err != nil {
		logrus.Errorf("saveConfig failed: %v", err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.Infof("set poll interval to %ds", seconds)

	c.IndentedJSON(http.StatusCreated, fmt.Sprintf("set poll interval to %ds, applies to devices opened from now on", seconds))
}
