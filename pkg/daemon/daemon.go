package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/godbus/dbus/v5"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/bluez"
	"github.com/charlie0129/bluebatt/pkg/config"
	"github.com/charlie0129/bluebatt/pkg/permission"
)

func (s *Server) setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.accessLogger(logrus.StandardLogger()))
	router.GET("/config", s.getConfig)
	router.GET("/version", s.getVersion)
	router.GET("/devices", s.getDevices)
	router.POST("/devices/select", s.selectDevice)
	router.GET("/monitor", s.getMonitor)
	router.PUT("/monitor", s.setMonitor)
	router.DELETE("/monitor", s.deleteMonitor)
	router.GET("/permissions", s.getPermissions)
	router.PUT("/permissions/:name", s.setPermission)
	router.PUT("/poll-interval", s.setPollInterval)
	router.GET("/events", s.streamEvents)
	router.GET("/ws", s.websocketEvents)

	return router
}

// Options configure Run.
type Options struct {
	ConfigPath     string
	UnixSocketPath string
	// AllowNonRoot opens the socket to every user regardless of the config.
	AllowNonRoot bool
	// Adapter overrides the configured controller for this run only.
	Adapter string
}

func Run(opts Options) error {
	unixSocketPath := opts.UnixSocketPath
	conf, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to parse config during startup")
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			err := conf.Load()
			if err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to connect to system bus")
	}

	adapterName := conf.Adapter()
	if opts.Adapter != "" {
		adapterName = opts.Adapter
	}
	logrus.WithField("adapter", adapterName).Info("using bluetooth controller")
	adapter := bluez.New(bus, adapterName)
	s := NewServer(conf, adapter, permission.NewManager(conf, adapter))

	srv := &http.Server{
		Handler: s.setupRoutes(),
	}

	// Create the socket to listen on:
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		_ = bus.Close()
		return pkgerrors.Wrapf(err, "failed to listen on %s", unixSocketPath)
	}

	if conf.AllowNonRootAccess() || opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			_ = l.Close()
			_ = bus.Close()
			return pkgerrors.Wrapf(err, "failed to chmod %s", unixSocketPath)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	// Ends event streams too, otherwise Shutdown waits for them.
	logrus.Info("closing device")
	s.Close()

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	logrus.Info("closing system bus connection")
	err = bus.Close()
	if err != nil {
		logrus.Errorf("failed to close system bus connection: %v", err)
	}

	logrus.Info("exiting")
	return nil
}
