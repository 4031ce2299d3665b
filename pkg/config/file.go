package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/bluebatt/pkg/gatt"
	"github.com/charlie0129/bluebatt/pkg/utils/ptr"
)

var (
	defaultFileConfig = &RawFileConfig{
		PollIntervalSeconds: ptr.To(60),
		Adapter:             ptr.To("hci0"),
		AllowNonRootAccess:  ptr.To(false),
		Permissions: &RawPermissions{
			Connect: ptr.To(true),
			Scan:    ptr.To(true),
		},
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	f := &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}

	return f
}

type RawFileConfig struct {
	PollIntervalSeconds *int            `json:"pollIntervalSeconds,omitempty"`
	Adapter             *string         `json:"adapter,omitempty"`
	AllowNonRootAccess  *bool           `json:"allowNonRootAccess,omitempty"`
	Permissions         *RawPermissions `json:"permissions,omitempty"`
}

// RawPermissions holds the user's answers to permission requests.
type RawPermissions struct {
	Connect *bool `json:"connect,omitempty"`
	Scan    *bool `json:"scan,omitempty"`
}

func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	rawConfig := &RawFileConfig{
		PollIntervalSeconds: ptr.To(int(c.PollInterval() / time.Second)),
		Adapter:             ptr.To(c.Adapter()),
		AllowNonRootAccess:  ptr.To(c.AllowNonRootAccess()),
		Permissions: &RawPermissions{
			Connect: ptr.To(c.Granted(gatt.PermissionConnect)),
			Scan:    ptr.To(c.Granted(gatt.PermissionScan)),
		},
	}

	return rawConfig, nil
}

func (f *File) PollInterval() time.Duration {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	seconds := ptr.Deref(f.c.PollIntervalSeconds, *defaultFileConfig.PollIntervalSeconds)
	if seconds < 1 {
		seconds = *defaultFileConfig.PollIntervalSeconds
	}

	return time.Duration(seconds) * time.Second
}

func (f *File) Adapter() string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	adapter := ptr.Deref(f.c.Adapter, "")
	if adapter == "" {
		adapter = *defaultFileConfig.Adapter
	}

	return adapter
}

func (f *File) AllowNonRootAccess() bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return ptr.Deref(f.c.AllowNonRootAccess, *defaultFileConfig.AllowNonRootAccess)
}

func (f *File) Granted(p gatt.Permission) bool {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	perms := f.c.Permissions
	if perms == nil {
		perms = &RawPermissions{}
	}

	switch p {
	case gatt.PermissionConnect:
		return ptr.Deref(perms.Connect, *defaultFileConfig.Permissions.Connect)
	case gatt.PermissionScan:
		return ptr.Deref(perms.Scan, *defaultFileConfig.Permissions.Scan)
	default:
		return false
	}
}

func (f *File) SetPollInterval(d time.Duration) {
	if f.c == nil {
		panic("config is nil")
	}

	if d < time.Second {
		panic("poll interval must be at least 1 second")
	}

	seconds := int(d / time.Second)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.PollIntervalSeconds = &seconds
}

func (f *File) SetAdapter(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.Adapter = &s
}

func (f *File) SetAllowNonRootAccess(b bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.c.AllowNonRootAccess = &b
}

func (f *File) SetGranted(p gatt.Permission, granted bool) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.c.Permissions == nil {
		f.c.Permissions = &RawPermissions{}
	}

	switch p {
	case gatt.PermissionConnect:
		f.c.Permissions.Connect = &granted
	case gatt.PermissionScan:
		f.c.Permissions.Scan = &granted
	default:
		panic("unknown permission " + string(p))
	}
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	// An empty file is a valid config, so read it whole instead of decoding.
	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"pollInterval":       f.PollInterval().String(),
		"adapter":            f.Adapter(),
		"allowNonRootAccess": f.AllowNonRootAccess(),
		"grantedConnect":     f.Granted(gatt.PermissionConnect),
		"grantedScan":        f.Granted(gatt.PermissionScan),
	}
}
