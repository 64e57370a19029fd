package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mirrorstore/internal/registry"
)

// DeviceConfig is one entry of the devices list.
type DeviceConfig struct {
	Label string `yaml:"label"`
	// MountPoint is where the device's filesystem is mounted, e.g. /media/usb1.
	MountPoint string `yaml:"mount_point"`
	// StorageFolder is the directory below MountPoint that holds the replica.
	// Empty means the mount point itself.
	StorageFolder string `yaml:"storage_folder"`
}

// HotplugConfig controls the device (re)attach monitor.
type HotplugConfig struct {
	Enabled bool `yaml:"enabled"`
	// DevDir is watched for new device nodes.
	DevDir string `yaml:"dev_dir"`
	// MountTable is read to map a device node to its mount point.
	MountTable string `yaml:"mount_table"`
	// MountRetries is how many times the mount table is polled per event.
	MountRetries int `yaml:"mount_retries"`
	// MountRetryDelay is the fixed pause between polls.
	MountRetryDelay time.Duration `yaml:"mount_retry_delay"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Console selects human-readable output instead of JSON lines.
	Console bool `yaml:"console"`
}

// Config is the server configuration.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// BufferSize bounds the single read that carries the request line and is
	// the chunk size for file streaming.
	BufferSize int `yaml:"buffer_size"`

	// MaxConnections caps concurrently served connections. 0 means unbounded.
	MaxConnections int `yaml:"max_connections"`

	// StrictPaths applies the traversal guard to every command, not only RM.
	StrictPaths bool `yaml:"strict_paths"`

	Devices []DeviceConfig `yaml:"devices"`

	Hotplug HotplugConfig `yaml:"hotplug"`
	Log     LogConfig     `yaml:"log"`
}

// ClientConfig is the CLI configuration.
type ClientConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func Default() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8080,
		BufferSize:     4096,
		MaxConnections: 0,
		StrictPaths:    false,
		Hotplug: HotplugConfig{
			Enabled:         true,
			DevDir:          "/dev",
			MountTable:      "/proc/mounts",
			MountRetries:    5,
			MountRetryDelay: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
	}
}

func DefaultClient() ClientConfig {
	return ClientConfig{Host: "127.0.0.1", Port: 8080}
}

// Load reads a YAML (or JSON) server config on top of Default() and validates it.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadClient reads a client config. A missing file yields the defaults.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClient()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrap(err, "read client config")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse %s", filepath.Base(path))
	}
	if err := validPort(cfg.Port); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	return cfg, nil
}

// Addr is the dial address of the server.
func (c ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = "0.0.0.0"
	}
	if err := validPort(c.Port); err != nil {
		return err
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be > 0")
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("max_connections must be >= 0")
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("at least one device must be configured")
	}
	if len(c.Devices) > registry.MaxDevices {
		return fmt.Errorf("the number of devices (%d) exceeds the maximum allowed (%d)", len(c.Devices), registry.MaxDevices)
	}
	for i, d := range c.Devices {
		if strings.TrimSpace(d.MountPoint) == "" {
			return fmt.Errorf("devices[%d]: mount_point is required", i)
		}
		if !filepath.IsAbs(d.MountPoint) {
			return fmt.Errorf("devices[%d]: mount_point %q must be absolute", i, d.MountPoint)
		}
		if strings.Contains(d.StorageFolder, "..") {
			return fmt.Errorf("devices[%d]: storage_folder may not contain '..'", i)
		}
	}
	if c.Hotplug.Enabled {
		if c.Hotplug.DevDir == "" {
			c.Hotplug.DevDir = "/dev"
		}
		if c.Hotplug.MountTable == "" {
			c.Hotplug.MountTable = "/proc/mounts"
		}
		if c.Hotplug.MountRetries < 1 {
			return fmt.Errorf("hotplug.mount_retries must be >= 1")
		}
		if c.Hotplug.MountRetryDelay < 0 {
			return fmt.Errorf("hotplug.mount_retry_delay must be >= 0")
		}
	}
	return nil
}

func validPort(p int) error {
	if p <= 0 || p > 65535 {
		return fmt.Errorf("port %d out of range", p)
	}
	return nil
}

// Listen is the TCP listen address.
func (c Config) Listen() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Registry builds the immutable device registry from the devices list.
func (c Config) Registry() (*registry.Registry, error) {
	devs := make([]registry.Device, len(c.Devices))
	for i, d := range c.Devices {
		devs[i] = registry.Device{Label: d.Label, MountPoint: d.MountPoint, StorageFolder: d.StorageFolder}
	}
	return registry.New(devs)
}
