package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Device   DeviceConfig  `json:"device" yaml:"device"`
	Poll     PollConfig    `json:"poll" yaml:"poll"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Forward  ForwardConfig `json:"forward" yaml:"forward"`
	Ping     PingConfig    `json:"ping" yaml:"ping"`
	API      APIConfig     `json:"api" yaml:"api"`
}

type DeviceConfig struct {
	// Host of the device's web interface, e.g. "fritz.box" or "192.168.178.1".
	Host     string `json:"host" yaml:"host"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
	// Timezone the device reports civil time in.
	Timezone string `json:"timezone" yaml:"timezone"`
	// RootCertPath points at the device's self-signed CA in PEM form.
	// Without one, certificate verification is turned off.
	RootCertPath   string        `json:"root_cert_path" yaml:"root_cert_path"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

type PollConfig struct {
	Interval time.Duration `json:"interval" yaml:"interval"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

type ForwardConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type PingConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Targets  []string      `json:"targets" yaml:"targets"`
	Interval time.Duration `json:"interval" yaml:"interval"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Device: DeviceConfig{
			Host:           "fritz.box",
			Timezone:       "Europe/Berlin",
			RequestTimeout: 30 * time.Second,
		},
		Poll:    PollConfig{Interval: 60 * time.Second},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:fritzwatch.db?_pragma=busy_timeout(5000)"},
		Forward: ForwardConfig{Enabled: false},
		Ping: PingConfig{
			Enabled:  false,
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
		},
		API: APIConfig{Enabled: true, Addr: ":8080"},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Device.Timezone == "" {
		cfg.Device.Timezone = "Europe/Berlin"
	}
	if cfg.Device.RequestTimeout <= 0 {
		cfg.Device.RequestTimeout = 30 * time.Second
	}
	if cfg.Poll.Interval <= 0 {
		cfg.Poll.Interval = 60 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Ping.Interval <= 0 {
		cfg.Ping.Interval = 30 * time.Second
	}
	if cfg.Ping.Timeout <= 0 {
		cfg.Ping.Timeout = 5 * time.Second
	}
}

func Validate(cfg *Config) error {
	if cfg.Device.Host == "" {
		return errors.New("device.host is required")
	}
	if cfg.Device.Username == "" {
		return errors.New("device.username is required")
	}
	if cfg.Device.Password == "" {
		return errors.New("device.password is required")
	}
	if _, err := time.LoadLocation(cfg.Device.Timezone); err != nil {
		return fmt.Errorf("device.timezone: %w", err)
	}
	if cfg.Forward.Enabled {
		if len(cfg.Forward.Brokers) == 0 || cfg.Forward.Topic == "" {
			return errors.New("forward requires brokers and topic")
		}
	}
	if cfg.Ping.Enabled {
		if len(cfg.Ping.Targets) == 0 {
			return errors.New("ping.targets required when ping.enabled is true")
		}
		for _, target := range cfg.Ping.Targets {
			ip := net.ParseIP(target)
			if ip == nil || ip.To4() == nil {
				return fmt.Errorf("ping.targets contains invalid IPv4 address: %s", target)
			}
		}
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
