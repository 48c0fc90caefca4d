// Package config is echolite's configuration layer: the required CLI
// surface of spec.md §6.6 (--bind/--password/--log, with flag > env >
// default precedence), built with github.com/spf13/cobra +
// github.com/spf13/viper (grounded on riftdata-rift's cmd/rift/main.go and
// internal/config.Load), plus an optional YAML file whose log level,
// hashing concurrency, and health interval are re-read on change via
// fsnotify with the teacher's own debounce pattern and handed to a
// callback. echolited applies only the reloaded log level at runtime; the
// other two settings take effect at the next start.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBindIP   = "127.0.0.1"
	DefaultBindPort = 4567
	DefaultLogLevel = "info"
)

// DefaultBind is the address the server listens on absent any
// configuration, matching original_source/src/cli.rs's DEFAULT_BIND.
func DefaultBind() string {
	return fmt.Sprintf("%s:%d", DefaultBindIP, DefaultBindPort)
}

// Config holds the server's required CLI-surface settings plus the
// ambient settings this server adds on top of spec.md §6.6.
type Config struct {
	Bind     string `mapstructure:"bind"`
	Password string `mapstructure:"password"`
	LogLevel string `mapstructure:"log"`
	DBPath   string `mapstructure:"db"`
	HTTPBind string `mapstructure:"http_bind"`

	HashConcurrency int           `mapstructure:"hash_concurrency"`
	HealthInterval  time.Duration `mapstructure:"health_interval"`
}

// Load reads configuration with the precedence flag > env > config file >
// default, the way riftdata-rift's internal/config.Load wires Viper.
// cfgFile may be empty; bind/password/log are flag values from cobra
// (empty means "not set on the command line", so viper falls through to
// env/file/default).
func Load(cfgFile, bind, password, logLevel string) (*Config, error) {
	v := viper.New()

	v.SetDefault("bind", DefaultBind())
	v.SetDefault("password", "")
	v.SetDefault("log", DefaultLogLevel)
	v.SetDefault("db", "echolite.db")
	v.SetDefault("http_bind", "127.0.0.1:9090")
	v.SetDefault("hash_concurrency", 2)
	v.SetDefault("health_interval", 30*time.Second)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", cfgFile, err)
		}
	}

	v.SetEnvPrefix("echolite")
	v.AutomaticEnv()

	if bind != "" {
		v.Set("bind", bind)
	}
	if password != "" {
		v.Set("password", password)
	}
	if logLevel != "" {
		v.Set("log", logLevel)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}
	return &cfg, nil
}

// ParseBindAddress implements spec.md §6.6's bind-address parsing rule:
// accept a full "host:port" socket address, a bare IP (port defaults to
// 4567), or a bare port (IP defaults to 127.0.0.1). Grounded on
// original_source/src/cli.rs's to_socket_addr.
func ParseBindAddress(s string) (string, error) {
	if host, port, err := net.SplitHostPort(s); err == nil {
		if _, err := strconv.Atoi(port); err == nil {
			if net.ParseIP(host) != nil || host == "" {
				return net.JoinHostPort(host, port), nil
			}
		}
	}
	if ip := net.ParseIP(s); ip != nil {
		return net.JoinHostPort(s, strconv.Itoa(DefaultBindPort)), nil
	}
	if port, err := strconv.ParseUint(s, 10, 16); err == nil {
		return net.JoinHostPort(DefaultBindIP, strconv.FormatUint(port, 10)), nil
	}
	return "", fmt.Errorf("config: cannot parse %q as an address, IP, or port", s)
}

// IsLoopback reports whether addr's host resolves to a loopback address.
// Non-loopback binds are allowed but warrant a startup warning per
// spec.md §6.6.
func IsLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment
// variable values, left alone if the variable is unset. Grounded on the
// teacher's internal/config.substituteEnvVars.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// reloadable is the subset of Config that may change via hot reload.
type reloadable struct {
	LogLevel        string        `yaml:"log"`
	HashConcurrency int           `yaml:"hash_concurrency"`
	HealthInterval  time.Duration `yaml:"health_interval"`
}

func loadReloadable(path string) (reloadable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return reloadable{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	data = substituteEnvVars(data)
	var r reloadable
	if err := yaml.Unmarshal(data, &r); err != nil {
		return reloadable{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return r, nil
}

// Watcher watches the optional config file for changes and invokes
// callback with the subset of settings that are safe to change without
// restarting listeners or backends: log level, hashing concurrency, and
// health interval.
// Grounded on the teacher's internal/config.Watcher, including its
// 500ms debounce to coalesce editor save bursts.
type Watcher struct {
	path     string
	callback func(logLevel string, hashConcurrency int, healthInterval time.Duration)
	watcher  *fsnotify.Watcher
	log      *slog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher starts watching path for changes.
func NewWatcher(path string, log *slog.Logger, callback func(logLevel string, hashConcurrency int, healthInterval time.Duration)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	cw := &Watcher{path: path, callback: callback, watcher: w, log: log, stopCh: make(chan struct{})}
	go cw.run()
	return cw, nil
}

func (cw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, cw.reload)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("config watcher error", "err", err)
		case <-cw.stopCh:
			return
		}
	}
}

func (cw *Watcher) reload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	r, err := loadReloadable(cw.path)
	if err != nil {
		cw.log.Warn("config hot-reload failed", "err", err)
		return
	}
	cw.log.Info("configuration reloaded", "path", cw.path)
	cw.callback(r.LogLevel, r.HashConcurrency, r.HealthInterval)
}

// Stop stops watching.
func (cw *Watcher) Stop() {
	cw.watcher.Close()
	close(cw.stopCh)
}

// ParseLogLevel maps a string log level onto slog.Level, defaulting to
// Info for anything unrecognized.
func ParseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
