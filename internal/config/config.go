package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are joined
// with a double underscore, e.g. DOC__DATABASE__URL or DOC__TOKEN_SECRET.
const EnvPrefix = "DOC"

// DefaultLocation is the config file read when no --config flag is given.
const DefaultLocation = "config.json"

const minSecretLength = 16

type Settings struct {
	Env                 string           `mapstructure:"env"`
	Port                int              `mapstructure:"port"`
	Database            DatabaseSettings `mapstructure:"database"`
	Logging             LoggingSettings  `mapstructure:"logging"`
	TokenSecret         string           `mapstructure:"token_secret"`
	TokenTimeoutSeconds int64            `mapstructure:"token_timeout_seconds"`
	Tracing             TracingSettings  `mapstructure:"tracing"`
	Login               LoginSettings    `mapstructure:"login"`
	Server              ServerSettings   `mapstructure:"server"`

	// Location and EnvPrefix record where this snapshot came from.
	Location  string `mapstructure:"-"`
	EnvPrefix string `mapstructure:"-"`
}

type DatabaseSettings struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type LoggingSettings struct {
	LogLevel string `mapstructure:"log_level"`
}

// TracingSettings names a collector for deployment tooling. The server does
// not export spans; `check` only reports the endpoint.
type TracingSettings struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// LoginSettings throttles POST /login per client address.
type LoginSettings struct {
	RatePerMinute float64 `mapstructure:"rate_per_minute"`
	Burst         int     `mapstructure:"burst"`
}

type ServerSettings struct {
	ReadTimeoutSeconds  int `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout_seconds"`
	// RequestTimeoutSeconds bounds the handler context of each request.
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

var defaults = map[string]interface{}{
	"env":                            "production",
	"port":                           8080,
	"database.url":                   "",
	"database.max_conns":             10,
	"database.min_conns":             1,
	"logging.log_level":              "info",
	"token_secret":                   "",
	"token_timeout_seconds":          3600,
	"tracing.otlp_endpoint":          "",
	"login.rate_per_minute":          30,
	"login.burst":                    10,
	"server.read_timeout_seconds":    15,
	"server.write_timeout_seconds":   30,
	"server.request_timeout_seconds": 20,
}

func newViper(location string) *viper.Viper {
	v := viper.New()
	if location != "" {
		v.SetConfigFile(location)
	}
	v.SetEnvPrefix(EnvPrefix + "_")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	return v
}

// Load reads the config file at location (a missing file is tolerated) and
// applies DOC__ environment overrides on top of it.
func Load(location string) (*Settings, error) {
	return read(newViper(location), location)
}

func read(v *viper.Viper, location string) (*Settings, error) {
	if location != "" {
		if err := v.ReadInConfig(); err != nil && !isMissingFile(err) {
			return nil, fmt.Errorf("read config %s: %w", location, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	s.Location = location
	s.EnvPrefix = EnvPrefix
	return s, nil
}

func isMissingFile(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate checks the settings every database-backed command needs.
func (s *Settings) Validate() error {
	if s.Database.URL == "" {
		return fmt.Errorf("database.url is required (set %s__DATABASE__URL)", EnvPrefix)
	}
	if s.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be at least 1, got %d", s.Database.MaxConns)
	}
	if s.Database.MinConns < 0 || s.Database.MinConns > s.Database.MaxConns {
		return fmt.Errorf("database.min_conns must be between 0 and %d, got %d", s.Database.MaxConns, s.Database.MinConns)
	}
	if _, err := zerolog.ParseLevel(s.Logging.LogLevel); err != nil {
		return fmt.Errorf("logging.log_level: %w", err)
	}
	return nil
}

// ValidateAuth checks the token settings required to serve the API.
func (s *Settings) ValidateAuth() error {
	if len(s.TokenSecret) < minSecretLength {
		return fmt.Errorf("token_secret must be at least %d bytes (set %s__TOKEN_SECRET)", minSecretLength, EnvPrefix)
	}
	if s.TokenTimeoutSeconds <= 0 {
		return fmt.Errorf("token_timeout_seconds must be positive, got %d", s.TokenTimeoutSeconds)
	}
	return nil
}

func (s *Settings) IsDev() bool {
	return s.Env == "development"
}

// Level returns the configured log level, falling back to info.
func (s *Settings) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(s.Logging.LogLevel)
	if err != nil || s.Logging.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// Store holds the current settings snapshot. Readers call Load once per
// request and work on the returned copy; reloads swap the pointer.
type Store struct {
	current  atomic.Pointer[Settings]
	v        *viper.Viper
	location string
}

// NewStore loads the initial snapshot and validates it with check.
func NewStore(location string, check func(*Settings) error) (*Store, error) {
	st := &Store{v: newViper(location), location: location}
	s, err := read(st.v, location)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(s); err != nil {
			return nil, err
		}
	}
	st.current.Store(s)
	return st, nil
}

// NewStaticStore wraps a fixed snapshot. Watch is a no-op on it.
func NewStaticStore(s Settings) *Store {
	st := &Store{}
	st.current.Store(&s)
	return st
}

func (st *Store) Load() Settings {
	return *st.current.Load()
}

// Swap replaces the current snapshot.
func (st *Store) Swap(s Settings) {
	st.current.Store(&s)
}

// Watch reloads the snapshot whenever the config file changes. A reload that
// fails check is reported through onReload and the old snapshot is kept.
func (st *Store) Watch(check func(*Settings) error, onReload func(*Settings, error)) {
	if st.v == nil || st.location == "" {
		return
	}
	st.v.OnConfigChange(func(fsnotify.Event) {
		next, err := read(st.v, st.location)
		if err == nil && check != nil {
			err = check(next)
		}
		if err == nil {
			st.current.Store(next)
		}
		if onReload != nil {
			onReload(next, err)
		}
	})
	st.v.WatchConfig()
}
