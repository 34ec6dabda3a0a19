// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads holoauth configuration from defaults, a YAML file,
// command-line flags and HOLOAUTH_ environment variables, in that order.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/logging"
	"github.com/holomush/holoauth/internal/notify"
	"github.com/holomush/holoauth/internal/xdg"
)

// EnvPrefix prefixes every environment variable, e.g. HOLOAUTH_AUTH_JWT_SECRET.
const EnvPrefix = "HOLOAUTH_"

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
)

// Mail drivers.
const (
	MailLog  = "log"
	MailSMTP = "smtp"
)

// Config is the complete holoauth configuration.
type Config struct {
	Log     LogConfig     `koanf:"log" envPrefix:"LOG_"`
	HTTP    HTTPConfig    `koanf:"http" envPrefix:"HTTP_"`
	Metrics MetricsConfig `koanf:"metrics" envPrefix:"METRICS_"`
	Store   StoreConfig   `koanf:"store" envPrefix:"STORE_"`
	Auth    AuthConfig    `koanf:"auth" envPrefix:"AUTH_"`
	Mail    MailConfig    `koanf:"mail" envPrefix:"MAIL_"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" env:"FORMAT"`
	Level  string `koanf:"level" env:"LEVEL"`
}

// HTTPConfig configures the public HTTP server.
type HTTPConfig struct {
	Addr              string        `koanf:"addr" env:"ADDR"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" env:"READ_HEADER_TIMEOUT"`
	RequestTimeout    time.Duration `koanf:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// MetricsConfig configures the observability server. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr" env:"ADDR"`
}

// StoreConfig selects and configures the account store.
type StoreConfig struct {
	Driver        string `koanf:"driver" env:"DRIVER"`
	PostgresURL   string `koanf:"postgres_url" env:"POSTGRES_URL"`
	MongoURI      string `koanf:"mongo_uri" env:"MONGO_URI"`
	MongoDatabase string `koanf:"mongo_database" env:"MONGO_DATABASE"`
	SQLitePath    string `koanf:"sqlite_path" env:"SQLITE_PATH"`
	AutoMigrate   bool   `koanf:"auto_migrate" env:"AUTO_MIGRATE"`
}

// AuthConfig configures the auth service and session issuer.
type AuthConfig struct {
	PublicURL     string        `koanf:"public_url" env:"PUBLIC_URL"`
	JWTSecret     string        `koanf:"jwt_secret" env:"JWT_SECRET"`
	SessionTTL    time.Duration `koanf:"session_ttl" env:"SESSION_TTL"`
	ResetTokenTTL time.Duration `koanf:"reset_token_ttl" env:"RESET_TOKEN_TTL"`
	UniformErrors bool          `koanf:"uniform_errors" env:"UNIFORM_ERRORS"`
}

// MailConfig selects and configures email delivery.
type MailConfig struct {
	Driver     string        `koanf:"driver" env:"DRIVER"`
	From       string        `koanf:"from" env:"FROM"`
	Host       string        `koanf:"host" env:"HOST"`
	Port       int           `koanf:"port" env:"PORT"`
	Username   string        `koanf:"username" env:"USERNAME"`
	Password   string        `koanf:"password" env:"PASSWORD"`
	TLS        string        `koanf:"tls" env:"TLS"`
	Timeout    time.Duration `koanf:"timeout" env:"TIMEOUT"`
	MaxRetries uint64        `koanf:"max_retries" env:"MAX_RETRIES"`
}

// Default returns the compiled-in defaults.
func Default() Config {
	return Config{
		Log: LogConfig{Format: "json", Level: "info"},
		HTTP: HTTPConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 10 * time.Second,
			RequestTimeout:    15 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Store: StoreConfig{
			Driver:        DriverPostgres,
			MongoDatabase: "holoauth",
			SQLitePath:    xdg.SQLiteFile(),
			AutoMigrate:   true,
		},
		Auth: AuthConfig{
			PublicURL:     "http://localhost:5000/",
			SessionTTL:    auth.DefaultSessionTTL,
			ResetTokenTTL: auth.DefaultResetTokenTTL,
		},
		Mail: MailConfig{
			Driver:     MailLog,
			From:       "holoauth@localhost",
			Port:       notify.DefaultSMTPPort,
			TLS:        notify.TLSMandatory,
			Timeout:    notify.DefaultSMTPTimeout,
			MaxRetries: 3,
		},
	}
}

// RegisterFlags adds the commonly overridden keys to fs. Flag names are
// the dotted config keys.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("log.format", d.Log.Format, "log format (json|text)")
	fs.String("log.level", d.Log.Level, "log level (debug|info|warn|error)")
	fs.String("http.addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("metrics.addr", d.Metrics.Addr, "metrics listen address (empty disables)")
	fs.String("store.driver", d.Store.Driver, "account store (postgres|mongo|sqlite)")
	fs.Bool("store.auto_migrate", d.Store.AutoMigrate, "apply schema migrations on startup")
	fs.String("auth.public_url", d.Auth.PublicURL, "public base URL used in email links, with trailing slash")
	fs.Bool("auth.uniform_errors", d.Auth.UniformErrors, "hide whether usernames and emails exist")
	fs.String("mail.driver", d.Mail.Driver, "mail delivery (log|smtp)")
}

// LoadOptions controls Load.
type LoadOptions struct {
	// Path is an explicit config file. When empty, the XDG default is used if it exists.
	Path string
	// Flags, if set, must have been populated by RegisterFlags.
	Flags *pflag.FlagSet
	// Environ overrides the process environment, mainly for tests.
	Environ map[string]string
}

// Load builds a Config. It does not validate; callers validate the sections they use.
func Load(opts LoadOptions) (Config, error) {
	k := koanf.New(".")

	path, explicit := opts.Path, opts.Path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.Provider(opts.Flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "koanf").Wrap(err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: opts.Environ}); err != nil {
		return Config{}, oops.Code("CONFIG_LOAD_FAILED").With("source", "env").Wrap(err)
	}

	return cfg, nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// Validate reports the first invalid setting as a CONFIG_INVALID error.
func (c Config) Validate() error {
	if !logging.ValidFormat(c.Log.Format) {
		return invalid("log.format", "log format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", "unknown log level %q", c.Log.Level)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Mail.Validate()
}

// Validate checks the store section on its own, for commands that only touch storage.
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case DriverPostgres:
		if c.PostgresURL == "" {
			return invalid("store.postgres_url", "postgres url is required for the postgres store")
		}
	case DriverMongo:
		if c.MongoURI == "" || c.MongoDatabase == "" {
			return invalid("store.mongo_uri", "mongo uri and database are required for the mongo store")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return invalid("store.sqlite_path", "sqlite path is required for the sqlite store")
		}
	default:
		return invalid("store.driver", "store driver must be postgres, mongo or sqlite, got %q", c.Driver)
	}
	return nil
}

// Validate checks the auth section.
func (c AuthConfig) Validate() error {
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" || !strings.HasSuffix(c.PublicURL, "/") {
		return invalid("auth.public_url", "public url must be an absolute URL ending in /, got %q", c.PublicURL)
	}
	if len(c.JWTSecret) < auth.MinSigningKeyBytes {
		return invalid("auth.jwt_secret", "jwt secret must be at least %d bytes", auth.MinSigningKeyBytes)
	}
	if c.SessionTTL <= 0 {
		return invalid("auth.session_ttl", "session ttl must be positive")
	}
	if c.ResetTokenTTL <= 0 {
		return invalid("auth.reset_token_ttl", "reset token ttl must be positive")
	}
	return nil
}

// Validate checks the mail section.
func (c MailConfig) Validate() error {
	switch c.Driver {
	case MailLog:
	case MailSMTP:
		if c.Host == "" || c.From == "" {
			return invalid("mail.host", "mail host and from are required for smtp delivery")
		}
	default:
		return invalid("mail.driver", "mail driver must be log or smtp, got %q", c.Driver)
	}
	return nil
}
