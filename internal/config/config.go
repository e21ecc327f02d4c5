// Package config builds the reelserver configuration from defaults, an
// optional config file, REELSERVER_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "reelserver"

// EnvKeyReplacer maps config keys to environment variable names.
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Config is the complete server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Media    MediaConfig    `mapstructure:"media"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Rotation RotationConfig `mapstructure:"rotation"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Contact  ContactConfig  `mapstructure:"contact"`
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Verbose  bool           `mapstructure:"verbose"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// MediaConfig locates the video files.
type MediaConfig struct {
	Root         string `mapstructure:"root"`
	Pattern      string `mapstructure:"pattern"`
	CacheControl string `mapstructure:"cache_control"`
}

// CatalogConfig locates the project catalog.
type CatalogConfig struct {
	// Path is a JSON file of projects. Empty derives the catalog from the
	// media library.
	Path     string        `mapstructure:"path"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// RotationConfig configures the featured carousel.
type RotationConfig struct {
	Window   int           `mapstructure:"window"`
	Interval time.Duration `mapstructure:"interval"`
}

// CORSConfig lists allowed origins.
type CORSConfig struct {
	Origins []string `mapstructure:"origins"`
}

// ContactConfig configures the contact relay.
type ContactConfig struct {
	SMTP         SMTPConfig `mapstructure:"smtp"`
	TestEndpoint bool       `mapstructure:"test_endpoint"`
}

// SMTPConfig holds outgoing mail settings.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// ClusterConfig enables Raft replication of the rotation when RaftID is set.
type ClusterConfig struct {
	RaftID string   `mapstructure:"raft_id"`
	Bind   string   `mapstructure:"bind"`
	Peers  []string `mapstructure:"peers"`
}

// Enabled reports whether cluster mode is configured.
func (c ClusterConfig) Enabled() bool {
	return c.RaftID != ""
}

// New returns a viper instance with defaults and environment bindings set.
// Config files are read through fs.
func New(fs afero.Fs) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()

	// Env values stay strings so list keys split on commas when decoded.
	for _, f := range Fields {
		v.SetDefault(f.Key, f.Value)
	}

	return v
}

// Load reads file (when non-empty) into v and decodes the result. The media
// root is made absolute.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.Media.Root)
	if err != nil {
		return nil, fmt.Errorf("media.root: %w", err)
	}
	cfg.Media.Root = root

	return &cfg, nil
}

// Validate checks the configuration. Errors name the offending key.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: %d out of range", c.Server.Port))
	}
	if c.Media.Root == "" {
		errs = append(errs, errors.New("media.root is required"))
	}
	if strings.Count(c.Media.Pattern, "{id}") != 1 {
		errs = append(errs, fmt.Errorf("media.pattern: %q must contain {id} exactly once", c.Media.Pattern))
	}
	if c.Catalog.Debounce < 0 {
		errs = append(errs, fmt.Errorf("catalog.debounce: %s is negative", c.Catalog.Debounce))
	}
	if c.Rotation.Window <= 0 {
		errs = append(errs, fmt.Errorf("rotation.window: %d must be positive", c.Rotation.Window))
	}
	if c.Rotation.Interval <= 0 {
		errs = append(errs, fmt.Errorf("rotation.interval: %s must be positive", c.Rotation.Interval))
	}
	if c.Contact.SMTP.Host != "" && (c.Contact.SMTP.Port < 1 || c.Contact.SMTP.Port > 65535) {
		errs = append(errs, fmt.Errorf("contact.smtp.port: %d out of range", c.Contact.SMTP.Port))
	}
	if c.Cluster.Enabled() && c.Cluster.Bind == "" {
		errs = append(errs, errors.New("cluster.bind is required when cluster.raft_id is set"))
	}

	return errors.Join(errs...)
}
