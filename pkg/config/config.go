package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Config is the process-wide configuration of the bridge. It is assembled once
// by Load and must not be modified afterwards; request handlers share it
// read-only.
type Config struct {
	PathPrefix        string   `mapstructure:"path_prefix" yaml:"pathPrefix"`
	Schema            string   `mapstructure:"default_schema" yaml:"defaultSchema"`
	Schemas           []string `mapstructure:"schemas" yaml:"schemas"`
	ExtraSearchPath   []string `mapstructure:"db_extra_search_path" yaml:"dbExtraSearchPath"`
	AllowLoginRoles   bool     `mapstructure:"allow_login_roles" yaml:"allowLoginRoles"`
	MaxRows           int      `mapstructure:"max_rows" yaml:"maxRows"`
	MaxBodyBytes      int64    `mapstructure:"max_body_bytes" yaml:"maxBodyBytes"`
	ListenAddr        string   `mapstructure:"listen_addr" yaml:"listenAddr"`
	MetricsAddr       string   `mapstructure:"metrics_addr" yaml:"metricsAddr"`
	CORSOrigins       []string `mapstructure:"cors_origins" yaml:"corsOrigins"`
	CustomRelations   any      `mapstructure:"custom_relations" yaml:"customRelations,omitempty"`
	CustomPermissions any      `mapstructure:"custom_permissions" yaml:"customPermissions,omitempty"`
	DB                DBConfig `mapstructure:"db" yaml:"db"`
}

// DBConfig describes how to reach the PostgreSQL backend.
type DBConfig struct {
	ConnString     string `mapstructure:"conn_string" yaml:"connString,omitempty"`
	User           string `mapstructure:"user" yaml:"user,omitempty"`
	Password       string `mapstructure:"password" yaml:"password,omitempty"`
	Host           string `mapstructure:"host" yaml:"host,omitempty"`
	Port           int    `mapstructure:"port" yaml:"port"`
	Name           string `mapstructure:"name" yaml:"name,omitempty"`
	ConnectRetries int    `mapstructure:"connect_retries" yaml:"connectRetries"`
}

var (
	ErrInvalidPrefix  = errors.New("path prefix must start with '/'")
	ErrInvalidMaxRows = errors.New("max rows must not be negative")
)

// envKeys maps viper keys to the environment variables the server has always
// been configured with.
var envKeys = map[string]string{
	"path_prefix":          "API_PATH_PREFIX",
	"default_schema":       "API_DEFAULT_SCHEMA",
	"schemas":              "API_SCHEMAS",
	"db_extra_search_path": "API_DB_EXTRA_SEARCH_PATH",
	"allow_login_roles":    "API_ALLOW_LOGIN_ROLES",
	"max_rows":             "API_MAX_ROWS",
	"max_body_bytes":       "API_MAX_BODY_BYTES",
	"listen_addr":          "API_LISTEN_ADDR",
	"metrics_addr":         "API_METRICS_ADDR",
	"cors_origins":         "API_CORS_ORIGINS",
	"db.conn_string":       "DB_CONN_STRING",
	"db.user":              "DB_USER",
	"db.password":          "DB_PASSWORD",
	"db.host":              "DB_HOST",
	"db.port":              "DB_PORT",
	"db.name":              "DB_NAME",
	"db.connect_retries":   "DB_CONNECT_RETRIES",
}

// numericKeys must parse as integers when set; a bad value stops startup.
var numericKeys = []string{"max_rows", "max_body_bytes", "db.port", "db.connect_retries"}

// listKeys hold comma-separated values.
var listKeys = []string{"schemas", "db_extra_search_path", "cors_origins"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("path_prefix", "/rest/v1/")
	v.SetDefault("default_schema", "public")
	v.SetDefault("schemas", []string{"public"})
	v.SetDefault("db_extra_search_path", []string{"public"})
	v.SetDefault("allow_login_roles", false)
	v.SetDefault("max_rows", 10)
	v.SetDefault("max_body_bytes", 1<<20)
	v.SetDefault("listen_addr", ":3001")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.connect_retries", 5)
}

// LoadDotEnv exports the variables of a dotenv file into the process
// environment. Variables already set win. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads config from an optional YAML file and the environment.
// Environment variables take precedence over the file.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pgbridge")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	for _, key := range numericKeys {
		if err := checkInt(v, key); err != nil {
			return nil, err
		}
	}

	// a comma list from the environment arrives as a single string
	for _, key := range listKeys {
		if s, ok := v.Get(key).(string); ok {
			v.Set(key, splitList(s))
		}
	}

	// only the literal "true" enables login roles
	if s, ok := v.Get("allow_login_roles").(string); ok {
		v.Set("allow_login_roles", s == "true")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func checkInt(v *viper.Viper, key string) error {
	s, ok := v.Get(key).(string)
	if !ok {
		return nil
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return fmt.Errorf("invalid value %q for %s: %w", s, envKeys[key], err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports whether the configuration can serve requests.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.PathPrefix, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPrefix, c.PathPrefix)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxRows, c.MaxRows)
	}
	return nil
}

// DSN returns the connection string for the backend database. An explicit
// DB_CONN_STRING wins over the individual parts.
func (c DBConfig) DSN() string {
	if c.ConnString != "" {
		return c.ConnString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String()
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	if c.DB.Password != "" {
		c.DB.Password = "********"
	}
	if c.DB.ConnString != "" {
		if u, err := url.Parse(c.DB.ConnString); err == nil && u.User != nil {
			c.DB.ConnString = u.Redacted()
		}
	}
	return c
}
