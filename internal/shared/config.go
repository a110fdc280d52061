package shared

import (
	_ "embed"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML or YAML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials" yaml:"credentials"`
	Accounts    AccountsConfig    `toml:"accounts" yaml:"accounts"`
	API         APIConfig         `toml:"api" yaml:"api"`
	Cache       CacheConfig       `toml:"cache" yaml:"cache"`
	Database    DatabaseConfig    `toml:"database" yaml:"database"`
	Server      ServerConfig      `toml:"server" yaml:"server"`
	Logging     LoggingConfig     `toml:"logging" yaml:"logging"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify" yaml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" yaml:"client_id" validate:"required"`
	ClientSecret string `toml:"client_secret" yaml:"client_secret" validate:"required"`
	RedirectURI  string `toml:"redirect_uri" yaml:"redirect_uri" default:"http://127.0.0.1:3000/callback" validate:"required,url"`
}

// AccountsConfig names the account identity used by each operation.
//
// An empty per-operation identity falls back to Default.
type AccountsConfig struct {
	Default string `toml:"default" yaml:"default"`
	Export  string `toml:"export" yaml:"export"`
	Import  string `toml:"import" yaml:"import"`
	Erase   string `toml:"erase" yaml:"erase"`
}

// APIConfig tunes the provider client: pacing, retry ceilings and batch sizes.
type APIConfig struct {
	BaseURL             string  `toml:"base_url" yaml:"base_url" default:"https://api.spotify.com/v1" validate:"required,url"`
	RequestsPerSecond   float64 `toml:"requests_per_second" yaml:"requests_per_second" default:"10" validate:"gt=0"`
	Burst               int     `toml:"burst" yaml:"burst" default:"1" validate:"gte=1"`
	MaxRateLimitRetries int     `toml:"max_rate_limit_retries" yaml:"max_rate_limit_retries" default:"3" validate:"gte=0,lte=10"`
	MaxTransientRetries int     `toml:"max_transient_retries" yaml:"max_transient_retries" default:"2" validate:"gte=0,lte=10"`
	BaseDelayMS         int     `toml:"base_delay_ms" yaml:"base_delay_ms" default:"1000" validate:"gt=0"`
	MaxDelayMS          int     `toml:"max_delay_ms" yaml:"max_delay_ms" default:"30000" validate:"gtefield=BaseDelayMS"`
	PlaylistBatchSize   int     `toml:"playlist_batch_size" yaml:"playlist_batch_size" default:"100" validate:"gte=1,lte=100"`
	LibraryBatchSize    int     `toml:"library_batch_size" yaml:"library_batch_size" default:"50" validate:"gte=1,lte=50"`
	ImportPauseMS       int     `toml:"import_pause_ms" yaml:"import_pause_ms" default:"500" validate:"gte=0"`
	AuthTimeoutSeconds  int     `toml:"auth_timeout_seconds" yaml:"auth_timeout_seconds" default:"120" validate:"gte=1"`
}

// CacheConfig locates the per-identity token cache.
type CacheConfig struct {
	Dir string `toml:"dir" yaml:"dir" default:".spotsync" validate:"required"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" yaml:"path" default:"./spotsync.db" validate:"required"`
	MaxOpenConns int    `toml:"max_open_conns" yaml:"max_open_conns" default:"1" validate:"gte=1"`
	MaxIdleConns int    `toml:"max_idle_conns" yaml:"max_idle_conns" default:"1" validate:"gte=0"`
}

// ServerConfig contains settings for the local OAuth callback server.
type ServerConfig struct {
	Host string `toml:"host" yaml:"host" default:"127.0.0.1" validate:"required"`
	Port int    `toml:"port" yaml:"port" default:"3000" validate:"gte=1,lte=65535"`
}

// LoggingConfig selects the log level and an optional rotating log file.
type LoggingConfig struct {
	Level      string `toml:"level" yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days" default:"28" validate:"gte=0"`
	Compress   bool   `toml:"compress" yaml:"compress"`
}

// envOverrides mirrors the variables accepted from the environment or a .env file.
type envOverrides struct {
	ClientID     string `mapstructure:"CLIENT_ID"`
	ClientSecret string `mapstructure:"CLIENT_SECRET"`
	RedirectURI  string `mapstructure:"REDIRECT_URI"`
	Username     string `mapstructure:"SPOTIFY_USERNAME"`
	Export       string `mapstructure:"EXPORT_USERNAME"`
	Import       string `mapstructure:"IMPORT_USERNAME"`
	Erase        string `mapstructure:"ERASE_USERNAME"`
}

var envKeys = []string{
	"CLIENT_ID", "CLIENT_SECRET", "REDIRECT_URI",
	"SPOTIFY_USERNAME", "EXPORT_USERNAME", "IMPORT_USERNAME", "ERASE_USERNAME",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads and parses a configuration file from the specified path.
//
// Files ending in .yaml or .yml are decoded as YAML, everything else as TOML.
// Missing values are filled from struct defaults, then every section except
// credentials is validated.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = toml.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "failed to parse %s: %v", path, err)
	}

	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to apply config defaults")
	}

	if err := validate.StructExcept(config, "Credentials"); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
	}

	return &config, nil
}

// DefaultConfig returns a Config populated only from struct defaults.
func DefaultConfig() *Config {
	var config Config
	if err := defaults.Set(&config); err != nil {
		panic("failed to apply config defaults: " + err.Error())
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// ApplyEnv overlays values from the given .env files and then the process environment.
//
// Files that do not exist are skipped. Process variables win over file values.
func (c *Config) ApplyEnv(files ...string) error {
	values := map[string]string{}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		fileValues, err := godotenv.Read(f)
		if err != nil {
			return errors.Wrapf(err, "failed to read env file %s", f)
		}
		maps.Copy(values, fileValues)
	}

	for _, key := range envKeys {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			values[key] = v
		}
	}

	var env envOverrides
	if err := mapstructure.Decode(values, &env); err != nil {
		return errors.Wrap(err, "failed to decode environment")
	}

	setIf(&c.Credentials.Spotify.ClientID, env.ClientID)
	setIf(&c.Credentials.Spotify.ClientSecret, env.ClientSecret)
	setIf(&c.Credentials.Spotify.RedirectURI, env.RedirectURI)
	setIf(&c.Accounts.Default, env.Username)
	setIf(&c.Accounts.Export, env.Export)
	setIf(&c.Accounts.Import, env.Import)
	setIf(&c.Accounts.Erase, env.Erase)
	return nil
}

// Validate checks the whole configuration, credentials included.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Credentials); err != nil {
		return errors.WithHint(
			errors.Wrapf(ErrMissingCredentials, "%v", err),
			"set client_id and client_secret under [credentials.spotify] or export CLIENT_ID and CLIENT_SECRET",
		)
	}
	if err := validate.StructExcept(c, "Credentials"); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "%v", err)
	}
	return nil
}

// Identity returns the configured account identity for op ("export", "import" or "erase").
func (a AccountsConfig) Identity(op string) string {
	var id string
	switch op {
	case "export":
		id = a.Export
	case "import":
		id = a.Import
	case "erase":
		id = a.Erase
	}
	if id == "" {
		return a.Default
	}
	return id
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
