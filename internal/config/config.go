package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "TORTILLA"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabaseDriver = DatabaseDriverSQLite
	defaultDatabasePath   = "tortilla.db"
	defaultLogLevel       = "info"
	defaultTimezone       = "Local"
	defaultStorageDriver  = StorageDriverLocal
	defaultStorageDir     = "uploads"
	defaultPublicBaseURL  = "/uploads"
	defaultAllowedOrigins = "*"
)

const (
	DatabaseDriverSQLite   = "sqlite"
	DatabaseDriverMySQL    = "mysql"
	DatabaseDriverPostgres = "postgres"

	StorageDriverLocal = "local"
	StorageDriverOSS   = "oss"
	StorageDriverNone  = "none"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	LogLevel       string
	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string
	Timezone       string
	AllowedOrigins []string
	Storage        StorageConfig
}

// StorageConfig selects where rating photos are written.
type StorageConfig struct {
	Driver        string
	LocalDir      string
	PublicBaseURL string
	OSS           OSSConfig
}

type OSSConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	AccessKeySecret string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("app.timezone", defaultTimezone)
	configViper.SetDefault("cors.allowed_origins", defaultAllowedOrigins)
	configViper.SetDefault("storage.driver", defaultStorageDriver)
	configViper.SetDefault("storage.local_dir", defaultStorageDir)
	configViper.SetDefault("storage.public_base_url", defaultPublicBaseURL)
	configViper.SetDefault("storage.oss.endpoint", "")
	configViper.SetDefault("storage.oss.region", "")
	configViper.SetDefault("storage.oss.bucket", "")
	configViper.SetDefault("storage.oss.access_key_id", "")
	configViper.SetDefault("storage.oss.access_key_secret", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		LogLevel:       configViper.GetString("log.level"),
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		Timezone:       configViper.GetString("app.timezone"),
		AllowedOrigins: splitList(configViper.GetString("cors.allowed_origins")),
		Storage: StorageConfig{
			Driver:        strings.ToLower(strings.TrimSpace(configViper.GetString("storage.driver"))),
			LocalDir:      configViper.GetString("storage.local_dir"),
			PublicBaseURL: strings.TrimRight(configViper.GetString("storage.public_base_url"), "/"),
			OSS: OSSConfig{
				Endpoint:        configViper.GetString("storage.oss.endpoint"),
				Region:          configViper.GetString("storage.oss.region"),
				Bucket:          configViper.GetString("storage.oss.bucket"),
				AccessKeyID:     configViper.GetString("storage.oss.access_key_id"),
				AccessKeySecret: configViper.GetString("storage.oss.access_key_secret"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("http.address is required")
	}
	switch c.DatabaseDriver {
	case DatabaseDriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case DatabaseDriverMySQL, DatabaseDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	switch c.Storage.Driver {
	case StorageDriverNone:
	case StorageDriverLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required")
		}
	case StorageDriverOSS:
		oss := c.Storage.OSS
		if strings.TrimSpace(oss.Endpoint) == "" || strings.TrimSpace(oss.Region) == "" || strings.TrimSpace(oss.Bucket) == "" {
			return fmt.Errorf("storage.oss.endpoint, storage.oss.region and storage.oss.bucket are required")
		}
		if strings.TrimSpace(oss.AccessKeyID) == "" || strings.TrimSpace(oss.AccessKeySecret) == "" {
			return fmt.Errorf("storage.oss credentials are required")
		}
		if strings.TrimSpace(c.Storage.PublicBaseURL) == "" {
			return fmt.Errorf("storage.public_base_url is required")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	return nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
