package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Flickr      FlickrConfig      `yaml:"flickr"`
	Cache       CacheConfig       `yaml:"cache"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Locations   LocationsConfig   `yaml:"locations"`
	JWT         JWTConfig         `yaml:"jwt"`
	APNS        APNSConfig        `yaml:"apns"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds database configuration.
// Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver     string `yaml:"driver"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	DBName     string `yaml:"dbname"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

// FlickrConfig holds the photo search API settings
type FlickrConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Extras  string        `yaml:"extras"`
	PerPage int           `yaml:"per_page"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig holds the on-disk image cache settings
type CacheConfig struct {
	Dir                string        `yaml:"dir"`
	MaxImageBytes      int64         `yaml:"max_image_bytes"`
	PerHostConcurrency int           `yaml:"per_host_concurrency"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
}

// ObjectStoreConfig holds the persistent object store settings.
// Driver is "s3", "minio" or empty to disable the mirror.
type ObjectStoreConfig struct {
	Driver    string `yaml:"driver"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// LocationsConfig controls pin de-duplication
type LocationsConfig struct {
	CoordinateTolerance float64 `yaml:"coordinate_tolerance"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// APNSConfig holds push notification settings. Push is disabled when KeyFile is empty.
type APNSConfig struct {
	KeyFile    string `yaml:"key_file"`
	KeyID      string `yaml:"key_id"`
	TeamID     string `yaml:"team_id"`
	Topic      string `yaml:"topic"`
	Production bool   `yaml:"production"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every optional value filled in
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:     "sqlite",
			Port:       5432,
			SSLMode:    "disable",
			SQLitePath: "virtual-tourist.db",
		},
		Flickr: FlickrConfig{
			BaseURL: "https://api.flickr.com/services/rest/",
			Extras:  "url_c",
			PerPage: 100,
			Timeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Dir:                "photo-cache",
			MaxImageBytes:      20 << 20,
			PerHostConcurrency: 4,
			FetchTimeout:       60 * time.Second,
		},
		ObjectStore: ObjectStoreConfig{
			Prefix: "photos/",
			Region: "us-east-1",
		},
		Locations: LocationsConfig{
			CoordinateTolerance: 1e-6,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports missing required values
func (c *Config) Validate() error {
	var errs []error
	if c.Flickr.APIKey == "" {
		errs = append(errs, errors.New("flickr.api_key is required"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	if c.Flickr.PerPage <= 0 || c.Flickr.PerPage > 500 {
		errs = append(errs, fmt.Errorf("flickr.per_page must be in [1, 500], got %d", c.Flickr.PerPage))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	switch c.ObjectStore.Driver {
	case "":
	case "s3", "minio":
		if c.ObjectStore.Bucket == "" {
			errs = append(errs, errors.New("object_store.bucket is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown object_store.driver %q", c.ObjectStore.Driver))
	}
	if c.Locations.CoordinateTolerance < 0 {
		errs = append(errs, errors.New("locations.coordinate_tolerance must not be negative"))
	}
	return errors.Join(errs...)
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
