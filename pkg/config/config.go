package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-merge/pkg/models"
)

// Storage backends for uploaded-file bytes.
const (
	StorageBackendLocal = "local"
	StorageBackendMinio = "minio"
)

// Config holds all configuration for ekaya-merge.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// MigrationsPath is the directory holding the golang-migrate SQL files.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`

	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Storage  StorageConfig  `yaml:"storage"`
	Merge    MergeConfig    `yaml:"merge"`
	Tenant   TenantConfig   `yaml:"tenant"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:"https://auth.ekaya.ai=https://auth.ekaya.ai/.well-known/jwks.json"`

	// Audience, if set, must appear in every token's aud claim.
	Audience string `yaml:"audience" env:"AUTH_AUDIENCE" env-default:"merge"`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_merge"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// StorageConfig selects where uploaded dataset bytes live.
type StorageConfig struct {
	Backend        string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"local"`
	LocalDir       string `yaml:"local_dir" env:"STORAGE_LOCAL_DIR" env-default:"./data/uploads"`
	Endpoint       string `yaml:"endpoint" env:"STORAGE_ENDPOINT" env-default:"localhost:9000"`
	Bucket         string `yaml:"bucket" env:"STORAGE_BUCKET" env-default:"ekaya-merge-uploads"`
	UseSSL         bool   `yaml:"use_ssl" env:"STORAGE_USE_SSL" env-default:"false"`
	AccessKeyID    string `yaml:"-" env:"STORAGE_ACCESS_KEY_ID"`     // Secret - not in YAML
	SecretKey      string `yaml:"-" env:"STORAGE_SECRET_ACCESS_KEY"` // Secret - not in YAML
	MaxObjectBytes int64  `yaml:"max_object_bytes" env:"STORAGE_MAX_OBJECT_BYTES" env-default:"67108864"`
}

// MergeConfig bounds merge requests.
type MergeConfig struct {
	DefaultLimit int `yaml:"default_limit" env:"MERGE_DEFAULT_LIMIT" env-default:"100"`
	MaxLimit     int `yaml:"max_limit" env:"MERGE_MAX_LIMIT" env-default:"10000"`
	// NullPadding is "observed" or "selected"; see the join package.
	NullPadding string `yaml:"null_padding" env:"MERGE_NULL_PADDING" env-default:"observed"`
}

// TenantConfig declares the live entities and which of them are tenant-scoped.
// Entities may be listed inline or loaded from RegistryPath; the file wins when set.
type TenantConfig struct {
	RegistryPath string                    `yaml:"registry_path" env:"TENANT_REGISTRY_PATH" env-default:""`
	Entities     []models.EntityDefinition `yaml:"entities"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit config path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

func (c *Config) parseComplexFields() error {
	c.Auth.JWKSEndpoints = parseJWKSEndpoints(c.Auth.JWKSEndpointsStr)

	if c.Tenant.RegistryPath != "" {
		entities, err := LoadEntities(c.Tenant.RegistryPath)
		if err != nil {
			return err
		}
		c.Tenant.Entities = entities
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case StorageBackendLocal, StorageBackendMinio:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q",
			StorageBackendLocal, StorageBackendMinio, c.Storage.Backend)
	}

	switch c.Merge.NullPadding {
	case "observed", "selected":
	default:
		return fmt.Errorf("merge.null_padding must be \"observed\" or \"selected\", got %q", c.Merge.NullPadding)
	}

	if c.Merge.DefaultLimit <= 0 || c.Merge.MaxLimit <= 0 {
		return fmt.Errorf("merge limits must be positive")
	}
	if c.Merge.DefaultLimit > c.Merge.MaxLimit {
		return fmt.Errorf("merge.default_limit (%d) exceeds merge.max_limit (%d)",
			c.Merge.DefaultLimit, c.Merge.MaxLimit)
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	for _, pair := range strings.Split(value, ",") {
		issuer, jwksURL, ok := strings.Cut(pair, "=")
		if ok {
			endpoints[strings.TrimSpace(issuer)] = strings.TrimSpace(jwksURL)
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL URL for pgx and golang-migrate.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
