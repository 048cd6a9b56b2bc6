// Package config holds all application configuration in a structured way,
// loaded once at startup from environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App          AppConfig
	Paths        PathsConfig
	Database     DatabaseConfig
	CloudAPI     CloudAPIConfig
	Security     SecurityConfig
	Integrations IntegrationsConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Statics  string
	Storages string
}

type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string // file path for SQLite, DB name for Postgres
	ValkeyEnabled   bool
	ValkeyAddress   string
	ValkeyPassword  string
	ValkeyDB        int
	ValkeyKeyPrefix string
}

// CloudAPIConfig holds the platform-level settings for talking to the
// WhatsApp Cloud API and verifying its inbound webhooks (§2, §7). Per-tenant
// credentials (access token, phone number id, waba id) live in domain/tenant,
// not here — this is the one thing every tenant shares.
type CloudAPIConfig struct {
	GraphVersion string
	AppSecret    string // validates X-Hub-Signature-256 on every inbound webhook
	VerifyToken  string // answered back during the GET handshake (§7)
	AppID        string // scopes the resumable upload session endpoint (/{app-id}/uploads)
}

type SecurityConfig struct {
	JWTSecret string
	// EncryptionKey encrypts tenant secrets (access token, verify secret,
	// external secret) at rest. Empty disables encryption and stores them
	// as plain text, which pkg/crypto treats as a legacy format on read.
	EncryptionKey string
}

// IntegrationsConfig holds the platform-level credentials the flow
// interpreter's api/sql/google_sheet/drive_image_lookup/payment/shopify/
// woocommerce nodes need. These are process-wide, not per-tenant: a
// deployment registers one Sheets token, one Drive key, and one set of
// payment/commerce stores, and every tenant's flows address them by name.
// PaymentGatewaysJSON/CommerceStoresJSON hold raw JSON so this package
// never has to import the integrations client types it's configuring.
type IntegrationsConfig struct {
	SheetsAccessToken  string
	DriveAPIKey        string // empty triggers the HTML-scrape fallback
	PaymentGatewaysJSON string // {"<provider>": {"ChargeURL": "...", "APIKey": "..."}}
	CommerceStoresJSON  string // {"<platform>": {"BaseURL": "...", "APIKey": "...", "Password": "..."}}
}

// Global provides access to the loaded configuration for code that can't
// easily take it as a constructor argument (e.g. package-level helpers).
var Global *Config

// LoadConfig loads configuration from environment variables, falling back
// to development-friendly defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	debug := getEnvBool("APP_DEBUG", false)

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:     getEnv("APP_VERSION", "v1.0.0"),
		Port:        getEnv("APP_PORT", "3000"),
		Debug:       debug,
		Environment: getEnv("APP_ENV", "development"),
		BasePath:    getEnv("APP_BASE_PATH", ""),
		BaseUrl:     getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Statics:  getEnv("PATH_STATICS", "statics"),
		Storages: baseDir,
	}

	dbDriver := getEnv("DB_DRIVER", "sqlite")
	dbCfg := DatabaseConfig{
		Driver:          dbDriver,
		Name:            getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "platform.db")),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		ValkeyEnabled:   getEnvBool("VALKEY_ENABLED", false),
		ValkeyAddress:   getEnv("VALKEY_ADDRESS", "localhost:6379"),
		ValkeyPassword:  getEnv("VALKEY_PASSWORD", ""),
		ValkeyDB:        getEnvInt("VALKEY_DB", 0),
		ValkeyKeyPrefix: getEnv("VALKEY_KEY_PREFIX", "waplatform:"),
	}

	cloudCfg := CloudAPIConfig{
		GraphVersion: getEnv("CLOUDAPI_GRAPH_VERSION", "v21.0"),
		AppSecret:    getEnv("CLOUDAPI_APP_SECRET", ""),
		VerifyToken:  getEnv("CLOUDAPI_VERIFY_TOKEN", ""),
		AppID:        getEnv("CLOUDAPI_APP_ID", ""),
	}

	integrationsCfg := IntegrationsConfig{
		SheetsAccessToken:   getEnv("INTEGRATIONS_SHEETS_ACCESS_TOKEN", ""),
		DriveAPIKey:         getEnv("INTEGRATIONS_DRIVE_API_KEY", ""),
		PaymentGatewaysJSON: getEnv("INTEGRATIONS_PAYMENT_GATEWAYS_JSON", "{}"),
		CommerceStoresJSON:  getEnv("INTEGRATIONS_COMMERCE_STORES_JSON", "{}"),
	}

	cfg := &Config{
		App:          appCfg,
		Paths:        pathsCfg,
		Database:     dbCfg,
		CloudAPI:     cloudCfg,
		Security: SecurityConfig{
			JWTSecret:     getEnv("JWT_SECRET", "changeme_please_change_me_in_prod"),
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		Integrations: integrationsCfg,
	}

	Global = cfg
	return cfg, nil
}
