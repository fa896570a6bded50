// Package config provides XML-based configuration with environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the config file created next to the executable on first run.
const FileName = "PocketTelemetry.config"

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"PocketTelemetry"`

	// Server configuration
	Server ServerConfig `xml:"Server"`

	// Storage configuration
	Storage StorageConfig `xml:"Storage"`

	// Remote service configuration
	Telemetry TelemetryConfig `xml:"Telemetry"`

	// Workspace lifecycle configuration
	Session SessionConfig `xml:"Session"`

	// Result publishing configuration
	Publish PublishConfig `xml:"Publish"`

	// Advanced options
	Advanced AdvancedConfig `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig contains local persistence settings
type StorageConfig struct {
	DataDirectory      string `xml:"DataDirectory"`
	PersistCredentials bool   `xml:"PersistCredentials"`
	// CatalogFile optionally replaces the built-in signal catalog.
	CatalogFile string `xml:"CatalogFile"`
}

// TelemetryConfig contains the token and telemetry endpoints
type TelemetryConfig struct {
	AuthBaseURL         string `xml:"AuthBaseURL"`
	TelemetryBaseURL    string `xml:"TelemetryBaseURL"`
	QueryTimeoutSeconds int    `xml:"QueryTimeoutSeconds"`
	EnableDevProxy      bool   `xml:"EnableDevProxy"`
}

// SessionConfig contains workspace cleanup settings
type SessionConfig struct {
	IdleTimeoutMinutes     int `xml:"IdleTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes"`
}

// PublishConfig contains MQTT result publishing settings
type PublishConfig struct {
	MQTTBroker   string `xml:"MQTTBroker"`
	MQTTClientID string `xml:"MQTTClientID"`
	MQTTUsername string `xml:"MQTTUsername"`
	MQTTPassword string `xml:"MQTTPassword"`
	TopicPrefix  string `xml:"TopicPrefix"`
	QoS          int    `xml:"QoS"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	EnableRequestLogging bool `xml:"EnableRequestLogging"`
	// StrictSignals rejects names and aggregations not in the catalog before execution.
	StrictSignals bool `xml:"StrictSignals"`
}

// DefaultAllowOrigins are the browser origins allowed by default.
var DefaultAllowOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
	"https://pocket-telemetry-frontend.onrender.com",
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: strings.Join(DefaultAllowOrigins, ","),
			ReadTimeout:  30,
			WriteTimeout: 240,
			IdleTimeout:  120,
			BodyLimit:    "1M",
		},
		Storage: StorageConfig{
			DataDirectory:      "./data",
			PersistCredentials: true,
		},
		Telemetry: TelemetryConfig{
			AuthBaseURL:         "http://localhost:8000",
			TelemetryBaseURL:    "https://telemetry-api.dimo.zone",
			QueryTimeoutSeconds: 60,
			EnableDevProxy:      false,
		},
		Session: SessionConfig{
			IdleTimeoutMinutes:     120,
			CleanupIntervalMinutes: 5,
		},
		Publish: PublishConfig{
			TopicPrefix: "dimo/telemetry",
			QoS:         1,
		},
		Advanced: AdvancedConfig{
			EnableRequestLogging: true,
			StrictSignals:        false,
		},
	}
}

// LoadConfig loads configuration from XML file, creating it with defaults
// if it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	var config *AppConfig

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		config = DefaultConfig()
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		config = DefaultConfig()
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides(newEnv())
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- PocketTelemetry Explorer Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"port":          "PORT",
	"datadir":       "DATA_DIR",
	"telemetryurl":  "TELEMETRY_URL",
	"authurl":       "AUTH_URL",
	"mqttbroker":    "MQTT_BROKER",
	"querytimeout":  "QUERY_TIMEOUT_SECONDS",
	"strictsignals": "STRICT_SIGNALS",
	"devproxy":      "ENABLE_DEV_PROXY",
}

func newEnv() *viper.Viper {
	v := viper.New()
	for key, env := range envBindings {
		v.BindEnv(key, env)
	}
	return v
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides(v *viper.Viper) {
	if v.IsSet("port") {
		if p := v.GetInt("port"); p > 0 {
			c.Server.Port = p
		}
	}
	if v.IsSet("datadir") {
		c.Storage.DataDirectory = v.GetString("datadir")
	}
	if v.IsSet("telemetryurl") {
		c.Telemetry.TelemetryBaseURL = v.GetString("telemetryurl")
	}
	if v.IsSet("authurl") {
		c.Telemetry.AuthBaseURL = v.GetString("authurl")
	}
	if v.IsSet("mqttbroker") {
		c.Publish.MQTTBroker = v.GetString("mqttbroker")
	}
	if v.IsSet("querytimeout") {
		if s := v.GetInt("querytimeout"); s > 0 {
			c.Telemetry.QueryTimeoutSeconds = s
		}
	}
	if v.IsSet("strictsignals") {
		c.Advanced.StrictSignals = v.GetBool("strictsignals")
	}
	if v.IsSet("devproxy") {
		c.Telemetry.EnableDevProxy = v.GetBool("devproxy")
	}
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if c.Storage.CatalogFile != "" && !filepath.IsAbs(c.Storage.CatalogFile) {
		c.Storage.CatalogFile = filepath.Join(configDir, c.Storage.CatalogFile)
	}
}

// Validate checks values that would otherwise fail at first use.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Telemetry.AuthBaseURL == "" || c.Telemetry.TelemetryBaseURL == "" {
		return fmt.Errorf("auth and telemetry base URLs are required")
	}
	if c.Publish.QoS < 0 || c.Publish.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS %d", c.Publish.QoS)
	}
	return nil
}

// GetDataDir returns the absolute data directory path
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetAllowOrigins returns the CORS origins as a list.
func (c *AppConfig) GetAllowOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// QueryTimeout returns the telemetry query deadline.
func (c *AppConfig) QueryTimeout() time.Duration {
	return time.Duration(c.Telemetry.QueryTimeoutSeconds) * time.Second
}

// IdleTimeout returns how long an unused workspace is kept.
func (c *AppConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle workspaces are reaped.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Session.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Session.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	if err := os.MkdirAll(c.Storage.DataDirectory, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Storage.DataDirectory, err)
	}
	return nil
}
