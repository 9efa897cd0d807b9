package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Configuration struct {
	Server   ServerConfig   `json:"server"`
	Security SecurityConfig `json:"security"`
	Storage  StorageConfig  `json:"storage"`
	Fetch    FetchConfig    `json:"fetch"`
	Events   EventsConfig   `json:"events"`
	Logging  LoggingConfig  `json:"logging"`
	Database DatabaseConfig `json:"database"`
}

type ServerConfig struct {
	Port         string        `json:"port"`
	PublicURL    string        `json:"public_url"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
}

type SecurityConfig struct {
	// TokenSecret keys the session-token digest. Injected configuration,
	// never a source literal; the TOKEN_SECRET env var always wins.
	TokenSecret string `json:"token_secret"`
	// WebhookSecret, when set, requires callers to sign webhook bodies.
	WebhookSecret string `json:"webhook_secret"`
}

type StorageConfig struct {
	// DataDir holds session records, fetched PDFs, signature images and
	// final documents.
	DataDir string `json:"data_dir"`
}

type FetchConfig struct {
	Timeout time.Duration `json:"timeout"`
	Retry   bool          `json:"retry"`
	// DefaultDocumentURL is used when a webhook omits pdfUrl.
	DefaultDocumentURL string `json:"default_document_url"`
}

type EventsConfig struct {
	AMQPURL  string `json:"amqp_url"`
	Exchange string `json:"exchange"`
}

type LoggingConfig struct {
	Level string `json:"level"`
}

type DatabaseConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            string `json:"port"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	Name            string `json:"name"`
	SSLMode         string `json:"ssl_mode"`
	MaxIdleConns    int    `json:"max_idle_conns"`
	MaxOpenConns    int    `json:"max_open_conns"`
	ConnMaxLifetime int    `json:"conn_max_lifetime"`
}

var (
	config     *Configuration
	configOnce sync.Once
	configLock sync.RWMutex
)

func LoadConfig(filePath string) (*Configuration, error) {
	var err error

	configOnce.Do(func() {
		var file *os.File
		file, err = os.Open(filePath)
		if err != nil {
			err = fmt.Errorf("failed to open config file: %w", err)
			return
		}
		defer file.Close()

		decoder := json.NewDecoder(file)
		config = &Configuration{}
		err = decoder.Decode(config)
		if err != nil {
			err = fmt.Errorf("failed to decode config file: %w", err)
			return
		}

		applyDefaults(config)
		applyEnvOverrides(config)
	})

	return config, err
}

func GetConfig() *Configuration {
	configLock.RLock()
	defer configLock.RUnlock()
	return config
}

func InitializeDefaultConfig() *Configuration {
	configLock.Lock()
	defer configLock.Unlock()

	config = &Configuration{}
	applyDefaults(config)
	applyEnvOverrides(config)

	return config
}

func applyDefaults(c *Configuration) {
	if c.Server.Port == "" {
		c.Server.Port = "5000"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:" + c.Server.Port
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 120 * time.Second
	}

	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "uploads"
	}

	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "signature.sessions"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Database.Port == "" {
		c.Database.Port = "5432"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 10
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 100
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 300
	}
}

func applyEnvOverrides(c *Configuration) {
	if v := os.Getenv("TOKEN_SECRET"); v != "" {
		c.Security.TokenSecret = v
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Security.WebhookSecret = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.Events.AMQPURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
}

// Validate rejects a configuration the service cannot safely start with.
func Validate(c *Configuration) error {
	if c.Security.TokenSecret == "" {
		return fmt.Errorf("token secret is required (set security.token_secret or TOKEN_SECRET)")
	}
	return nil
}

func LogConfig(logger *zap.Logger) {
	configLock.RLock()
	defer configLock.RUnlock()

	logger.Info("Application configuration",
		zap.String("port", config.Server.Port),
		zap.String("public_url", config.Server.PublicURL),
		zap.Duration("read_timeout", config.Server.ReadTimeout),
		zap.Duration("write_timeout", config.Server.WriteTimeout),
		zap.String("data_dir", config.Storage.DataDir),
		zap.Duration("fetch_timeout", config.Fetch.Timeout),
		zap.Bool("fetch_retry", config.Fetch.Retry),
		zap.Bool("webhook_signing", config.Security.WebhookSecret != ""),
		zap.Bool("events_enabled", config.Events.AMQPURL != ""),
		zap.Bool("database_enabled", config.Database.Enabled),
		zap.String("database_host", config.Database.Host),
		zap.String("database_name", config.Database.Name),
	)
}
