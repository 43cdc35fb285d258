package config

import (
	"fmt"
	"log"

	"github.com/spf13/viper"
)

// global configuration structure
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Bale     BaleConfig     `mapstructure:"bale"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Database DatabaseConfig `mapstructure:"database"`
}

// Telegram bot configuration
type TelegramConfig struct {
	Token   string        `mapstructure:"token"`
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// webhook server configuration; long polling is used when the endpoint
// is empty
type WebhookConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	ListenPort string `mapstructure:"listen_port"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
}

// Bale bot configuration
type BaleConfig struct {
	Token        string  `mapstructure:"token"`
	APIURL       string  `mapstructure:"api_url"`
	PollInterval float64 `mapstructure:"poll_interval"`
}

// relay behavior settings
type BridgeConfig struct {
	MirrorDMsToOperator    bool  `mapstructure:"mirror_dms_to_operator"`
	OperatorTelegramChatID int64 `mapstructure:"operator_telegram_chat_id"`
	OperatorBaleChatID     int64 `mapstructure:"operator_bale_chat_id"`
	SenderAttribution      bool  `mapstructure:"sender_attribution"`
	DeliveryTimeoutSeconds int   `mapstructure:"delivery_timeout_seconds"`
}

// logging configuration
type LoggerConfig struct {
	Directory string            `mapstructure:"directory"`
	Rotation  LogRotationConfig `mapstructure:"rotation"`
	Level     string            `mapstructure:"level"`
}

// log rotation settings
type LogRotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Charset  string `mapstructure:"charset"`
}

var cfg *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	log.Printf("Using config file: %s", v.ConfigFileUsed())

	// Unmarshal configuration
	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		log.Fatal("Configuration not initialized, call Load() first")
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.webhook.listen_port", "8443")
	v.SetDefault("telegram.webhook.cert_file", "")
	v.SetDefault("telegram.webhook.key_file", "")

	v.SetDefault("bale.api_url", "https://tapi.bale.ai")
	v.SetDefault("bale.poll_interval", 1.0)

	v.SetDefault("bridge.mirror_dms_to_operator", false)
	v.SetDefault("bridge.sender_attribution", true)
	v.SetDefault("bridge.delivery_timeout_seconds", 30)

	v.SetDefault("logger.directory", "logs")
	v.SetDefault("logger.rotation.max_size", 10)
	v.SetDefault("logger.rotation.max_backups", 30)
	v.SetDefault("logger.rotation.max_age", 90)
	v.SetDefault("logger.rotation.compress", true)
	v.SetDefault("logger.level", "INFO")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "tg-bale-bridge.db")
	v.SetDefault("database.charset", "utf8mb4")
}
