package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/HugeFrog24/create-tg-app/portal"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Portal   PortalConfig   `json:"portal" yaml:"portal"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Limits   LimitsConfig   `json:"limits" yaml:"limits"`
	Notify   NotifyConfig   `json:"notify" yaml:"notify"`
	Describe DescribeConfig `json:"describe" yaml:"describe"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Defaults DefaultsConfig `json:"defaults" yaml:"defaults"`
}

type PortalConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url" validate:"required,url"`
	Timeout string `json:"timeout" yaml:"timeout" validate:"required"`
	Proxy   string `json:"proxy" yaml:"proxy" validate:"omitempty,url"`
}

type JournalConfig struct {
	Path string `json:"path" yaml:"path" validate:"required"`
}

// LimitsConfig bounds how often a confirmation code may be requested per phone.
type LimitsConfig struct {
	CodesPerHour    int    `json:"codes_per_hour" yaml:"codes_per_hour" validate:"gte=1"`
	CodesPerDay     int    `json:"codes_per_day" yaml:"codes_per_day" validate:"gtefield=CodesPerHour"`
	TempBanDuration string `json:"temp_ban_duration" yaml:"temp_ban_duration" validate:"required"`
}

type NotifyConfig struct {
	TelegramToken string `json:"telegram_token" yaml:"telegram_token"`
	ChatID        int64  `json:"chat_id" yaml:"chat_id" validate:"required_with=TelegramToken"`
}

type DescribeConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Model   string `json:"model" yaml:"model" validate:"required_if=Enabled true"`
	APIKey  string `json:"-" yaml:"-"` // ANTHROPIC_API_KEY only
}

type LogConfig struct {
	Level    string `json:"level" yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Encoding string `json:"encoding" yaml:"encoding" validate:"omitempty,oneof=json console"`
}

type DefaultsConfig struct {
	Platform string `json:"platform" yaml:"platform"`
}

func defaultConfig() Config {
	return Config{
		Portal: PortalConfig{
			BaseURL: portal.DefaultBaseURL,
			Timeout: portal.DefaultTimeout.String(),
		},
		Journal: JournalConfig{Path: "create-tg-app.db"},
		Limits: LimitsConfig{
			CodesPerHour:    3,
			CodesPerDay:     10,
			TempBanDuration: "15m",
		},
		Describe: DescribeConfig{Model: "claude-3-5-haiku-latest"},
		Log:      LogConfig{Level: "info", Encoding: "console"},
		Defaults: DefaultsConfig{Platform: string(portal.PlatformOther)},
	}
}

// validateConfigPath resolves filename inside configDir and refuses anything
// that escapes it or is not a JSON/YAML file.
func validateConfigPath(configDir, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json", ".yaml", ".yml":
	default:
		return "", fmt.Errorf("unsupported config file extension: %s", filename)
	}

	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config dir: %w", err)
	}

	fullPath := filename
	if !filepath.IsAbs(fullPath) {
		fullPath = filepath.Join(absDir, filename)
	}
	fullPath = filepath.Clean(fullPath)

	rel, err := filepath.Rel(absDir, fullPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("config file %s is outside of %s", filename, configDir)
	}

	return fullPath, nil
}

// loadConfig reads filename over the defaults. The decoder is picked by extension.
func loadConfig(filename string) (Config, error) {
	config := defaultConfig()

	file, err := os.Open(filename)
	if err != nil {
		return config, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.NewDecoder(file).Decode(&config); err != nil {
			return config, fmt.Errorf("failed to decode YAML: %w", err)
		}
	default:
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return config, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	return config, nil
}

// applyEnv overrides config values with environment variables (and .env).
func applyEnv(config *Config) error {
	if v, ok := os.LookupEnv("TG_PORTAL_BASE_URL"); ok && v != "" {
		config.Portal.BaseURL = v
	}
	if v, ok := os.LookupEnv("TG_PORTAL_PROXY"); ok {
		config.Portal.Proxy = v
	}
	if v, ok := os.LookupEnv("TG_JOURNAL_PATH"); ok && v != "" {
		config.Journal.Path = v
	}
	if v, ok := os.LookupEnv("TG_NOTIFY_BOT_TOKEN"); ok {
		config.Notify.TelegramToken = v
	}
	if v, ok := os.LookupEnv("TG_NOTIFY_CHAT_ID"); ok && v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TG_NOTIFY_CHAT_ID: %w", err)
		}
		config.Notify.ChatID = chatID
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		config.Log.Level = v
	}
	config.Describe.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	return nil
}

var configValidator = validator.New()

func validateConfig(config *Config) error {
	if err := configValidator.Struct(config); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := time.ParseDuration(config.Portal.Timeout); err != nil {
		return fmt.Errorf("invalid 'portal.timeout': %w", err)
	}
	if _, err := time.ParseDuration(config.Limits.TempBanDuration); err != nil {
		return fmt.Errorf("invalid 'limits.temp_ban_duration': %w", err)
	}
	if config.Portal.Proxy != "" {
		if _, err := url.Parse(config.Portal.Proxy); err != nil {
			return fmt.Errorf("invalid 'portal.proxy': %w", err)
		}
	}
	if config.Defaults.Platform != "" {
		if _, err := portal.ParsePlatform(config.Defaults.Platform); err != nil {
			return fmt.Errorf("invalid 'defaults.platform': %w", err)
		}
	}

	return nil
}

// portalOptions turns the portal section into client options.
func (c PortalConfig) portalOptions() ([]portal.Option, error) {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid 'portal.timeout': %w", err)
	}

	opts := []portal.Option{
		portal.WithBaseURL(c.BaseURL),
		portal.WithTimeout(timeout),
	}
	if c.Proxy != "" {
		proxyURL, err := url.Parse(c.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid 'portal.proxy': %w", err)
		}
		opts = append(opts, portal.WithProxy(proxyURL))
	}
	return opts, nil
}
