package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"embark/internal/console"
	"embark/internal/i18n"
)

// Режимы IPC-моста консоли.
const (
	IPCModeAuto   = "auto"
	IPCModeServer = "server"
	IPCModeClient = "client"
	IPCModeOff    = "off"
)

var (
	errUnknownIPCMode = errors.New("unknown ipc mode")
	errEmptySocket    = errors.New("ipc socket path is empty")
	errUnknownLocale  = errors.New("unsupported console locale")
)

// TokenConfig описывает bearer-токен HTTP API; хранится только sha256 токена.
type TokenConfig struct {
	ID          string `yaml:"id"`
	TokenSHA256 string `yaml:"token_sha256"`
	Subject     string `yaml:"subject"`
	Enabled     bool   `yaml:"enabled"`
}

// Config описывает параметры консоли и ее транспортов.
type Config struct {
	Console struct {
		Locale string `yaml:"locale" env:"EMBARK_LOCALE"`
		Prompt string `yaml:"prompt" env:"EMBARK_PROMPT"`
		Plain  bool   `yaml:"plain" env:"EMBARK_PLAIN"`
	} `yaml:"console"`
	IPC struct {
		Mode          string `yaml:"mode" env:"EMBARK_IPC_MODE"`
		SocketPath    string `yaml:"socket_path" env:"EMBARK_IPC_SOCKET"`
		DialTimeoutMS int    `yaml:"dial_timeout_ms" env:"EMBARK_IPC_DIAL_TIMEOUT_MS"`
	} `yaml:"ipc"`
	SQLite struct {
		Path          string `yaml:"path" env:"EMBARK_SQLITE_PATH"`
		RetentionDays int    `yaml:"retention_days" env:"EMBARK_RETENTION_DAYS"`
	} `yaml:"sqlite"`
	Scheduler struct {
		IntervalSeconds int `yaml:"interval_seconds" env:"EMBARK_SCHEDULER_INTERVAL_SECONDS"`
	} `yaml:"scheduler"`
	Limits struct {
		CommandsPerSecond int `yaml:"commands_per_second" env:"EMBARK_COMMANDS_PER_SECOND"`
	} `yaml:"limits"`
	Blockchain struct {
		Endpoint  string   `yaml:"endpoint" env:"EMBARK_BLOCKCHAIN_ENDPOINT"`
		Contracts []string `yaml:"contracts" env:"EMBARK_CONTRACTS"`
	} `yaml:"blockchain"`
	Security struct {
		AuthAllowlist map[string][]string `yaml:"auth_allowlist"`
	} `yaml:"security"`
	Web struct {
		Enabled          bool   `yaml:"enabled" env:"EMBARK_WEB_ENABLED"`
		ListenAddr       string `yaml:"listen_addr" env:"EMBARK_WEB_LISTEN_ADDR"`
		ReadTimeoutMS    int    `yaml:"read_timeout_ms"`
		WriteTimeoutMS   int    `yaml:"write_timeout_ms"`
		RequestTimeoutMS int    `yaml:"request_timeout_ms"`
		ShutdownTimeoutS int    `yaml:"shutdown_timeout_s"`
		MaxBodyBytes     int64  `yaml:"max_body_bytes"`
		Auth             struct {
			AllowLegacySubjectHeader bool          `yaml:"allow_legacy_subject_header"`
			Tokens                   []TokenConfig `yaml:"tokens"`
		} `yaml:"auth"`
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins" env:"EMBARK_WEB_CORS_ORIGINS"`
			AllowedMethods []string `yaml:"allowed_methods"`
			AllowedHeaders []string `yaml:"allowed_headers"`
		} `yaml:"cors"`
	} `yaml:"web"`
	// Конфигурации категорий кода инициализации провайдеров.
	Communication map[string]any `yaml:"communication"`
	Names         map[string]any `yaml:"names"`
	Storage       map[string]any `yaml:"storage"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	var cfg Config
	cfg.Console.Locale = "en"
	cfg.Console.Prompt = "Embark > "
	cfg.IPC.Mode = IPCModeAuto
	cfg.IPC.SocketPath = filepath.Join(os.TempDir(), "embark-console.sock")
	cfg.IPC.DialTimeoutMS = 500
	cfg.SQLite.Path = filepath.Join(".embark", "history.db")
	cfg.SQLite.RetentionDays = 30
	cfg.Scheduler.IntervalSeconds = 60
	cfg.Limits.CommandsPerSecond = 20
	cfg.Blockchain.Endpoint = "http://localhost:8545"
	cfg.Security.AuthAllowlist = map[string][]string{"web": {}}
	cfg.Web.Enabled = false
	cfg.Web.ListenAddr = "127.0.0.1:8546"
	cfg.Web.ReadTimeoutMS = 2000
	cfg.Web.WriteTimeoutMS = 10000
	cfg.Web.RequestTimeoutMS = 5000
	cfg.Web.ShutdownTimeoutS = 5
	cfg.Web.MaxBodyBytes = 64 << 10
	cfg.Communication = map[string]any{"enabled": false, "provider": "whisper"}
	cfg.Names = map[string]any{"enabled": false, "provider": "ens"}
	cfg.Storage = map[string]any{"enabled": false, "provider": "ipfs", "host": "localhost", "port": 5001, "protocol": "http"}
	return cfg
}

// Load читает конфиг из файла YAML поверх значений по умолчанию и применяет переменные окружения EMBARK_*.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- путь к конфигу задает оператор.
		if err != nil {
			return cfg, err
		}
		if len(data) == 0 {
			return cfg, errors.New("config file is empty")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv переопределяет поля значениями из окружения; незаданные переменные не меняют конфиг.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	if !supportedLocale(c.Console.Locale) {
		return fmt.Errorf("%w: %q (supported: %s)", errUnknownLocale, c.Console.Locale, strings.Join(i18n.Locales(), ", "))
	}
	switch c.IPC.Mode {
	case IPCModeAuto, IPCModeServer, IPCModeClient:
		if c.IPC.SocketPath == "" {
			return errEmptySocket
		}
	case IPCModeOff:
	default:
		return fmt.Errorf("%w: %q", errUnknownIPCMode, c.IPC.Mode)
	}
	return nil
}

// supportedLocale принимает пустую локаль и локали, язык которых есть в каталоге (fr-CA сводится к fr).
func supportedLocale(locale string) bool {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return true
	}
	lang := baseLanguage(locale)
	for _, l := range i18n.Locales() {
		if baseLanguage(l) == lang {
			return true
		}
	}
	return false
}

func baseLanguage(locale string) string {
	locale = strings.ReplaceAll(locale, "_", "-")
	if i := strings.IndexByte(locale, '-'); i >= 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}

// CategoryConfigs возвращает конфигурации категорий кода инициализации.
func (c Config) CategoryConfigs() map[console.Category]console.CategoryConfig {
	return map[console.Category]console.CategoryConfig{
		console.CategoryCommunication: console.CategoryConfig(c.Communication),
		console.CategoryNames:         console.CategoryConfig(c.Names),
		console.CategoryStorage:       console.CategoryConfig(c.Storage),
	}
}
