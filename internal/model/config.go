package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// IMAPConfig holds the mailbox connection settings. The app password is
// kept in the system keyring, never in the config file.
type IMAPConfig struct {
	Server  string `mapstructure:"server" yaml:"server"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Address string `mapstructure:"address" yaml:"address"`
}

// HostPort returns the dial address of the IMAP server.
func (c IMAPConfig) HostPort() string {
	return c.Server + ":" + strconv.Itoa(c.Port)
}

// LLMConfig holds the local OpenAI-compatible model server settings.
type LLMConfig struct {
	URL   string `mapstructure:"url" yaml:"url"`
	Model string `mapstructure:"model" yaml:"model"`
}

// SearchConfig holds the default note search filters.
type SearchConfig struct {
	IncludeKeywords []string `mapstructure:"include_keywords" yaml:"include_keywords"`
	ExcludeKeywords []string `mapstructure:"exclude_keywords" yaml:"exclude_keywords"`
	Kinds           []string `mapstructure:"kinds" yaml:"kinds"`
	Limit           int      `mapstructure:"limit" yaml:"limit"`
}

// StorageConfig holds local file locations.
type StorageConfig struct {
	// DBPath is the SQLite database holding search results and items.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// StagingDir receives downloaded attachments. It is not cleaned
	// automatically.
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`
}

// AppConfig is the top-level application configuration. It is loaded once
// at startup and passed explicitly to the components that need it.
type AppConfig struct {
	IMAP    IMAPConfig    `mapstructure:"imap" yaml:"imap"`
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
}

var (
	defaultInclude = []string{
		"nfe", "nf-e", "nota", "xml", "danfe", "fiscal", "fatura",
		"invoice", "eletronica", "nfce", "cupom",
	}
	defaultExclude = []string{"promo", "oferta", "newsletter"}
)

// DefaultConfigDir returns ~/.config/notafiscal.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "notafiscal")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notafiscal/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func defaultStagingDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "notafiscal")
	}
	return filepath.Join(dir, "notafiscal", "attachments")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		IMAP: IMAPConfig{
			Server: "imap.gmail.com",
			Port:   993,
		},
		LLM: LLMConfig{
			URL:   "http://127.0.0.1:1234",
			Model: "qwen/qwen3-vl-4b",
		},
		Search: SearchConfig{
			IncludeKeywords: append([]string(nil), defaultInclude...),
			ExcludeKeywords: append([]string(nil), defaultExclude...),
			Kinds:           []string{string(KindPDF), string(KindXML)},
			Limit:           200,
		},
		Storage: StorageConfig{
			DBPath:     filepath.Join(DefaultConfigDir(), "notafiscal.db"),
			StagingDir: defaultStagingDir(),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	def := DefaultAppConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("NOTAFISCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("imap.server", def.IMAP.Server)
	v.SetDefault("imap.port", def.IMAP.Port)
	v.SetDefault("llm.url", def.LLM.URL)
	v.SetDefault("llm.model", def.LLM.Model)
	v.SetDefault("search.include_keywords", def.Search.IncludeKeywords)
	v.SetDefault("search.exclude_keywords", def.Search.ExcludeKeywords)
	v.SetDefault("search.kinds", def.Search.Kinds)
	v.SetDefault("search.limit", def.Search.Limit)
	v.SetDefault("storage.db_path", def.Storage.DBPath)
	v.SetDefault("storage.staging_dir", def.Storage.StagingDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.IMAP.Port <= 0 {
		cfg.IMAP.Port = def.IMAP.Port
	}
	if cfg.Search.Limit <= 0 {
		cfg.Search.Limit = def.Search.Limit
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("imap", cfg.IMAP)
	v.Set("llm", cfg.LLM)
	v.Set("search", cfg.Search)
	v.Set("storage", cfg.Storage)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
