// Package config loads the backend configuration from defaults, .env files, the process
// environment and CLI flags.
//
// Priority (highest to lowest): flags > environment > local .env > config-dir .env > defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"digitaltwin/internal/logger"
)

// Supported model providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

// Supported conversation storage backends.
const (
	StorageLocal  = "local"
	StorageS3     = "s3"
	StorageBolt   = "bolt"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// DefaultModel is the model used when MODEL_NAME is unset.
const DefaultModel = "google/gemini-2.5-flash-lite"

// Config holds every runtime setting of the backend.
type Config struct {
	Provider           string
	ModelName          string
	EvaluatorModelName string
	APIKeys            map[string]string
	BaseURL            string
	RequestTimeout     time.Duration
	MaxToolSteps       int

	DataDir string

	Storage    string
	MemoryDir  string
	S3Bucket   string
	S3Region   string
	S3Prefix   string
	BoltPath   string
	SQLitePath string

	MailjetAPIKey    string
	MailjetAPISecret string
	MailjetFromEmail string
	MailjetFromName  string
	MailjetToEmail   string
	ResumeURL        string

	ListenAddr  string
	CORSOrigins []string
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// Viper carries flag bindings made by the CLI. A fresh instance is used when nil.
	Viper *viper.Viper
	// ConfigDir overrides the user config directory (~/.config/digitaltwin).
	ConfigDir string
	// WorkDir overrides the directory searched for the local .env file.
	WorkDir string
	// TestMode skips the OS environment so tests only see Overrides.
	TestMode bool
	// Overrides are applied with environment priority.
	Overrides map[string]string
}

// defaults lists every configuration key with its built-in value.
var defaults = map[string]interface{}{
	"PROVIDER":              ProviderOpenRouter,
	"MODEL_NAME":            DefaultModel,
	"EVALUATION_MODEL_NAME": "",
	"OPENROUTER_API_KEY":    "",
	"OPENAI_API_KEY":        "",
	"ANTHROPIC_API_KEY":     "",
	"GEMINI_API_KEY":        "",
	"BASE_URL":              "",
	"REQUEST_TIMEOUT":       "60s",
	"MAX_TOOL_STEPS":        8,
	"DATA_DIR":              "./data",
	"STORAGE":               StorageLocal,
	"USE_S3":                false,
	"MEMORY_DIR":            "./memory",
	"S3_BUCKET":             "",
	"S3_REGION":             "",
	"S3_PREFIX":             "",
	"BOLT_PATH":             "./memory/conversations.bolt",
	"SQLITE_PATH":           "./memory/conversations.db",
	"MAILJET_API_KEY":       "",
	"MAILJET_API_SECRET":    "",
	"MAILJET_FROM_EMAIL":    "",
	"MAILJET_FROM_NAME":     "AI Twin",
	"MAILJET_TO_EMAIL":      "",
	"RESUME_URL":            "",
	"LISTEN_ADDR":           ":8000",
	"CORS_ORIGINS":          "http://localhost:3000",
}

// Load assembles the configuration from all sources.
func Load(opts LoadOptions) (*Config, error) {
	logger.ServiceOperation("config", "load", "starting")

	v := opts.Viper
	if v == nil {
		v = viper.New()
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := mergeDotEnv(v, configDotEnvPath(opts.ConfigDir)); err != nil {
		return nil, err
	}
	if err := mergeDotEnv(v, localDotEnvPath(opts.WorkDir)); err != nil {
		return nil, err
	}

	if !opts.TestMode {
		v.AutomaticEnv()
	}
	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	cfg := &Config{
		Provider:           strings.ToLower(v.GetString("PROVIDER")),
		ModelName:          v.GetString("MODEL_NAME"),
		EvaluatorModelName: v.GetString("EVALUATION_MODEL_NAME"),
		APIKeys: map[string]string{
			ProviderOpenRouter: v.GetString("OPENROUTER_API_KEY"),
			ProviderOpenAI:     v.GetString("OPENAI_API_KEY"),
			ProviderAnthropic:  v.GetString("ANTHROPIC_API_KEY"),
			ProviderGemini:     v.GetString("GEMINI_API_KEY"),
		},
		BaseURL:          v.GetString("BASE_URL"),
		RequestTimeout:   v.GetDuration("REQUEST_TIMEOUT"),
		MaxToolSteps:     v.GetInt("MAX_TOOL_STEPS"),
		DataDir:          v.GetString("DATA_DIR"),
		Storage:          strings.ToLower(v.GetString("STORAGE")),
		MemoryDir:        v.GetString("MEMORY_DIR"),
		S3Bucket:         v.GetString("S3_BUCKET"),
		S3Region:         v.GetString("S3_REGION"),
		S3Prefix:         v.GetString("S3_PREFIX"),
		BoltPath:         v.GetString("BOLT_PATH"),
		SQLitePath:       v.GetString("SQLITE_PATH"),
		MailjetAPIKey:    v.GetString("MAILJET_API_KEY"),
		MailjetAPISecret: v.GetString("MAILJET_API_SECRET"),
		MailjetFromEmail: v.GetString("MAILJET_FROM_EMAIL"),
		MailjetFromName:  v.GetString("MAILJET_FROM_NAME"),
		MailjetToEmail:   v.GetString("MAILJET_TO_EMAIL"),
		ResumeURL:        v.GetString("RESUME_URL"),
		ListenAddr:       v.GetString("LISTEN_ADDR"),
		CORSOrigins:      splitList(v.GetString("CORS_ORIGINS")),
	}

	// USE_S3 is the older switch and still selects the object store
	if v.GetBool("USE_S3") {
		cfg.Storage = StorageS3
	}
	if cfg.EvaluatorModelName == "" {
		cfg.EvaluatorModelName = cfg.ModelName
	}

	logger.ServiceOperation("config", "load", "completed", "provider", cfg.Provider, "storage", cfg.Storage)
	return cfg, nil
}

// Validate checks that the selected provider and backend are usable.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unsupported provider '%s'. Supported providers: openrouter, openai, anthropic, gemini", c.Provider)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("API key not configured for provider %s (expected %s_API_KEY)", c.Provider, strings.ToUpper(c.Provider))
	}

	switch c.Storage {
	case StorageLocal, StorageBolt, StorageSQLite, StorageMemory:
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3 storage selected but S3_BUCKET is empty")
		}
	default:
		return fmt.Errorf("unsupported storage backend '%s'", c.Storage)
	}

	if c.MaxToolSteps < 1 {
		return fmt.Errorf("MAX_TOOL_STEPS must be at least 1, got %d", c.MaxToolSteps)
	}
	return nil
}

// APIKey returns the key of the selected provider.
func (c *Config) APIKey() string {
	return c.APIKeys[c.Provider]
}

// MailjetConfigured reports whether outbound email can be sent.
func (c *Config) MailjetConfigured() bool {
	return c.MailjetAPIKey != "" && c.MailjetAPISecret != "" && c.MailjetFromEmail != "" && c.MailjetToEmail != ""
}

// UsesS3 reports whether histories live in the object store.
func (c *Config) UsesS3() bool {
	return c.Storage == StorageS3
}

// mergeDotEnv layers a .env file over the configuration. A missing file is not an error.
func mergeDotEnv(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read .env file %s: %w", path, err)
	}
	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}

	values := make(map[string]any, len(envMap))
	for key, value := range envMap {
		values[key] = value
	}
	if err := v.MergeConfigMap(values); err != nil {
		return fmt.Errorf("failed to merge .env file %s: %w", path, err)
	}

	logger.Debug("Loaded .env file", "path", path, "keys", len(envMap))
	return nil
}

func configDotEnvPath(dir string) string {
	if dir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			// Config directory access failure is not fatal
			return ""
		}
		dir = filepath.Join(userDir, "digitaltwin")
	}
	return filepath.Join(dir, ".env")
}

func localDotEnvPath(dir string) string {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = wd
	}
	return filepath.Join(dir, ".env")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
