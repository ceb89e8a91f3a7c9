package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0600))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{
		ConfigDir: t.TempDir(),
		WorkDir:   t.TempDir(),
		TestMode:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenRouter, cfg.Provider)
	assert.Equal(t, DefaultModel, cfg.ModelName)
	assert.Equal(t, DefaultModel, cfg.EvaluatorModelName, "evaluator falls back to the primary model")
	assert.Equal(t, StorageLocal, cfg.Storage)
	assert.Equal(t, "./memory", cfg.MemoryDir)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 8, cfg.MaxToolSteps)
	assert.Equal(t, ":8000", cfg.ListenAddr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.False(t, cfg.MailjetConfigured())
}

func TestLoad_DotEnvLayering(t *testing.T) {
	configDir := t.TempDir()
	workDir := t.TempDir()

	writeEnv(t, configDir, "MODEL_NAME=config-model\nOPENROUTER_API_KEY=config-key\nMAX_TOOL_STEPS=3\n")
	writeEnv(t, workDir, "MODEL_NAME=local-model\nCORS_ORIGINS=https://a.example, https://b.example\n")

	cfg, err := Load(LoadOptions{
		ConfigDir: configDir,
		WorkDir:   workDir,
		TestMode:  true,
	})
	require.NoError(t, err)

	assert.Equal(t, "local-model", cfg.ModelName, "local .env overrides config .env")
	assert.Equal(t, "config-key", cfg.APIKey())
	assert.Equal(t, 3, cfg.MaxToolSteps)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoad_OverridesWin(t *testing.T) {
	workDir := t.TempDir()
	writeEnv(t, workDir, "MODEL_NAME=local-model\n")

	cfg, err := Load(LoadOptions{
		ConfigDir: t.TempDir(),
		WorkDir:   workDir,
		TestMode:  true,
		Overrides: map[string]string{
			"MODEL_NAME":            "override-model",
			"EVALUATION_MODEL_NAME": "judge-model",
			"PROVIDER":              "Anthropic",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "override-model", cfg.ModelName)
	assert.Equal(t, "judge-model", cfg.EvaluatorModelName)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
}

func TestLoad_UseS3SelectsObjectStore(t *testing.T) {
	cfg, err := Load(LoadOptions{
		ConfigDir: t.TempDir(),
		WorkDir:   t.TempDir(),
		TestMode:  true,
		Overrides: map[string]string{"USE_S3": "true", "STORAGE": "bolt"},
	})
	require.NoError(t, err)

	assert.Equal(t, StorageS3, cfg.Storage)
	assert.True(t, cfg.UsesS3())
}

func TestLoad_MalformedDotEnv(t *testing.T) {
	workDir := t.TempDir()
	writeEnv(t, workDir, "KEY='unterminated\n")

	_, err := Load(LoadOptions{ConfigDir: t.TempDir(), WorkDir: workDir, TestMode: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse .env file")
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Provider:     ProviderOpenRouter,
			APIKeys:      map[string]string{ProviderOpenRouter: "sk-or-test"},
			Storage:      StorageLocal,
			MaxToolSteps: 8,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(_ *Config) {}},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "cohere" }, wantErr: "unsupported provider"},
		{name: "missing key", mutate: func(c *Config) { c.APIKeys = map[string]string{} }, wantErr: "API key not configured"},
		{name: "s3 without bucket", mutate: func(c *Config) { c.Storage = StorageS3 }, wantErr: "S3_BUCKET"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage = "redis" }, wantErr: "unsupported storage backend"},
		{name: "zero tool steps", mutate: func(c *Config) { c.MaxToolSteps = 0 }, wantErr: "MAX_TOOL_STEPS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
