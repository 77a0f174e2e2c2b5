package cfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sifra/internal/common"
	"sifra/internal/ml"
	"sifra/internal/risk"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 8000 {
					t.Errorf("expected default port 8000, got %d", settings.Port)
				}
				if settings.StoreDriver != common.StoreBolt {
					t.Errorf("expected default store bolt, got %s", settings.StoreDriver)
				}
				if settings.LLMBaseURL != "http://127.0.0.1:1234/v1" {
					t.Errorf("expected default LLM base URL, got %s", settings.LLMBaseURL)
				}
				if settings.LLMModel != "meta-llama-3-8b-instruct" {
					t.Errorf("expected default LLM model, got %s", settings.LLMModel)
				}
				if settings.ReferenceSlot != ml.SlotTreeA {
					t.Errorf("expected reference tree_a, got %s", settings.ReferenceSlot)
				}
				if settings.Weights != risk.DefaultWeights() {
					t.Errorf("expected default weights, got %+v", settings.Weights)
				}
				if settings.Temperatures.Planning != 0.2 || settings.Temperatures.Document != 0.5 {
					t.Errorf("unexpected default temperatures %+v", settings.Temperatures)
				}
				if len(settings.CORSOrigins) != 1 || settings.CORSOrigins[0] != "*" {
					t.Errorf("expected CORS [*], got %v", settings.CORSOrigins)
				}
				if settings.MaxUploadBytes != 10<<20 {
					t.Errorf("expected 10 MiB upload limit, got %d", settings.MaxUploadBytes)
				}
				if settings.HistoryCacheSize != common.DefaultHistoryCache {
					t.Errorf("expected default history cache, got %d", settings.HistoryCacheSize)
				}
				if settings.Addr() != ":8000" {
					t.Errorf("expected addr :8000, got %s", settings.Addr())
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"PORT":                    "9090",
				"MODEL_DIR":               "/srv/models",
				"STORE_DRIVER":            "POSTGRES",
				"DATABASE_URL":            "postgres://localhost/sifra",
				"LLM_TIMEOUT":             "30s",
				"NARRATIVE_TIMEOUT":       "45s",
				"LLM_MAX_TOKENS":          "512",
				"TEMPERATURE_CHAT":        "0.9",
				"REFERENCE_CLASSIFIER":    "tree_b",
				"CONSENSUS_WEIGHTS":       "tree_a=0.2, tree_b=0.2, stacked=0.2, linear=0.2, neighbor=0.2",
				"CORS_ORIGINS":            "https://a.example, https://b.example",
				"LOG_FORMAT":              "JSON",
				"SERVER_WRITE_TIMEOUT":    "60s",
				"LLM_REQUESTS_PER_SECOND": "2.5",
				"HISTORY_CACHE_SIZE":      "64",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 9090 {
					t.Errorf("expected port 9090, got %d", settings.Port)
				}
				if settings.ModelDir != "/srv/models" {
					t.Errorf("expected model dir /srv/models, got %s", settings.ModelDir)
				}
				if settings.StoreDriver != common.StorePostgres {
					t.Errorf("expected postgres driver, got %s", settings.StoreDriver)
				}
				if settings.LLMTimeout != 30*time.Second || settings.NarrativeTimeout != 45*time.Second {
					t.Errorf("unexpected timeouts %v / %v", settings.LLMTimeout, settings.NarrativeTimeout)
				}
				if settings.LLMMaxTokens != 512 {
					t.Errorf("expected max tokens 512, got %d", settings.LLMMaxTokens)
				}
				if settings.Temperatures.Chat != 0.9 {
					t.Errorf("expected chat temperature 0.9, got %f", settings.Temperatures.Chat)
				}
				if settings.ReferenceSlot != ml.SlotTreeB {
					t.Errorf("expected reference tree_b, got %s", settings.ReferenceSlot)
				}
				if settings.Weights.Linear != 0.2 {
					t.Errorf("expected linear weight 0.2, got %f", settings.Weights.Linear)
				}
				if len(settings.CORSOrigins) != 2 || settings.CORSOrigins[1] != "https://b.example" {
					t.Errorf("unexpected CORS origins %v", settings.CORSOrigins)
				}
				if settings.Log.Format != common.LogFormatJSON {
					t.Errorf("expected json log format, got %s", settings.Log.Format)
				}
				if settings.LLMRequestsPerSecond != 2.5 {
					t.Errorf("expected 2.5 rps, got %f", settings.LLMRequestsPerSecond)
				}
				if settings.HistoryCacheSize != 64 {
					t.Errorf("expected history cache 64, got %d", settings.HistoryCacheSize)
				}
			},
		},
		{
			name:    "postgres without database url",
			envVars: map[string]string{"STORE_DRIVER": "postgres"},
			wantErr: true,
		},
		{
			name:    "unknown store driver",
			envVars: map[string]string{"STORE_DRIVER": "mongo"},
			wantErr: true,
		},
		{
			name:    "weights not summing to one",
			envVars: map[string]string{"CONSENSUS_WEIGHTS": "tree_a=0.5,tree_b=0.6"},
			wantErr: true,
		},
		{
			name:    "malformed weights",
			envVars: map[string]string{"CONSENSUS_WEIGHTS": "tree_a:0.5"},
			wantErr: true,
		},
		{
			name:    "unknown weight slot",
			envVars: map[string]string{"CONSENSUS_WEIGHTS": "forest=1"},
			wantErr: true,
		},
		{
			name:    "reference must be a tree ensemble",
			envVars: map[string]string{"REFERENCE_CLASSIFIER": "linear"},
			wantErr: true,
		},
		{
			name:    "temperature out of range",
			envVars: map[string]string{"TEMPERATURE_PLANNING": "2.5"},
			wantErr: true,
		},
		{
			name:    "write timeout shorter than narrative timeout",
			envVars: map[string]string{"SERVER_WRITE_TIMEOUT": "10s"},
			wantErr: true,
		},
		{
			name:    "invalid number keeps default",
			envVars: map[string]string{"PORT": "not-a-number"},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 8000 {
					t.Errorf("expected default port, got %d", settings.Port)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := loadFromEnv()

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name         string
		yamlContent  string
		envOverrides map[string]string
		wantErr      bool
		validate     func(t *testing.T, settings Settings)
	}{
		{
			name: "valid YAML config",
			yamlContent: `
server:
  port: 8100
  corsOrigins: ["https://clinic.example"]
  writeTimeout: "3m"

model:
  dir: "/opt/sifra/models"
  reference: "tree_b"
  weights:
    tree_a: 0.3
    tree_b: 0.2
    stacked: 0.2
    linear: 0.15
    neighbor: 0.15

storage:
  driver: "none"
  cacheSize: 0

llm:
  baseURL: "http://llm:8080/v1"
  model: "llama-3.1-8b"
  timeout: "20s"
  failureThreshold: 3

narrative:
  timeout: "25s"
  temperatures:
    planning: 0.1
    reasoning: 0.4
    chat: 0.3
    document: 0.6

logging:
  level: "debug"
  format: "json"
  file: "/var/log/sifra.log"
  maxSizeMB: 50
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 8100 {
					t.Errorf("expected port 8100, got %d", settings.Port)
				}
				if settings.ModelDir != "/opt/sifra/models" {
					t.Errorf("expected model dir, got %s", settings.ModelDir)
				}
				if settings.ReferenceSlot != ml.SlotTreeB {
					t.Errorf("expected reference tree_b, got %s", settings.ReferenceSlot)
				}
				if settings.Weights.TreeA != 0.3 {
					t.Errorf("expected tree_a weight 0.3, got %f", settings.Weights.TreeA)
				}
				if settings.StoreDriver != common.StoreNone {
					t.Errorf("expected store none, got %s", settings.StoreDriver)
				}
				if settings.HistoryCacheSize != 0 {
					t.Errorf("expected explicit cacheSize 0 to disable the cache, got %d", settings.HistoryCacheSize)
				}
				if settings.LLMBaseURL != "http://llm:8080/v1" || settings.LLMModel != "llama-3.1-8b" {
					t.Errorf("unexpected LLM settings %s / %s", settings.LLMBaseURL, settings.LLMModel)
				}
				if settings.LLMTimeout != 20*time.Second {
					t.Errorf("expected LLM timeout 20s, got %v", settings.LLMTimeout)
				}
				if settings.LLMFailureThreshold != 3 {
					t.Errorf("expected failure threshold 3, got %d", settings.LLMFailureThreshold)
				}
				if settings.NarrativeTimeout != 25*time.Second {
					t.Errorf("expected narrative timeout 25s, got %v", settings.NarrativeTimeout)
				}
				if settings.Temperatures.Reasoning != 0.4 {
					t.Errorf("expected reasoning temperature 0.4, got %f", settings.Temperatures.Reasoning)
				}
				if settings.WriteTimeout != 3*time.Minute {
					t.Errorf("expected write timeout 3m, got %v", settings.WriteTimeout)
				}
				if settings.Log.Level != "debug" || settings.Log.File != "/var/log/sifra.log" || settings.Log.MaxSizeMB != 50 {
					t.Errorf("unexpected log settings %+v", settings.Log)
				}
				// Unset keys keep defaults
				if settings.MaxBodyBytes != 1<<20 {
					t.Errorf("expected default body limit, got %d", settings.MaxBodyBytes)
				}
				if settings.Log.MaxBackups != 3 {
					t.Errorf("expected default backups, got %d", settings.Log.MaxBackups)
				}
			},
		},
		{
			name: "environment overrides YAML",
			yamlContent: `
server:
  port: 8100
llm:
  model: "from-yaml"
`,
			envOverrides: map[string]string{
				"PORT":      "8200",
				"LLM_MODEL": "from-env",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 8200 {
					t.Errorf("expected env port 8200, got %d", settings.Port)
				}
				if settings.LLMModel != "from-env" {
					t.Errorf("expected env model, got %s", settings.LLMModel)
				}
			},
		},
		{
			name:        "invalid YAML",
			yamlContent: "server: [unclosed",
			wantErr:     true,
		},
		{
			name: "invalid duration",
			yamlContent: `
llm:
  timeout: "soon"
`,
			wantErr: true,
		},
		{
			name: "invalid weights",
			yamlContent: `
model:
  weights:
    tree_a: 1
    tree_b: 1
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)

			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlContent), 0o644); err != nil {
				t.Fatalf("failed to write config file: %v", err)
			}
			for key, value := range tt.envOverrides {
				t.Setenv(key, value)
			}

			settings, err := loadFromYAML(configPath)

			if tt.wantErr && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad_UsesConfigFile(t *testing.T) {
	clearTestEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("server:\n  port: 8300\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Port != 8300 {
		t.Errorf("expected port from file, got %d", settings.Port)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestParseWeights(t *testing.T) {
	w, err := parseWeights("tree_a=0.25,tree_b=0.25,stacked=0.15,linear=0.2,neighbor=0.15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != risk.DefaultWeights() {
		t.Errorf("expected default weights, got %+v", w)
	}

	if _, err := parseWeights("tree_a=abc"); err == nil {
		t.Error("expected error for non-numeric weight")
	}
}

func clearTestEnv(t *testing.T) {
	envVars := []string{
		common.EnvConfigFile, common.EnvPort, common.EnvModelDir, common.EnvDataPath,
		common.EnvStoreDriver, common.EnvDatabaseURL, common.EnvHistoryCache,
		common.EnvLLMBaseURL, common.EnvLLMAPIKey, common.EnvLLMModel, common.EnvLLMTimeout,
		common.EnvLLMMaxTokens, common.EnvLLMRPS, common.EnvLLMFailures, common.EnvLLMOpenTimeout,
		common.EnvNarrativeTimeout,
		common.EnvTempPlanning, common.EnvTempReasoning, common.EnvTempChat, common.EnvTempDocument,
		common.EnvReferenceSlot, common.EnvWeights,
		common.EnvCORSOrigins, common.EnvMaxBodyBytes, common.EnvMaxUpload, common.EnvWriteTimeout,
		common.EnvLogLevel, common.EnvLogFormat, common.EnvLogFile,
		common.EnvLogMaxSizeMB, common.EnvLogMaxBackups, common.EnvLogMaxAgeDays,
	}

	for _, env := range envVars {
		if val := os.Getenv(env); val != "" {
			t.Setenv(env, "")
		}
	}
}
