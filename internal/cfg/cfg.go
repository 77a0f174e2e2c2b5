package cfg

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sifra/internal/common"
	"sifra/internal/ml"
	"sifra/internal/narrative"
	"sifra/internal/risk"
)

type Settings struct {
	Port     int
	ModelDir string
	DataPath string

	StoreDriver      string
	DatabaseURL      string
	HistoryCacheSize int

	LLMBaseURL           string
	LLMAPIKey            string
	LLMModel             string
	LLMTimeout           time.Duration
	LLMMaxTokens         int
	LLMRequestsPerSecond float64
	LLMFailureThreshold  int
	LLMOpenTimeout       time.Duration
	NarrativeTimeout     time.Duration
	Temperatures         narrative.Temperatures

	ReferenceSlot ml.Slot
	Weights       risk.Weights

	CORSOrigins    []string
	MaxBodyBytes   int64
	MaxUploadBytes int64
	WriteTimeout   time.Duration

	Log LogSettings
}

// LogSettings configures the global logger.
type LogSettings struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type ConfigFile struct {
	Server struct {
		Port           int      `yaml:"port"`
		CORSOrigins    []string `yaml:"corsOrigins"`
		MaxBodyBytes   int64    `yaml:"maxBodyBytes"`
		MaxUploadBytes int64    `yaml:"maxUploadBytes"`
		WriteTimeout   string   `yaml:"writeTimeout"`
	} `yaml:"server"`

	Model struct {
		Dir           string        `yaml:"dir"`
		ReferenceSlot string        `yaml:"reference"`
		Weights       *risk.Weights `yaml:"weights"`
	} `yaml:"model"`

	Storage struct {
		Driver      string `yaml:"driver"`
		DataPath    string `yaml:"dataPath"`
		DatabaseURL string `yaml:"databaseURL"`
		CacheSize   *int   `yaml:"cacheSize"`
	} `yaml:"storage"`

	LLM struct {
		BaseURL           string  `yaml:"baseURL"`
		APIKey            string  `yaml:"apiKey"`
		Model             string  `yaml:"model"`
		Timeout           string  `yaml:"timeout"`
		MaxTokens         int     `yaml:"maxTokens"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond"`
		FailureThreshold  int     `yaml:"failureThreshold"`
		OpenTimeout       string  `yaml:"openTimeout"`
	} `yaml:"llm"`

	Narrative struct {
		Timeout      string                  `yaml:"timeout"`
		Temperatures *narrative.Temperatures `yaml:"temperatures"`
	} `yaml:"narrative"`

	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"logging"`
}

// Load reads .env (if present), then the YAML file named by CONFIG_FILE (if
// set), then environment variables. Environment always wins.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		Port:                 common.DefaultPort,
		ModelDir:             common.DefaultModelDir,
		DataPath:             common.DefaultDataPath,
		StoreDriver:          common.DefaultStoreDriver,
		HistoryCacheSize:     common.DefaultHistoryCache,
		LLMBaseURL:           common.DefaultLLMBaseURL,
		LLMModel:             common.DefaultLLMModel,
		LLMTimeout:           common.DefaultLLMTimeout,
		LLMRequestsPerSecond: common.DefaultLLMRPS,
		LLMFailureThreshold:  common.DefaultLLMFailures,
		LLMOpenTimeout:       common.DefaultLLMOpen,
		NarrativeTimeout:     common.DefaultNarrativeTTL,
		Temperatures:         narrative.DefaultTemperatures(),
		ReferenceSlot:        common.DefaultReference,
		Weights:              risk.DefaultWeights(),
		CORSOrigins:          []string{"*"},
		MaxBodyBytes:         common.DefaultMaxBodyBytes,
		MaxUploadBytes:       common.DefaultMaxUpload,
		WriteTimeout:         common.DefaultWriteTimeout,
		Log: LogSettings{
			Level:      common.DefaultLogLevel,
			Format:     common.DefaultLogFormat,
			MaxSizeMB:  common.DefaultLogMaxSizeMB,
			MaxBackups: common.DefaultLogBackups,
			MaxAgeDays: common.DefaultLogMaxAge,
		},
	}
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	settings := Defaults()
	if err := applyFile(&settings, &config); err != nil {
		return Settings{}, err
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Defaults()
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

// applyFile overlays non-zero file values on s.
func applyFile(s *Settings, config *ConfigFile) error {
	setInt(&s.Port, config.Server.Port)
	if len(config.Server.CORSOrigins) > 0 {
		s.CORSOrigins = config.Server.CORSOrigins
	}
	setInt64(&s.MaxBodyBytes, config.Server.MaxBodyBytes)
	setInt64(&s.MaxUploadBytes, config.Server.MaxUploadBytes)

	setString(&s.ModelDir, config.Model.Dir)
	if config.Model.ReferenceSlot != "" {
		s.ReferenceSlot = ml.Slot(config.Model.ReferenceSlot)
	}
	if config.Model.Weights != nil {
		s.Weights = *config.Model.Weights
	}

	setString(&s.StoreDriver, config.Storage.Driver)
	setString(&s.DataPath, config.Storage.DataPath)
	setString(&s.DatabaseURL, config.Storage.DatabaseURL)
	if config.Storage.CacheSize != nil {
		s.HistoryCacheSize = *config.Storage.CacheSize
	}

	setString(&s.LLMBaseURL, config.LLM.BaseURL)
	setString(&s.LLMAPIKey, config.LLM.APIKey)
	setString(&s.LLMModel, config.LLM.Model)
	setInt(&s.LLMMaxTokens, config.LLM.MaxTokens)
	setInt(&s.LLMFailureThreshold, config.LLM.FailureThreshold)
	if config.LLM.RequestsPerSecond != 0 {
		s.LLMRequestsPerSecond = config.LLM.RequestsPerSecond
	}
	if config.Narrative.Temperatures != nil {
		s.Temperatures = *config.Narrative.Temperatures
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.writeTimeout", config.Server.WriteTimeout, &s.WriteTimeout},
		{"llm.timeout", config.LLM.Timeout, &s.LLMTimeout},
		{"llm.openTimeout", config.LLM.OpenTimeout, &s.LLMOpenTimeout},
		{"narrative.timeout", config.Narrative.Timeout, &s.NarrativeTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
		*d.dst = v
	}

	setString(&s.Log.Level, config.Logging.Level)
	setString(&s.Log.Format, config.Logging.Format)
	setString(&s.Log.File, config.Logging.File)
	setInt(&s.Log.MaxSizeMB, config.Logging.MaxSizeMB)
	setInt(&s.Log.MaxBackups, config.Logging.MaxBackups)
	setInt(&s.Log.MaxAgeDays, config.Logging.MaxAgeDays)
	return nil
}

// applyEnv overlays environment variables on s. Unparseable numbers keep the
// current value, like the rest of the getters; weights are the exception
// because a half-parsed blend is worse than failing.
func applyEnv(s *Settings) error {
	s.Port = getIntOrDefault(common.EnvPort, s.Port)
	s.ModelDir = getEnvOrDefault(common.EnvModelDir, s.ModelDir)
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)

	s.StoreDriver = strings.ToLower(getEnvOrDefault(common.EnvStoreDriver, s.StoreDriver))
	s.DatabaseURL = getEnvOrDefault(common.EnvDatabaseURL, s.DatabaseURL)
	s.HistoryCacheSize = getIntOrDefault(common.EnvHistoryCache, s.HistoryCacheSize)

	s.LLMBaseURL = getEnvOrDefault(common.EnvLLMBaseURL, s.LLMBaseURL)
	s.LLMAPIKey = getEnvOrDefault(common.EnvLLMAPIKey, s.LLMAPIKey)
	s.LLMModel = getEnvOrDefault(common.EnvLLMModel, s.LLMModel)
	s.LLMTimeout = getDurationOrDefault(common.EnvLLMTimeout, s.LLMTimeout)
	s.LLMMaxTokens = getIntOrDefault(common.EnvLLMMaxTokens, s.LLMMaxTokens)
	s.LLMRequestsPerSecond = getFloatOrDefault(common.EnvLLMRPS, s.LLMRequestsPerSecond)
	s.LLMFailureThreshold = getIntOrDefault(common.EnvLLMFailures, s.LLMFailureThreshold)
	s.LLMOpenTimeout = getDurationOrDefault(common.EnvLLMOpenTimeout, s.LLMOpenTimeout)
	s.NarrativeTimeout = getDurationOrDefault(common.EnvNarrativeTimeout, s.NarrativeTimeout)

	s.Temperatures.Planning = getFloatOrDefault(common.EnvTempPlanning, s.Temperatures.Planning)
	s.Temperatures.Reasoning = getFloatOrDefault(common.EnvTempReasoning, s.Temperatures.Reasoning)
	s.Temperatures.Chat = getFloatOrDefault(common.EnvTempChat, s.Temperatures.Chat)
	s.Temperatures.Document = getFloatOrDefault(common.EnvTempDocument, s.Temperatures.Document)

	s.ReferenceSlot = ml.Slot(getEnvOrDefault(common.EnvReferenceSlot, string(s.ReferenceSlot)))
	if v := os.Getenv(common.EnvWeights); v != "" {
		w, err := parseWeights(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", common.EnvWeights, err)
		}
		s.Weights = w
	}

	s.CORSOrigins = splitOrDefault(os.Getenv(common.EnvCORSOrigins), s.CORSOrigins)
	s.MaxBodyBytes = int64(getIntOrDefault(common.EnvMaxBodyBytes, int(s.MaxBodyBytes)))
	s.MaxUploadBytes = int64(getIntOrDefault(common.EnvMaxUpload, int(s.MaxUploadBytes)))
	s.WriteTimeout = getDurationOrDefault(common.EnvWriteTimeout, s.WriteTimeout)

	s.Log.Level = getEnvOrDefault(common.EnvLogLevel, s.Log.Level)
	s.Log.Format = strings.ToLower(getEnvOrDefault(common.EnvLogFormat, s.Log.Format))
	s.Log.File = getEnvOrDefault(common.EnvLogFile, s.Log.File)
	s.Log.MaxSizeMB = getIntOrDefault(common.EnvLogMaxSizeMB, s.Log.MaxSizeMB)
	s.Log.MaxBackups = getIntOrDefault(common.EnvLogMaxBackups, s.Log.MaxBackups)
	s.Log.MaxAgeDays = getIntOrDefault(common.EnvLogMaxAgeDays, s.Log.MaxAgeDays)
	return nil
}

// parseWeights reads "tree_a=0.25,tree_b=0.25,...". Slots left out get 0.
func parseWeights(v string) (risk.Weights, error) {
	var w risk.Weights
	for _, part := range strings.Split(v, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return risk.Weights{}, fmt.Errorf("expected slot=weight, got %q", part)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return risk.Weights{}, fmt.Errorf("weight for %s: %w", name, err)
		}
		switch ml.Slot(strings.TrimSpace(name)) {
		case ml.SlotTreeA:
			w.TreeA = f
		case ml.SlotTreeB:
			w.TreeB = f
		case ml.SlotStacked:
			w.Stacked = f
		case ml.SlotLinear:
			w.Linear = f
		case ml.SlotNeighbor:
			w.Neighbor = f
		default:
			return risk.Weights{}, fmt.Errorf("unknown classifier slot %q", name)
		}
	}
	return w, nil
}

// Addr is the listen address for the HTTP server.
func (s *Settings) Addr() string {
	return ":" + strconv.Itoa(s.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if settings.ModelDir == "" {
		return fmt.Errorf(common.ErrMsgModelDirRequired)
	}

	// Storage
	switch settings.StoreDriver {
	case common.StoreBolt:
		if settings.DataPath == "" {
			return fmt.Errorf("data path is required for the bolt store")
		}
	case common.StorePostgres:
		if settings.DatabaseURL == "" {
			return fmt.Errorf(common.ErrMsgDatabaseURLRequired)
		}
	case common.StoreNone:
	default:
		return fmt.Errorf("unknown store driver %q (want %s, %s or %s)",
			settings.StoreDriver, common.StoreBolt, common.StorePostgres, common.StoreNone)
	}
	if settings.HistoryCacheSize < 0 || settings.HistoryCacheSize > common.MaxHistoryCache {
		return fmt.Errorf("history cache size must be between 0 and %d, got %d", common.MaxHistoryCache, settings.HistoryCacheSize)
	}

	// LLM client
	if settings.LLMBaseURL == "" {
		return fmt.Errorf("LLM base URL cannot be empty")
	}
	if settings.LLMModel == "" {
		return fmt.Errorf("LLM model cannot be empty")
	}
	if settings.LLMTimeout < common.MinLLMTimeout || settings.LLMTimeout > common.MaxLLMTimeout {
		return fmt.Errorf("LLM timeout must be between %v and %v, got %v", common.MinLLMTimeout, common.MaxLLMTimeout, settings.LLMTimeout)
	}
	if settings.NarrativeTimeout < common.MinLLMTimeout || settings.NarrativeTimeout > common.MaxLLMTimeout {
		return fmt.Errorf("narrative timeout must be between %v and %v, got %v", common.MinLLMTimeout, common.MaxLLMTimeout, settings.NarrativeTimeout)
	}
	if settings.LLMOpenTimeout < time.Second {
		return fmt.Errorf("LLM open timeout must be at least 1s, got %v", settings.LLMOpenTimeout)
	}
	if settings.LLMMaxTokens < 0 {
		return fmt.Errorf("LLM max tokens cannot be negative, got %d", settings.LLMMaxTokens)
	}
	if settings.LLMRequestsPerSecond <= 0 || settings.LLMRequestsPerSecond > common.MaxLLMRPS {
		return fmt.Errorf("LLM requests per second must be in (0, %v], got %v", common.MaxLLMRPS, settings.LLMRequestsPerSecond)
	}
	if settings.LLMFailureThreshold < 1 {
		return fmt.Errorf("LLM failure threshold must be at least 1, got %d", settings.LLMFailureThreshold)
	}

	temps := map[string]float64{
		"planning":  settings.Temperatures.Planning,
		"reasoning": settings.Temperatures.Reasoning,
		"chat":      settings.Temperatures.Chat,
		"document":  settings.Temperatures.Document,
	}
	for name, v := range temps {
		if math.IsNaN(v) || v < 0 || v > common.MaxTemperature {
			return fmt.Errorf("%s temperature must be between 0 and %v, got %v", name, common.MaxTemperature, v)
		}
	}

	// Model
	if !ml.IsTreeSlot(settings.ReferenceSlot) {
		return fmt.Errorf("reference classifier must be %s or %s, got %q", ml.SlotTreeA, ml.SlotTreeB, settings.ReferenceSlot)
	}
	if err := settings.Weights.Validate(); err != nil {
		return fmt.Errorf("consensus weights: %w", err)
	}

	// HTTP
	if len(settings.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin must be specified")
	}
	if settings.MaxBodyBytes < common.MinMaxBodyBytes {
		return fmt.Errorf("max body bytes must be at least %d, got %d", common.MinMaxBodyBytes, settings.MaxBodyBytes)
	}
	if settings.MaxUploadBytes < common.MinMaxBodyBytes || settings.MaxUploadBytes > common.MaxMaxUploadBytes {
		return fmt.Errorf("max upload bytes must be between %d and %d, got %d", common.MinMaxBodyBytes, common.MaxMaxUploadBytes, settings.MaxUploadBytes)
	}
	if settings.WriteTimeout < settings.NarrativeTimeout {
		return fmt.Errorf("server write timeout (%v) must not be shorter than the narrative timeout (%v)", settings.WriteTimeout, settings.NarrativeTimeout)
	}

	// Logging
	switch settings.Log.Format {
	case common.LogFormatConsole, common.LogFormatJSON:
	default:
		return fmt.Errorf("log format must be %s or %s, got %q", common.LogFormatConsole, common.LogFormatJSON, settings.Log.Format)
	}
	if settings.Log.File != "" && (settings.Log.MaxSizeMB <= 0 || settings.Log.MaxBackups < 0 || settings.Log.MaxAgeDays < 0) {
		return fmt.Errorf("log rotation limits must be positive")
	}

	return nil
}
