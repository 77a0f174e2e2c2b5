package common

import "time"

// Environment variable keys
const (
	EnvConfigFile = "CONFIG_FILE"
	EnvPort       = "PORT"
	EnvModelDir   = "MODEL_DIR"
	EnvDataPath   = "DATA_PATH"

	EnvStoreDriver  = "STORE_DRIVER"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvHistoryCache = "HISTORY_CACHE_SIZE"

	EnvLLMBaseURL       = "LLM_BASE_URL"
	EnvLLMAPIKey        = "LLM_API_KEY"
	EnvLLMModel         = "LLM_MODEL"
	EnvLLMTimeout       = "LLM_TIMEOUT"
	EnvLLMMaxTokens     = "LLM_MAX_TOKENS"
	EnvLLMRPS           = "LLM_REQUESTS_PER_SECOND"
	EnvLLMFailures      = "LLM_FAILURE_THRESHOLD"
	EnvLLMOpenTimeout   = "LLM_OPEN_TIMEOUT"
	EnvNarrativeTimeout = "NARRATIVE_TIMEOUT"

	EnvTempPlanning  = "TEMPERATURE_PLANNING"
	EnvTempReasoning = "TEMPERATURE_REASONING"
	EnvTempChat      = "TEMPERATURE_CHAT"
	EnvTempDocument  = "TEMPERATURE_DOCUMENT"

	EnvReferenceSlot = "REFERENCE_CLASSIFIER"
	EnvWeights       = "CONSENSUS_WEIGHTS"

	EnvCORSOrigins  = "CORS_ORIGINS"
	EnvMaxBodyBytes = "MAX_BODY_BYTES"
	EnvMaxUpload    = "MAX_UPLOAD_BYTES"
	EnvWriteTimeout = "SERVER_WRITE_TIMEOUT"

	EnvLogLevel      = "LOG_LEVEL"
	EnvLogFormat     = "LOG_FORMAT"
	EnvLogFile       = "LOG_FILE"
	EnvLogMaxSizeMB  = "LOG_MAX_SIZE_MB"
	EnvLogMaxBackups = "LOG_MAX_BACKUPS"
	EnvLogMaxAgeDays = "LOG_MAX_AGE_DAYS"
)

// Configuration defaults
const (
	DefaultPort         = 8000
	DefaultModelDir     = "models"
	DefaultDataPath     = "data"
	DefaultStoreDriver  = StoreBolt
	DefaultHistoryCache = 256
	DefaultLLMBaseURL   = "http://127.0.0.1:1234/v1"
	DefaultLLMModel     = "meta-llama-3-8b-instruct"
	DefaultLLMTimeout   = 60 * time.Second
	DefaultLLMRPS       = 5.0
	DefaultLLMFailures  = 5
	DefaultLLMOpen      = 30 * time.Second
	DefaultNarrativeTTL = 90 * time.Second
	DefaultReference    = "tree_a"
	DefaultMaxBodyBytes = 1 << 20
	DefaultMaxUpload    = 10 << 20
	DefaultWriteTimeout = 120 * time.Second
	DefaultLogLevel     = "info"
	DefaultLogFormat    = LogFormatConsole
	DefaultLogMaxSizeMB = 100
	DefaultLogBackups   = 3
	DefaultLogMaxAge    = 28
)

// Store drivers
const (
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
	StoreNone     = "none"
)

// Log formats
const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// Validation constants
const (
	MinPort           = 1
	MaxPort           = 65535
	MaxTemperature    = 2.0
	MinLLMTimeout     = time.Second
	MaxLLMTimeout     = 10 * time.Minute
	MaxLLMRPS         = 1000.0
	MinMaxBodyBytes   = 1 << 10
	MaxMaxUploadBytes = 100 << 20
	MaxHistoryCache   = 100000
)

// Common error messages
const (
	ErrMsgDatabaseURLRequired = "DATABASE_URL is required when the postgres store is selected"
	ErrMsgModelDirRequired    = "model directory is required"
)
