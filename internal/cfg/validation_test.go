package cfg

import (
	"math"
	"strings"
	"testing"
	"time"

	"sifra/internal/common"
	"sifra/internal/ml"
	"sifra/internal/risk"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	s := Defaults()
	return &s
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantMsg string
	}{
		{"port zero", func(s *Settings) { s.Port = 0 }, "port must be between"},
		{"port too large", func(s *Settings) { s.Port = 70000 }, "port must be between"},
		{"empty model dir", func(s *Settings) { s.ModelDir = "" }, "model directory"},
		{"bolt without data path", func(s *Settings) { s.DataPath = "" }, "data path"},
		{"postgres without url", func(s *Settings) { s.StoreDriver = common.StorePostgres }, "DATABASE_URL"},
		{"unknown driver", func(s *Settings) { s.StoreDriver = "redis" }, "unknown store driver"},
		{"negative cache", func(s *Settings) { s.HistoryCacheSize = -1 }, "history cache size"},
		{"empty llm url", func(s *Settings) { s.LLMBaseURL = "" }, "base URL"},
		{"empty llm model", func(s *Settings) { s.LLMModel = "" }, "LLM model"},
		{"llm timeout too short", func(s *Settings) { s.LLMTimeout = 100 * time.Millisecond }, "LLM timeout"},
		{"llm timeout too long", func(s *Settings) { s.LLMTimeout = time.Hour }, "LLM timeout"},
		{"narrative timeout", func(s *Settings) { s.NarrativeTimeout = 0 }, "narrative timeout"},
		{"open timeout", func(s *Settings) { s.LLMOpenTimeout = 0 }, "open timeout"},
		{"negative max tokens", func(s *Settings) { s.LLMMaxTokens = -1 }, "max tokens"},
		{"zero rps", func(s *Settings) { s.LLMRequestsPerSecond = 0 }, "requests per second"},
		{"zero failure threshold", func(s *Settings) { s.LLMFailureThreshold = 0 }, "failure threshold"},
		{"negative temperature", func(s *Settings) { s.Temperatures.Reasoning = -0.1 }, "reasoning temperature"},
		{"nan temperature", func(s *Settings) { s.Temperatures.Chat = math.NaN() }, "chat temperature"},
		{"reference not a tree", func(s *Settings) { s.ReferenceSlot = ml.SlotStacked }, "reference classifier"},
		{"weights sum", func(s *Settings) { s.Weights = risk.Weights{TreeA: 1, TreeB: 1} }, "consensus weights"},
		{"negative weight", func(s *Settings) {
			s.Weights = risk.Weights{TreeA: 1.25, TreeB: -0.25}
		}, "consensus weights"},
		{"no cors origins", func(s *Settings) { s.CORSOrigins = nil }, "CORS"},
		{"tiny body limit", func(s *Settings) { s.MaxBodyBytes = 10 }, "max body bytes"},
		{"huge upload limit", func(s *Settings) { s.MaxUploadBytes = 1 << 30 }, "max upload bytes"},
		{"write timeout", func(s *Settings) { s.WriteTimeout = time.Second }, "write timeout"},
		{"log format", func(s *Settings) { s.Log.Format = "xml" }, "log format"},
		{"log rotation", func(s *Settings) {
			s.Log.File = "/tmp/sifra.log"
			s.Log.MaxSizeMB = 0
		}, "rotation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestValidateSettings_AcceptedVariants(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"no store", func(s *Settings) { s.StoreDriver = common.StoreNone; s.DataPath = "" }},
		{"postgres with url", func(s *Settings) {
			s.StoreDriver = common.StorePostgres
			s.DatabaseURL = "postgres://localhost/sifra"
		}},
		{"tree_b reference", func(s *Settings) { s.ReferenceSlot = ml.SlotTreeB }},
		{"no history cache", func(s *Settings) { s.HistoryCacheSize = 0 }},
		{"zero temperature", func(s *Settings) { s.Temperatures.Planning = 0 }},
		{"max temperature", func(s *Settings) { s.Temperatures.Document = 2 }},
		{"json logs", func(s *Settings) { s.Log.Format = common.LogFormatJSON }},
		{"equal timeouts", func(s *Settings) { s.WriteTimeout = s.NarrativeTimeout }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			if err := validateSettings(settings); err != nil {
				t.Errorf("Expected settings to pass, got error: %v", err)
			}
		})
	}
}
