package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sifra/internal/narrative"
)

type mockMetrics struct {
	mu        sync.Mutex
	latencies int
	failures  int
	state     float64
}

func (m *mockMetrics) LLMLatencyObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}

func (m *mockMetrics) LLMFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *mockMetrics) LLMBreakerStateSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = v
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func testConfig(url string) Config {
	return Config{
		BaseURL:           url + "/v1/",
		APIKey:            "lm-studio",
		Model:             "test-model",
		Timeout:           2 * time.Second,
		RequestsPerSecond: 1000,
		FailureThreshold:  2,
		OpenTimeout:       time.Minute,
	}
}

func TestClient_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer lm-studio", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"2. Specialist referral"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	metrics := &mockMetrics{}
	c := New(testConfig(srv.URL), metrics)

	msgs := []narrative.Message{
		{Role: narrative.RoleSystem, Content: narrative.Persona},
		{Role: narrative.RoleUser, Content: "hello"},
	}
	out, err := c.Complete(context.Background(), msgs, 0)
	require.NoError(t, err)
	assert.Equal(t, "2. Specialist referral", out)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, msgs, got.Messages)
	assert.Equal(t, 0.0, got.Temperature)
	assert.Equal(t, 1, metrics.latencies)
	assert.Equal(t, 0, metrics.failures)
}

func TestClient_TemperatureAlwaysSent(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		writeJSON(w, http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil)
	_, err := c.Complete(context.Background(), []narrative.Message{{Role: "user", Content: "x"}}, 0)
	require.NoError(t, err)
	assert.Contains(t, raw, "temperature")
	assert.NotContains(t, raw, "max_tokens")
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error body", http.StatusBadRequest, `{"error":{"message":"model not loaded","type":"invalid_request"}}`, "model not loaded"},
		{"bare status", http.StatusBadGateway, `{}`, "status 502"},
		{"no choices", http.StatusOK, `{"choices":[]}`, "no choices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}))
			defer srv.Close()

			metrics := &mockMetrics{}
			c := New(testConfig(srv.URL), metrics)
			_, err := c.Complete(context.Background(), []narrative.Message{{Role: "user", Content: "x"}}, 0.3)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 1, metrics.failures)
		})
	}

	c := New(testConfig("http://127.0.0.1:1"), nil)
	_, err := c.Complete(context.Background(), nil, 0.3)
	assert.Error(t, err)
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"error":{"message":"overloaded"}}`)
	}))
	defer srv.Close()

	metrics := &mockMetrics{}
	c := New(testConfig(srv.URL), metrics)
	msgs := []narrative.Message{{Role: "user", Content: "x"}}

	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), msgs, 0.3)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	_, err := c.Complete(context.Background(), msgs, 0.3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker does not reach the server")
	assert.Equal(t, 2.0, metrics.state, "open state reported")
	assert.Equal(t, 3, metrics.failures)
}

func TestClient_CancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"choices":[{"message":{"content":"late"}}]}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, []narrative.Message{{Role: "user", Content: "x"}}, 0.3)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	c := New(Config{}, nil)
	assert.Equal(t, defaultModel, c.Model())
	assert.Equal(t, defaultBaseURL, c.cfg.BaseURL)
	assert.Equal(t, defaultTimeout, c.cfg.Timeout)
}
