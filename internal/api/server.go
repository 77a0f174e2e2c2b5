// Package api exposes the assessment pipeline and the chat agents over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"sifra/internal/analysis"
	"sifra/internal/ml"
	"sifra/internal/risk"
	"sifra/internal/storage"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"

	defaultMaxBody     = 1 << 20
	defaultChatTimeout = 90 * time.Second
)

// Analyzer runs one assessment. *analysis.Analyzer implements it.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Result, error)
}

// Chatter answers free-form questions and reads documents. *narrative.Agents
// implements it.
type Chatter interface {
	Chat(ctx context.Context, message string) (string, error)
	AnalyzeDocument(ctx context.Context, text string) (string, error)
}

// ModelInfoProvider describes the loaded model bank. *ml.Bank implements it.
type ModelInfoProvider interface {
	Info() ml.ModelInfo
}

// MetricsInterface records per-request HTTP metrics.
type MetricsInterface interface {
	HTTPRequestObserve(method, route string, status int, seconds float64)
}

// Deps are the collaborators of the router. Store may be nil when history is
// disabled; Metrics and Gatherer may be nil in tests.
type Deps struct {
	Analyzer Analyzer
	Agents   Chatter
	Models   ModelInfoProvider
	Weights  risk.Weights
	Store    storage.Store
	Metrics  MetricsInterface
	Gatherer prometheus.Gatherer

	CORSOrigins    []string
	MaxBodyBytes   int64
	MaxUploadBytes int64
	ChatTimeout    time.Duration
	WSIdleTimeout  time.Duration
}

type server struct {
	Deps
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = defaultMaxBody
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 10 << 20
	}
	if d.ChatTimeout <= 0 {
		d.ChatTimeout = defaultChatTimeout
	}
	if d.WSIdleTimeout <= 0 {
		d.WSIdleTimeout = defaultWSIdleTimeout
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	s := &server{Deps: d}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestLogger(),
		s.observe(),
		cors.New(corsConfig(d.CORSOrigins)),
	)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "SIFRA Backend Running",
			"message": "Agentic Clinical AI Ready",
		})
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", s.readyz)

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	jsonBody := limitBodySize(d.MaxBodyBytes)
	router.POST("/analyze", jsonBody, s.analyze)
	router.POST("/chat", jsonBody, s.chat)
	router.POST("/upload-pdf", limitBodySize(d.MaxUploadBytes), s.uploadPDF)
	router.GET("/ws/chat", s.wsChat)

	api := router.Group("/api")
	api.GET("/model", s.modelInfo)
	api.GET("/assessments", s.listAssessments)
	api.GET("/assessments/:id", s.getAssessment)

	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", headerRequestID},
		ExposeHeaders: []string{headerRequestID},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			config.AllowAllOrigins = true
			return config
		}
	}
	config.AllowOrigins = origins
	return config
}

func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(headerRequestID, id)

		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.
			Str("request_id", id).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

func (s *server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.Metrics == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.Metrics.HTTPRequestObserve(c.Request.Method, route, c.Writer.Status(), time.Since(start).Seconds())
	}
}

func (s *server) readyz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	status := http.StatusOK

	if s.Models == nil {
		body["model"] = "not loaded"
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		body["model"] = s.Models.Info().Version
	}

	if s.Store == nil {
		body["history"] = "disabled"
	} else {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.Store.Ping(ctx); err != nil {
			body["history"] = "unhealthy: " + err.Error()
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			body["history"] = "ok"
		}
	}

	c.JSON(status, body)
}

func requestID(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
