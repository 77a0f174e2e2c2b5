package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"sifra/internal/analysis"
	"sifra/internal/llm"
	"sifra/internal/ml"
	"sifra/internal/pdftext"
	"sifra/internal/risk"
	"sifra/internal/storage"
)

type modelResponse struct {
	ml.ModelInfo
	Weights risk.Weights `json:"weights"`
}

type analyzeRequest struct {
	Name     string         `json:"name"`
	Features map[string]any `json:"features" binding:"required"`
	Glucose  *float64       `json:"glucose" binding:"required"`
	HbA1c    *float64       `json:"hba1c" binding:"required"`
}

type analyzeResponse struct {
	Success bool `json:"success"`
	*analysis.Result
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg})
}

// bindJSON reports binding failures itself and returns false when the handler
// should stop.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if isTooLarge(err) {
			abortError(c, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *server) analyze(c *gin.Context) {
	var body analyzeRequest
	if !bindJSON(c, &body) {
		return
	}

	res, err := s.Analyzer.Analyze(c.Request.Context(), analysis.Request{
		Name:     body.Name,
		Features: body.Features,
		Glucose:  *body.Glucose,
		HbA1c:    *body.HbA1c,
	})
	if err != nil {
		var inErr *risk.InputError
		if errors.As(err, &inErr) {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: inErr.Error(), Field: inErr.Field})
			return
		}
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("Assessment failed")
		abortError(c, http.StatusInternalServerError, "SIFRA processing error: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, analyzeResponse{Success: true, Result: res})
}

func (s *server) chat(c *gin.Context) {
	var body chatRequest
	if !bindJSON(c, &body) {
		return
	}
	message := strings.TrimSpace(body.Message)
	if message == "" {
		abortError(c, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := s.reply(c.Request.Context(), message)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID(c)).Msg("Chat completion failed")
		abortError(c, completionStatus(err), "chat assistant unavailable: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, chatResponse{Reply: reply})
}

func (s *server) reply(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.ChatTimeout)
	defer cancel()
	return s.Agents.Chat(ctx, message)
}

func (s *server) uploadPDF(c *gin.Context) {
	if c.Request.ContentLength > s.MaxUploadBytes {
		abortError(c, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			abortError(c, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		abortError(c, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	if fh.Size > s.MaxUploadBytes {
		abortError(c, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	f, err := fh.Open()
	if err != nil {
		abortError(c, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.MaxUploadBytes))
	if err != nil {
		abortError(c, http.StatusBadRequest, "could not read upload: "+err.Error())
		return
	}

	text, err := pdftext.Extract(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdftext.ErrNoText) {
			abortError(c, http.StatusUnprocessableEntity, "document contains no extractable text")
			return
		}
		abortError(c, http.StatusBadRequest, "not a readable PDF: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.ChatTimeout)
	defer cancel()

	reply, err := s.Agents.AnalyzeDocument(ctx, text)
	if err != nil {
		log.Warn().Err(err).Str("request_id", requestID(c)).Str("file", fh.Filename).Msg("Document analysis failed")
		abortError(c, completionStatus(err), "document assistant unavailable: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, chatResponse{Reply: reply})
}

func completionStatus(err error) int {
	if errors.Is(err, llm.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}

func (s *server) modelInfo(c *gin.Context) {
	if s.Models == nil {
		abortError(c, http.StatusServiceUnavailable, "model bank not loaded")
		return
	}
	c.JSON(http.StatusOK, modelResponse{ModelInfo: s.Models.Info(), Weights: s.Weights})
}

func (s *server) listAssessments(c *gin.Context) {
	if s.Store == nil {
		abortError(c, http.StatusServiceUnavailable, "assessment history is disabled")
		return
	}

	limit := storage.DefaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			abortError(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = storage.ClampLimit(n)
	}

	records, err := s.Store.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("Failed to list assessments")
		abortError(c, http.StatusInternalServerError, "could not read assessment history")
		return
	}
	// listings omit the full payload
	for i := range records {
		records[i].Payload = nil
	}
	c.JSON(http.StatusOK, gin.H{"assessments": records, "count": len(records)})
}

func (s *server) getAssessment(c *gin.Context) {
	if s.Store == nil {
		abortError(c, http.StatusServiceUnavailable, "assessment history is disabled")
		return
	}

	rec, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		abortError(c, http.StatusNotFound, "assessment not found")
		return
	case err != nil:
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("Failed to read assessment")
		abortError(c, http.StatusInternalServerError, "could not read assessment history")
		return
	}
	c.JSON(http.StatusOK, rec)
}
