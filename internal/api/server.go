package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attnlens/attnlens/internal/analyze"
	"github.com/attnlens/attnlens/internal/logger"
)

// AnalyzeService runs the model analysis pipeline for one request.
type AnalyzeService interface {
	Analyze(ctx context.Context, prompt, modelName string) (*analyze.Result, error)
}

type Server struct {
	service AnalyzeService
	log     logger.Logger
}

func NewServer(service AnalyzeService, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{service: service, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/api/analyze", s.handleAnalyze)
	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleMetrics(c *echo.Context) error {
	promhttp.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (s *Server) handleAnalyze(c *echo.Context) error {
	if s.service == nil {
		return writeServerError(c, "analysis service not configured")
	}

	req, input, err := decodeBody(c.Request().Body)
	if err != nil {
		return writeValidationError(c, []ValidationIssue{{
			Type:  "json_invalid",
			Loc:   []any{"body", 0},
			Msg:   fmt.Sprintf("JSON decode error: %v", err),
			Input: input,
		}})
	}

	var issues []ValidationIssue
	if req.Prompt == nil {
		issues = append(issues, missingField("prompt", input))
	}
	if req.ModelName == nil {
		issues = append(issues, missingField("model_name", input))
	}
	if len(issues) > 0 {
		return writeValidationError(c, issues)
	}

	requestID := uuid.NewString()
	c.Response().Header().Set(echo.HeaderXRequestID, requestID)
	log := s.log.With("request_id", requestID, "model", *req.ModelName)
	ctx := logger.WithContext(c.Request().Context(), log)
	log.Info("analyze request", "prompt_chars", len(*req.Prompt))

	res, err := s.service.Analyze(ctx, *req.Prompt, *req.ModelName)
	if err != nil {
		detail := errorDetail(err)
		log.Error("analyze request failed", "error", err)
		return writeServerError(c, detail)
	}

	return writeJSON(c, http.StatusOK, ResponseFromResult(res))
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func missingField(name string, input any) ValidationIssue {
	return ValidationIssue{
		Type:  "missing",
		Loc:   []any{"body", name},
		Msg:   "Field required",
		Input: input,
	}
}

// errorDetail keeps the wire format of the two failure stages distinct so
// clients can tell a bad checkpoint from a crash mid-pass.
func errorDetail(err error) string {
	var loadErr *analyze.LoadError
	if errors.As(err, &loadErr) {
		return fmt.Sprintf("Error loading model: %v", loadErr.Cause)
	}
	var infErr *analyze.InferenceError
	if errors.As(err, &infErr) {
		return fmt.Sprintf("Error during inference: %v", infErr.Cause)
	}
	return fmt.Sprintf("Error during inference: %v", err)
}
