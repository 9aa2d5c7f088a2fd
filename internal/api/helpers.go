package api

import (
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
)

func writeValidationError(c *echo.Context, issues []ValidationIssue) error {
	return writeJSON(c, http.StatusUnprocessableEntity, map[string]any{"detail": issues})
}

func writeServerError(c *echo.Context, detail string) error {
	return writeJSON(c, http.StatusInternalServerError, map[string]any{"detail": detail})
}

// writeJSON encodes straight to the response writer. Responses carry
// per-layer activation tensors, so the body is streamed rather than buffered
// through an intermediate allocation.
func writeJSON(c *echo.Context, status int, v any) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	res.WriteHeader(status)
	return json.NewEncoder(res).Encode(v)
}

func decodeBody(r io.Reader) (AnalyzeRequest, any, error) {
	var req AnalyzeRequest
	body, err := io.ReadAll(r)
	if err != nil {
		return req, nil, err
	}
	// The raw body doubles as the "input" field of validation issues.
	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return req, nil, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, input, err
	}
	return req, input, nil
}
