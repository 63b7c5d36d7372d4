package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
)

type ErrorResponse struct {
	Error string     `json:"error"`
	Code  model.Code `json:"code,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, msg string, err error) {
	ctx := context.Background()
	if err != nil {
		logger.Errorf(ctx, "❌  %s: %v", msg, err)
	} else {
		logger.Error(ctx, "❌  "+msg)
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0, must-revalidate")
	RespondJSON(w, status, ErrorResponse{Error: msg})
}

// StatusOf maps a pipeline error code to its HTTP status.
func StatusOf(code model.Code) int {
	switch code {
	case model.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case model.CodeInvalidFormat:
		return http.StatusUnsupportedMediaType
	case model.CodeDuplicateID:
		return http.StatusConflict
	case model.CodeNoFile, model.CodeUploadFailed:
		return http.StatusBadRequest
	case model.CodeDiskFull:
		return http.StatusInsufficientStorage
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeShuttingDown:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WritePipelineError answers with the status and code carried by err. Server-side
// failures are logged at error, rejections at warn.
func WritePipelineError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := model.CodeOf(err)
	status := StatusOf(code)
	body := ErrorResponse{Error: msg, Code: code}
	switch {
	case status < http.StatusInternalServerError,
		status == http.StatusInsufficientStorage,
		status == http.StatusServiceUnavailable:
		body.Error = model.AsPipelineError(err, code).Message()
		logger.Warnf(ctx, "⚠️  %s: %v", msg, err)
	default:
		logger.Errorf(ctx, "❌  %s: %v", msg, err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	w.Header().Set("Cache-Control", "no-store, max-age=0, must-revalidate")
	RespondJSON(w, status, body)
}

func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf(context.Background(), "❌  Failed to encode JSON response: %v", err)
	}
}

func RespondRawJSON(w http.ResponseWriter, status int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(raw); err != nil {
		logger.Errorf(context.Background(), "❌  Failed to write JSON payload: %v", err)
	}
}
