package api

import (
	"encoding/json"
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
	"github.com/fhuszti/videos-ms-go/internal/validation"
)

type BeginUploadRequest struct {
	VideoName  string `json:"videoName" validate:"required,max=255,filename"`
	TotalBytes int64  `json:"totalBytes" validate:"gte=0"`
	VideoID    string `json:"videoId,omitempty" validate:"omitempty,uuid"`
	UploadID   string `json:"uploadId,omitempty" validate:"omitempty,uuid"`
}

type BeginUploadResponse struct {
	UploadID string `json:"uploadId"`
	VideoID  string `json:"videoId"`
}

func BeginUploadHandler(svc video.UploadBeginner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BeginUploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request payload", err)
			return
		}

		if errs := validation.ValidateStruct(req); errs != nil {
			errsJSON, err := validation.ErrorsToJson(errs)
			if err != nil {
				WriteError(w, http.StatusInternalServerError, "failed to encode validation errors", err)
				return
			}
			RespondRawJSON(w, http.StatusBadRequest, []byte(errsJSON))
			logger.Warnf(r.Context(), "❌  Validation failed: %s", errsJSON)
			return
		}

		ctx := r.Context()
		if req.UploadID != "" {
			ctx = api_context.WithUploadID(ctx, req.UploadID)
		}
		s, err := svc.BeginUpload(ctx, video.BeginUploadInput{
			VideoName:  req.VideoName,
			TotalBytes: req.TotalBytes,
			VideoID:    req.VideoID,
			UploadID:   req.UploadID,
		})
		if err != nil {
			WritePipelineError(ctx, w, "could not start upload", err)
			return
		}

		w.Header().Set("Location", "/uploads/"+s.UploadID)
		RespondJSON(w, http.StatusCreated, BeginUploadResponse{UploadID: s.UploadID, VideoID: s.VideoID})
		logger.Infof(api_context.WithUploadID(ctx, s.UploadID), "✅  Upload %s admitted for video %s", s.UploadID, s.VideoID)
	}
}
