package api

import (
	"fmt"
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
)

type CompleteUploadResponse struct {
	UploadID   string `json:"uploadId"`
	VideoID    string `json:"videoId"`
	SourcePath string `json:"sourcePath"`
}

func CompleteUploadHandler(svc video.UploadCompleter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		req, err := svc.CompleteUpload(r.Context(), id)
		if err != nil {
			WritePipelineError(r.Context(), w, fmt.Sprintf("could not complete upload #%s", id), err)
			return
		}

		RespondJSON(w, http.StatusAccepted, CompleteUploadResponse{
			UploadID:   req.UploadID,
			VideoID:    req.VideoID,
			SourcePath: req.SourcePath,
		})
		logger.Infof(r.Context(), "✅  Upload %s handed over for transcoding", id)
	}
}
