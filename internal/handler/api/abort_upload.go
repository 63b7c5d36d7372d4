package api

import (
	"fmt"
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
)

const AbortReason = "aborted by client"

func AbortUploadHandler(svc video.UploadAborter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		if err := svc.AbortUpload(r.Context(), id, AbortReason); err != nil {
			WritePipelineError(r.Context(), w, fmt.Sprintf("could not abort upload #%s", id), err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
		logger.Infof(r.Context(), "✅  Upload %s aborted", id)
	}
}
