package api

import (
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
)

func GetUploadHandler(svc video.SessionLookup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		s, ok := svc.Session(id)
		if !ok {
			WriteError(w, http.StatusNotFound, "Upload not found", nil)
			return
		}

		w.Header().Set("Cache-Control", "no-store")
		RespondJSON(w, http.StatusOK, s)
	}
}
