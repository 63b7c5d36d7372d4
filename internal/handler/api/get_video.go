package api

import (
	"errors"
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/fhuszti/videos-ms-go/internal/renderer"
)

func GetVideoHandler(rdr renderer.HTTPRenderer, svc port.VideoGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}

		raw, etag, err := rdr.RenderGetVideo(r.Context(), svc, id)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "Video not found", nil)
				return
			}
			WriteError(w, http.StatusInternalServerError, "Could not get video details", err)
			return
		}

		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "max-age=0")
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			logger.Infof(r.Context(), "✅  Returning cached video #%s", id)
			return
		}

		RespondRawJSON(w, http.StatusOK, raw)
		logger.Infof(r.Context(), "✅  Successfully returned details for video #%s", id)
	}
}
