package api

import (
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/model"
)

func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusNotFound, ErrorResponse{
			Error: "no route for " + r.Method + " " + r.URL.Path,
			Code:  model.CodeNotFound,
		})
	}
}
