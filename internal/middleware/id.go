package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/handler/api"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// WithID validates the {id} path parameter of upload and video routes and stores its
// canonical form in the request context. Upload IDs become file names, so only UUIDs pass.
func WithID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if id == "" {
				api.WriteError(w, http.StatusBadRequest, "ID is required", nil)
				return
			}
			parsed, err := uuid.Parse(id)
			if err != nil {
				api.WriteError(w, http.StatusBadRequest, fmt.Sprintf("ID %q is not a valid UUID", id), nil)
				return
			}

			ctx := context.WithValue(r.Context(), api_context.IDKey, parsed.String())
			if strings.HasPrefix(r.URL.Path, "/uploads/") {
				ctx = api_context.WithUploadID(ctx, parsed.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
