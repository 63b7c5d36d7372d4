package api

import (
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

type ReadinessResponse struct {
	Admitting      bool `json:"admitting"`
	ActiveJobCount int  `json:"activeJobCount"`
	ActiveUploads  int  `json:"activeUploads"`
}

// UploadCounter counts the uploads still receiving bytes.
type UploadCounter interface {
	ActiveUploads() int
}

func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyHandler reports 503 once the registry stopped admitting, so load balancers stop
// routing new uploads to a draining instance.
func ReadyHandler(registry port.JobRegistry, uploads UploadCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := ReadinessResponse{
			Admitting:      registry.Admitting(),
			ActiveJobCount: registry.ActiveJobCount(),
			ActiveUploads:  uploads.ActiveUploads(),
		}
		status := http.StatusOK
		if !res.Admitting {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Cache-Control", "no-store")
		RespondJSON(w, status, res)
	}
}
