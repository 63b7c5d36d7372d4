package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
)

// ChunkSize bounds how much of a request body is buffered before it is handed to the
// upload manager.
const ChunkSize = 1 << 20

func WriteChunkHandler(svc video.ChunkWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := api_context.IDFromContext(r.Context())
		if !ok {
			WriteError(w, http.StatusBadRequest, "ID is required", nil)
			return
		}
		ctx := r.Context()

		var (
			s   model.UploadSession
			buf = make([]byte, ChunkSize)
		)
		for {
			n, readErr := io.ReadFull(r.Body, buf)
			if n > 0 {
				var err error
				if s, err = svc.WriteChunk(ctx, id, buf[:n]); err != nil {
					WritePipelineError(ctx, w, fmt.Sprintf("could not write chunk of upload #%s", id), err)
					return
				}
			}
			if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				break
			}
			if readErr != nil {
				reason := fmt.Sprintf("transfer interrupted: %v", readErr)
				if err := svc.AbortUpload(ctx, id, reason); err != nil {
					logger.Warnf(ctx, "could not abort upload %s: %v", id, err)
				}
				WritePipelineError(ctx, w, fmt.Sprintf("could not read chunk of upload #%s", id),
					model.Errorf(model.CodeUploadFailed, "%s", reason))
				return
			}
		}

		if s.UploadID == "" {
			// empty body: report the current state
			var err error
			if s, err = svc.WriteChunk(ctx, id, nil); err != nil {
				WritePipelineError(ctx, w, fmt.Sprintf("could not write chunk of upload #%s", id), err)
				return
			}
		}
		RespondJSON(w, http.StatusOK, s)
		logger.Debugf(ctx, "upload %s at %d/%d bytes", id, s.BytesReceived, s.TotalBytes)
	}
}
