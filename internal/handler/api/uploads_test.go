package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/usecase/video"
)

const testUploadID = "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"

type fakeUploads struct {
	beginIn  video.BeginUploadInput
	beginOut model.UploadSession
	beginErr error

	chunks   [][]byte
	chunkErr error

	completeOut model.TranscodeRequest
	completeErr error

	abortReason string
	abortErr    error

	session *model.UploadSession
}

func (f *fakeUploads) BeginUpload(ctx context.Context, in video.BeginUploadInput) (model.UploadSession, error) {
	f.beginIn = in
	return f.beginOut, f.beginErr
}

func (f *fakeUploads) WriteChunk(ctx context.Context, uploadID string, data []byte) (model.UploadSession, error) {
	if f.chunkErr != nil {
		return model.UploadSession{}, f.chunkErr
	}
	var received int64
	for _, c := range f.chunks {
		received += int64(len(c))
	}
	if len(data) > 0 {
		f.chunks = append(f.chunks, append([]byte(nil), data...))
		received += int64(len(data))
	}
	return model.UploadSession{UploadID: uploadID, BytesReceived: received, Status: model.UploadStatusUploading}, nil
}

func (f *fakeUploads) CompleteUpload(ctx context.Context, uploadID string) (model.TranscodeRequest, error) {
	return f.completeOut, f.completeErr
}

func (f *fakeUploads) AbortUpload(ctx context.Context, uploadID, reason string) error {
	f.abortReason = reason
	return f.abortErr
}

func (f *fakeUploads) Session(uploadID string) (model.UploadSession, bool) {
	if f.session == nil {
		return model.UploadSession{}, false
	}
	return *f.session, true
}

func withID(req *http.Request, id string) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), api_context.IDKey, id))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestBeginUploadHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svcErr     error
		wantStatus int
		wantCode   model.Code
	}{
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing name", body: `{"totalBytes":10}`, wantStatus: http.StatusBadRequest},
		{name: "bad upload id", body: `{"videoName":"a.mp4","totalBytes":10,"uploadId":"../x"}`, wantStatus: http.StatusBadRequest},
		{
			name:       "too large",
			body:       `{"videoName":"a.mp4","totalBytes":10}`,
			svcErr:     model.Errorf(model.CodeFileTooLarge, "too big"),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   model.CodeFileTooLarge,
		},
		{
			name:       "bad format",
			body:       `{"videoName":"a.exe","totalBytes":10}`,
			svcErr:     model.Errorf(model.CodeInvalidFormat, "format"),
			wantStatus: http.StatusUnsupportedMediaType,
			wantCode:   model.CodeInvalidFormat,
		},
		{
			name:       "duplicate",
			body:       `{"videoName":"a.mp4","totalBytes":10}`,
			svcErr:     model.Errorf(model.CodeDuplicateID, "dup"),
			wantStatus: http.StatusConflict,
			wantCode:   model.CodeDuplicateID,
		},
		{
			name:       "disk full",
			body:       `{"videoName":"a.mp4","totalBytes":10}`,
			svcErr:     model.Errorf(model.CodeDiskFull, "full"),
			wantStatus: http.StatusInsufficientStorage,
			wantCode:   model.CodeDiskFull,
		},
		{
			name:       "shutting down",
			body:       `{"videoName":"a.mp4","totalBytes":10}`,
			svcErr:     model.NewError(model.CodeShuttingDown, nil),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   model.CodeShuttingDown,
		},
		{
			name:       "unexpected error",
			body:       `{"videoName":"a.mp4","totalBytes":10}`,
			svcErr:     errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeUploads{beginErr: tc.svcErr}
			req := httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()

			BeginUploadHandler(svc).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d (body %s)", rec.Code, tc.wantStatus, rec.Body)
			}
			if tc.wantCode != "" {
				if body := decodeError(t, rec); body.Code != tc.wantCode || body.Error == "" {
					t.Errorf("body = %+v; want code %s", body, tc.wantCode)
				}
			}
			if tc.wantStatus == http.StatusServiceUnavailable && rec.Header().Get("Retry-After") == "" {
				t.Error("Retry-After missing on 503")
			}
		})
	}
}

func TestBeginUploadHandler_Success(t *testing.T) {
	svc := &fakeUploads{beginOut: model.UploadSession{UploadID: testUploadID, VideoID: "vid-1"}}
	body := `{"videoName":"clip.mp4","totalBytes":2048,"uploadId":"` + testUploadID + `"}`
	req := httptest.NewRequest(http.MethodPost, "/uploads", strings.NewReader(body))
	rec := httptest.NewRecorder()

	BeginUploadHandler(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d; want 201", rec.Code)
	}
	if got := rec.Header().Get("Location"); got != "/uploads/"+testUploadID {
		t.Errorf("location = %q", got)
	}
	var out BeginUploadResponse
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UploadID != testUploadID || out.VideoID != "vid-1" {
		t.Errorf("response = %+v", out)
	}
	want := video.BeginUploadInput{VideoName: "clip.mp4", TotalBytes: 2048, UploadID: testUploadID}
	if svc.beginIn != want {
		t.Errorf("input = %+v; want %+v", svc.beginIn, want)
	}
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestWriteChunkHandler(t *testing.T) {
	t.Run("splits the body into bounded chunks", func(t *testing.T) {
		svc := &fakeUploads{}
		body := bytes.Repeat([]byte{'v'}, ChunkSize+10)
		req := withID(httptest.NewRequest(http.MethodPut, "/uploads/x/chunks", bytes.NewReader(body)), testUploadID)
		rec := httptest.NewRecorder()

		WriteChunkHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		if len(svc.chunks) != 2 || len(svc.chunks[0]) != ChunkSize || len(svc.chunks[1]) != 10 {
			t.Errorf("chunk sizes wrong: %d chunks", len(svc.chunks))
		}
		var s model.UploadSession
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if s.BytesReceived != int64(len(body)) {
			t.Errorf("bytesReceived = %d; want %d", s.BytesReceived, len(body))
		}
	})

	t.Run("empty body reports state", func(t *testing.T) {
		svc := &fakeUploads{}
		req := withID(httptest.NewRequest(http.MethodPut, "/uploads/x/chunks", http.NoBody), testUploadID)
		rec := httptest.NewRecorder()

		WriteChunkHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || len(svc.chunks) != 0 {
			t.Errorf("status=%d chunks=%d", rec.Code, len(svc.chunks))
		}
	})

	t.Run("overflow maps to 413", func(t *testing.T) {
		svc := &fakeUploads{chunkErr: model.Errorf(model.CodeFileTooLarge, "too much")}
		req := withID(httptest.NewRequest(http.MethodPut, "/uploads/x/chunks", strings.NewReader("abc")), testUploadID)
		rec := httptest.NewRecorder()

		WriteChunkHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("status = %d; want 413", rec.Code)
		}
	})

	t.Run("interrupted transfer aborts the upload", func(t *testing.T) {
		svc := &fakeUploads{}
		body := &failingReader{data: []byte("abc"), err: errors.New("connection reset")}
		req := withID(httptest.NewRequest(http.MethodPut, "/uploads/x/chunks", io.NopCloser(body)), testUploadID)
		rec := httptest.NewRecorder()

		WriteChunkHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want 400", rec.Code)
		}
		if !strings.Contains(svc.abortReason, "connection reset") {
			t.Errorf("abort reason = %q", svc.abortReason)
		}
		if body := decodeError(t, rec); body.Code != model.CodeUploadFailed {
			t.Errorf("code = %q; want UPLOAD_FAILED", body.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteChunkHandler(&fakeUploads{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/uploads//chunks", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d; want 400", rec.Code)
		}
	})
}

func TestCompleteUploadHandler(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := &fakeUploads{completeOut: model.TranscodeRequest{UploadID: testUploadID, VideoID: "vid-1", SourcePath: "/uploads/x.mp4"}}
		req := withID(httptest.NewRequest(http.MethodPost, "/uploads/x/complete", nil), testUploadID)
		rec := httptest.NewRecorder()

		CompleteUploadHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d; want 202", rec.Code)
		}
		var out CompleteUploadResponse
		if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if out.SourcePath != "/uploads/x.mp4" || out.VideoID != "vid-1" {
			t.Errorf("response = %+v", out)
		}
	})

	t.Run("size mismatch", func(t *testing.T) {
		svc := &fakeUploads{completeErr: model.Errorf(model.CodeUploadFailed, "received 3 bytes, expected 10")}
		req := withID(httptest.NewRequest(http.MethodPost, "/uploads/x/complete", nil), testUploadID)
		rec := httptest.NewRecorder()

		CompleteUploadHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d; want 400", rec.Code)
		}
		if body := decodeError(t, rec); body.Error != "received 3 bytes, expected 10" {
			t.Errorf("error = %q", body.Error)
		}
	})
}

func TestAbortUploadHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"aborted", nil, http.StatusNoContent},
		{"unknown upload", model.Errorf(model.CodeNotFound, "upload is not active"), http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeUploads{abortErr: tc.err}
			req := withID(httptest.NewRequest(http.MethodDelete, "/uploads/x", nil), testUploadID)
			rec := httptest.NewRecorder()

			AbortUploadHandler(svc).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d; want %d", rec.Code, tc.wantStatus)
			}
			if svc.abortReason != AbortReason {
				t.Errorf("reason = %q; want %q", svc.abortReason, AbortReason)
			}
		})
	}
}

func TestGetUploadHandler(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		svc := &fakeUploads{session: &model.UploadSession{UploadID: testUploadID, BytesReceived: 5, TotalBytes: 10}}
		req := withID(httptest.NewRequest(http.MethodGet, "/uploads/x", nil), testUploadID)
		rec := httptest.NewRecorder()

		GetUploadHandler(svc).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d; want 200", rec.Code)
		}
		var s model.UploadSession
		if err := json.NewDecoder(rec.Body).Decode(&s); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if s.BytesReceived != 5 {
			t.Errorf("bytesReceived = %d", s.BytesReceived)
		}
	})

	t.Run("gone", func(t *testing.T) {
		req := withID(httptest.NewRequest(http.MethodGet, "/uploads/x", nil), testUploadID)
		rec := httptest.NewRecorder()

		GetUploadHandler(&fakeUploads{}).ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d; want 404", rec.Code)
		}
	})
}
