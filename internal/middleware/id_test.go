package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
	"github.com/go-chi/chi/v5"
)

func TestWithIDMiddleware(t *testing.T) {
	mw := WithID()

	tests := []struct {
		name           string
		path           string
		paramValue     string // what chi.URLParam(r, "id") returns
		wantStatus     int
		expectNextCall bool
		wantID         string
		wantUploadID   string
	}{
		{name: "missing param", path: "/videos/", wantStatus: http.StatusBadRequest},
		{name: "bad param", path: "/videos/x", paramValue: "not-uuid", wantStatus: http.StatusBadRequest},
		{name: "path traversal", path: "/uploads/x", paramValue: "../../etc", wantStatus: http.StatusBadRequest},
		{
			name:           "video route",
			path:           "/videos/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			paramValue:     "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			wantStatus:     http.StatusNoContent,
			expectNextCall: true,
			wantID:         "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		},
		{
			name:           "upload route is canonicalised and tagged",
			path:           "/uploads/AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE/chunks",
			paramValue:     "AAAAAAAA-BBBB-CCCC-DDDD-EEEEEEEEEEEE",
			wantStatus:     http.StatusNoContent,
			expectNextCall: true,
			wantID:         "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			wantUploadID:   "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				if id, ok := api_context.IDFromContext(r.Context()); ok {
					w.Header().Set("X-ID", id)
				}
				if id, ok := api_context.UploadIDFromContext(r.Context()); ok {
					w.Header().Set("X-Upload-ID", id)
				}
				w.WriteHeader(http.StatusNoContent)
			})

			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			rctx := chi.NewRouteContext()
			if tc.paramValue != "" {
				rctx.URLParams.Add("id", tc.paramValue)
			}
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			rec := httptest.NewRecorder()
			mw(next).ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d; want %d", rec.Code, tc.wantStatus)
			}
			if nextCalled != tc.expectNextCall {
				t.Errorf("nextCalled = %v; want %v", nextCalled, tc.expectNextCall)
			}
			if got := rec.Header().Get("X-ID"); got != tc.wantID {
				t.Errorf("ID in context = %q; want %q", got, tc.wantID)
			}
			if got := rec.Header().Get("X-Upload-ID"); got != tc.wantUploadID {
				t.Errorf("upload ID in context = %q; want %q", got, tc.wantUploadID)
			}
		})
	}
}
