package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fhuszti/videos-ms-go/internal/api_context"
)

func TestNew_ContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{Format: "json", Level: "info"})

	ctx := context.WithValue(context.Background(), api_context.AuthUserIDKey, "user-7")
	ctx = api_context.WithUploadID(ctx, "up-1")
	l.InfoContext(ctx, "chunk written")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	want := map[string]string{"svc": "videos-ms", "uid": "user-7", "upload_id": "up-1", "msg": "chunk written"}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %v; want %q", k, rec[k], v)
		}
	}
}

func TestNew_SystemUIDAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, Options{Format: "text", Level: "warn"})

	l.InfoContext(context.Background(), "hidden")
	l.WarnContext(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "uid=system") || strings.Contains(out, "upload_id") {
		t.Errorf("unexpected attributes in %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != parseLevel("warn") {
		t.Error("warning and warn should map to the same level")
	}
	if parseLevel("nonsense") != parseLevel("info") {
		t.Error("unknown level should default to info")
	}
}
