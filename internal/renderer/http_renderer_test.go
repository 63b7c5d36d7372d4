package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/fhuszti/videos-ms-go/internal/mock"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/google/uuid"
)

func TestRenderGetVideo_Cases(t *testing.T) {
	ctx := context.Background()
	id := uuid.NewString()
	resp := port.GetVideoOutput{
		VideoMetadata: model.VideoMetadata{ID: id, Name: "clip.mp4", Qualities: model.Qualities{"360p"}, IsTranscoded: true},
		Streams:       []port.StreamOutput{{Quality: "360p", Path: id + "/360p.mp4"}},
	}

	t.Run("cache hit", func(t *testing.T) {
		c := &mock.Cache{VideoOut: []byte(`{"ok":true}`), EtagVideo: "\"1234\""}
		r := NewHTTPRenderer(c)
		getter := &mock.VideoGetter{}

		out, etag, err := r.RenderGetVideo(ctx, getter, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(out) != string(c.VideoOut) {
			t.Errorf("raw mismatch: got %s want %s", out, c.VideoOut)
		}
		if etag != c.EtagVideo {
			t.Errorf("etag mismatch: got %s want %s", etag, c.EtagVideo)
		}
		if getter.Called {
			t.Error("getter should not be called on cache hit")
		}
		if c.SetVideoCalled || c.SetEtagVideoCalled {
			t.Error("cache should not be set on hit")
		}
	})

	t.Run("cache miss", func(t *testing.T) {
		c := &mock.Cache{}
		getter := &mock.VideoGetter{Out: resp}
		r := NewHTTPRenderer(c)

		out, etag, err := r.RenderGetVideo(ctx, getter, id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expected, _ := json.Marshal(resp)
		if string(out) != string(expected) {
			t.Errorf("raw mismatch: got %s want %s", out, expected)
		}
		expEtag := fmt.Sprintf("\"%08x\"", crc32.ChecksumIEEE(expected))
		if etag != expEtag {
			t.Errorf("etag mismatch: got %s want %s", etag, expEtag)
		}
		if !getter.Called {
			t.Error("getter should be called on cache miss")
		}
		if !c.SetVideoCalled || !c.SetEtagVideoCalled {
			t.Error("cache should be written on miss")
		}
		if c.TTL != DetailsTTL {
			t.Errorf("ttl = %v; want %v", c.TTL, DetailsTTL)
		}
		if c.EtagVideo != expEtag {
			t.Errorf("cached etag mismatch: got %s want %s", c.EtagVideo, expEtag)
		}
	})

	t.Run("getter error", func(t *testing.T) {
		c := &mock.Cache{}
		g := &mock.VideoGetter{Err: model.Errorf(model.CodeNotFound, "video %s not found", id)}
		r := NewHTTPRenderer(c)

		_, _, err := r.RenderGetVideo(ctx, g, id)
		if !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("error = %v; want NOT_FOUND", err)
		}
		if c.SetVideoCalled || c.SetEtagVideoCalled {
			t.Error("cache should not be written on error")
		}
	})

	t.Run("cache error", func(t *testing.T) {
		c := &mock.Cache{GetVideoErr: errors.New("boom")}
		g := &mock.VideoGetter{Out: resp}
		r := NewHTTPRenderer(c)

		if _, _, err := r.RenderGetVideo(ctx, g, id); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !g.Called {
			t.Error("getter should be called when cache returns error")
		}
		if !c.SetVideoCalled || !c.SetEtagVideoCalled {
			t.Error("cache should be written when missing due to error")
		}
	})
}
