package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/port"
)

// DetailsTTL bounds how long rendered video details stay cached. Writes to the
// catalog drop the entry earlier.
const DetailsTTL = 10 * time.Minute

// HTTPRenderer mediates between HTTP handlers and the video getter use case.
// It provides caching capabilities and returns both the JSON representation of
// the result as well as an ETag value derived from it.
type HTTPRenderer interface {
	// RenderGetVideo returns the cached JSON result and its ETag if available or
	// executes the underlying use case and caches the output otherwise.
	RenderGetVideo(ctx context.Context, getter port.VideoGetter, id string) ([]byte, string, error)
}

type httpRenderer struct {
	cache port.Cache
}

// compile-time check: *httpRenderer must satisfy HTTPRenderer
var _ HTTPRenderer = (*httpRenderer)(nil)

func NewHTTPRenderer(cache port.Cache) HTTPRenderer {
	return &httpRenderer{cache: cache}
}

func (r *httpRenderer) RenderGetVideo(ctx context.Context, getter port.VideoGetter, id string) ([]byte, string, error) {
	raw, err := r.cache.GetVideoDetails(ctx, id)
	etag, errEtag := r.cache.GetEtagVideoDetails(ctx, id)
	if err == nil && errEtag == nil && raw != nil && etag != "" {
		return raw, etag, nil
	}

	out, err := getter.GetVideo(ctx, id)
	if err != nil {
		return nil, "", err
	}

	raw, err = json.Marshal(out)
	if err != nil {
		return nil, "", fmt.Errorf("json marshal: %w", err)
	}

	etag = fmt.Sprintf("\"%08x\"", crc32.ChecksumIEEE(raw))
	r.cache.SetVideoDetails(ctx, id, raw, DetailsTTL)
	r.cache.SetEtagVideoDetails(ctx, id, etag, DetailsTTL)

	return raw, etag, nil
}
