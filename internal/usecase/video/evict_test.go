package video

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/fhuszti/videos-ms-go/internal/mock"
)

func TestEvictionHook(t *testing.T) {
	repo := &mock.VideoRepo{}
	cache := &mock.Cache{}
	mirror := &mock.Storage{RemovedOut: 4}

	if err := NewEvictionHook(repo, cache, mirror)(context.Background(), "vid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.ResetCalled || repo.ResetID != "vid-1" {
		t.Errorf("ResetVariants called=%v id=%q", repo.ResetCalled, repo.ResetID)
	}
	if !slices.Equal(mirror.RemovedPrefs, []string{"vid-1/"}) {
		t.Errorf("mirror prefixes removed = %v; want [vid-1/]", mirror.RemovedPrefs)
	}
	if !slices.Equal(cache.DeletedIDs, []string{"vid-1"}) {
		t.Errorf("cache deleted = %v; want [vid-1]", cache.DeletedIDs)
	}
}

func TestEvictionHook_MirrorFailureIsNotFatal(t *testing.T) {
	cache := &mock.Cache{}
	mirror := &mock.Storage{RemoveErr: errors.New("minio down")}

	if err := NewEvictionHook(&mock.VideoRepo{}, cache, mirror)(context.Background(), "vid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cache.DelVideoCalled {
		t.Error("cached details were not invalidated")
	}
}

func TestEvictionHook_ResetFailureStops(t *testing.T) {
	repo := &mock.VideoRepo{ResetErr: errors.New("db down")}
	cache := &mock.Cache{}
	mirror := &mock.Storage{}

	if err := NewEvictionHook(repo, cache, mirror)(context.Background(), "vid-1"); err == nil {
		t.Fatal("expected error")
	}
	if mirror.RemoveCalled || cache.DelVideoCalled {
		t.Error("mirror or cache touched after the catalog update failed")
	}
}

func TestEvictionHook_NoMirror(t *testing.T) {
	if err := NewEvictionHook(&mock.VideoRepo{}, &mock.Cache{}, nil)(context.Background(), "vid-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
