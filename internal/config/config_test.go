package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	// Switch to a temp directory to avoid loading a real .env
	origDir, err := os.Getwd()
	if err != nil {
		t.Fatalf("could not get working directory: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("could not chdir to temp dir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(origDir); err != nil {
			t.Fatalf("could not chdir back to original dir: %v", err)
		}
	})
}

func requiredEnv() map[string]string {
	return map[string]string{
		"MARIADB_DSN": "user:pass@tcp(localhost:3306)/db",
		"SERVER_PORT": "8080",
		"UPLOADS_DIR": "/data/uploads",
		"STREAMS_DIR": "/data/streams",
	}
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)
	for k, v := range requiredEnv() {
		t.Setenv(k, v)
	}
	t.Setenv("QUALITY_PRESETS", "")
	t.Setenv("DISPATCH_MODE", "")
	os.Unsetenv("QUALITY_PRESETS")
	os.Unsetenv("DISPATCH_MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("ServerPort: expected %d, got %d", 8080, cfg.ServerPort)
	}
	if cfg.UploadsDir != "/data/uploads" || cfg.StreamsDir != "/data/streams" {
		t.Errorf("dirs: got %q / %q", cfg.UploadsDir, cfg.StreamsDir)
	}
	if cfg.MaxUploadBytes != 2<<30 {
		t.Errorf("MaxUploadBytes: expected %d, got %d", int64(2<<30), cfg.MaxUploadBytes)
	}
	if want := []string{"360p", "480p", "720p", "1080p"}; !reflect.DeepEqual(cfg.QualityPresets, want) {
		t.Errorf("QualityPresets: expected %v, got %v", want, cfg.QualityPresets)
	}
	if want := []string{"mp4", "mov", "mkv", "webm", "avi", "m4v"}; !reflect.DeepEqual(cfg.AllowedFormats, want) {
		t.Errorf("AllowedFormats: expected %v, got %v", want, cfg.AllowedFormats)
	}
	if cfg.ProbeTimeout != 30*time.Second {
		t.Errorf("ProbeTimeout: expected 30s, got %v", cfg.ProbeTimeout)
	}
	if cfg.ProgressInterval != 500*time.Millisecond {
		t.Errorf("ProgressInterval: expected 500ms, got %v", cfg.ProgressInterval)
	}
	if cfg.MaxConcurrentProcesses != 2 {
		t.Errorf("MaxConcurrentProcesses: expected 2, got %d", cfg.MaxConcurrentProcesses)
	}
	if cfg.DispatchMode != DispatchLocal {
		t.Errorf("DispatchMode: expected %q, got %q", DispatchLocal, cfg.DispatchMode)
	}
	if cfg.ConnMaxLifetime != 300*time.Second {
		t.Errorf("ConnMaxLifetime: expected 300s, got %v", cfg.ConnMaxLifetime)
	}
	if !cfg.PosterEnabled {
		t.Error("PosterEnabled: expected true by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	chdirTemp(t)
	for k, v := range requiredEnv() {
		t.Setenv(k, v)
	}
	t.Setenv("QUALITY_PRESETS", " 720p, 360p ")
	t.Setenv("ALLOWED_FORMATS", ".MP4,webm")
	t.Setenv("STALL_TIMEOUT", "5s")
	t.Setenv("STORAGE_BUDGET_BYTES", "1048576")
	t.Setenv("DISPATCH_MODE", "asynq")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if want := []string{"720p", "360p"}; !reflect.DeepEqual(cfg.QualityPresets, want) {
		t.Errorf("QualityPresets: expected %v, got %v", want, cfg.QualityPresets)
	}
	if want := []string{"mp4", "webm"}; !reflect.DeepEqual(cfg.AllowedFormats, want) {
		t.Errorf("AllowedFormats: expected %v, got %v", want, cfg.AllowedFormats)
	}
	if cfg.StallTimeout != 5*time.Second {
		t.Errorf("StallTimeout: expected 5s, got %v", cfg.StallTimeout)
	}
	if cfg.StorageBudgetBytes != 1048576 {
		t.Errorf("StorageBudgetBytes: expected 1048576, got %d", cfg.StorageBudgetBytes)
	}
	if cfg.DispatchMode != DispatchAsynq {
		t.Errorf("DispatchMode: expected %q, got %q", DispatchAsynq, cfg.DispatchMode)
	}
}

func TestLoad_MissingRequiredVars(t *testing.T) {
	cases := []struct {
		missingKey string
		wantErr    string
	}{
		{"MARIADB_DSN", "MARIADB_DSN is required"},
		{"SERVER_PORT", "SERVER_PORT is required"},
		{"UPLOADS_DIR", "UPLOADS_DIR is required"},
		{"STREAMS_DIR", "STREAMS_DIR is required"},
	}

	for _, tc := range cases {
		t.Run(tc.missingKey, func(t *testing.T) {
			chdirTemp(t)

			for k, v := range requiredEnv() {
				// t.Setenv first so the original value is restored after the test
				t.Setenv(k, v)
				if k == tc.missingKey {
					if err := os.Unsetenv(k); err != nil {
						t.Fatalf("could not unset key %s in env: %v", k, err)
					}
				}
			}

			cfg, err := Load()
			if err == nil {
				t.Fatalf("expected error for missing %s, got nil", tc.missingKey)
			}
			if err.Error() != tc.wantErr {
				t.Errorf("error = %q; want %q", err.Error(), tc.wantErr)
			}
			if cfg != nil {
				t.Errorf("expected cfg nil on error, got %#v", cfg)
			}
		})
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"unknown preset", map[string]string{"QUALITY_PRESETS": "360p,999p"}, "QUALITY_PRESETS"},
		{"asynq without redis", map[string]string{"DISPATCH_MODE": "asynq", "REDIS_ADDR": ""}, "REDIS_ADDR is required"},
		{"unknown dispatch mode", map[string]string{"DISPATCH_MODE": "kafka"}, "DISPATCH_MODE must be"},
		{"zero process cap", map[string]string{"MAX_CONCURRENT_PROCESSES": "0"}, "MAX_CONCURRENT_PROCESSES"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chdirTemp(t)
			for k, v := range requiredEnv() {
				t.Setenv(k, v)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err == nil {
				t.Fatalf("expected error, got nil (cfg=%#v)", cfg)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q; want it to contain %q", err.Error(), tc.wantErr)
			}
		})
	}
}
