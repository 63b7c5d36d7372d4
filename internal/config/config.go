package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fhuszti/videos-ms-go/internal/ladder"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DispatchLocal = "local"
	DispatchAsynq = "asynq"
)

type Settings struct {
	MariaDBDSN      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ServerPort      int

	UploadsDir     string
	StreamsDir     string
	MaxUploadBytes int64
	AllowedFormats []string
	QualityPresets []string

	FFmpegPath             string
	FFprobePath            string
	ProbeTimeout           time.Duration
	StallTimeout           time.Duration
	TransientRetries       int
	MaxConcurrentProcesses int
	LadderParallelism      int
	PosterEnabled          bool

	ShutdownTimeout        time.Duration
	StorageBudgetBytes     int64
	OrphanGracePeriod      time.Duration
	EvictCompletedVariants bool
	CleanupInterval        time.Duration
	ProgressInterval       time.Duration

	DispatchMode  string
	RedisAddr     string
	RedisPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	JWTPublicKey string
}

func setDefaults() {
	viper.SetDefault("MARIADB_MAX_OPEN_CONN", 10)
	viper.SetDefault("MARIADB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("MARIADB_CONN_MAX_LIFETIME", 300)
	viper.SetDefault("MAX_UPLOAD_BYTES", int64(2<<30))
	viper.SetDefault("ALLOWED_FORMATS", "mp4,mov,mkv,webm,avi,m4v")
	viper.SetDefault("QUALITY_PRESETS", "360p,480p,720p,1080p")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("PROBE_TIMEOUT", "30s")
	viper.SetDefault("STALL_TIMEOUT", "60s")
	viper.SetDefault("TRANSIENT_RETRIES", 1)
	viper.SetDefault("MAX_CONCURRENT_PROCESSES", 2)
	viper.SetDefault("LADDER_PARALLELISM", 1)
	viper.SetDefault("POSTER_ENABLED", true)
	viper.SetDefault("SHUTDOWN_TIMEOUT", "30s")
	viper.SetDefault("STORAGE_BUDGET_BYTES", 0)
	viper.SetDefault("ORPHAN_GRACE_PERIOD", "1h")
	viper.SetDefault("EVICT_COMPLETED_VARIANTS", false)
	viper.SetDefault("CLEANUP_INTERVAL", "15m")
	viper.SetDefault("PROGRESS_INTERVAL", "500ms")
	viper.SetDefault("DISPATCH_MODE", DispatchLocal)
	viper.SetDefault("MINIO_BUCKET", "streams")
}

func Load() (*Settings, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found; proceeding with OS environment variables")
	}

	viper.AutomaticEnv()

	viper.SetConfigFile(".env")
	viper.SetConfigType("env")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: could not read .env file: %v", err)
	}

	setDefaults()

	if !viper.IsSet("MARIADB_DSN") {
		return nil, fmt.Errorf("MARIADB_DSN is required")
	}
	if !viper.IsSet("SERVER_PORT") {
		return nil, fmt.Errorf("SERVER_PORT is required")
	}
	if !viper.IsSet("UPLOADS_DIR") {
		return nil, fmt.Errorf("UPLOADS_DIR is required")
	}
	if !viper.IsSet("STREAMS_DIR") {
		return nil, fmt.Errorf("STREAMS_DIR is required")
	}

	presets := splitList(viper.GetString("QUALITY_PRESETS"))
	if _, err := ladder.ParsePresets(presets); err != nil {
		return nil, fmt.Errorf("QUALITY_PRESETS: %w", err)
	}

	mode := strings.ToLower(viper.GetString("DISPATCH_MODE"))
	switch mode {
	case DispatchLocal:
	case DispatchAsynq:
		if viper.GetString("REDIS_ADDR") == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required when DISPATCH_MODE is %q", DispatchAsynq)
		}
	default:
		return nil, fmt.Errorf("DISPATCH_MODE must be %q or %q, got %q", DispatchLocal, DispatchAsynq, mode)
	}

	maxProcs := viper.GetInt("MAX_CONCURRENT_PROCESSES")
	if maxProcs < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_PROCESSES must be at least 1")
	}
	parallelism := viper.GetInt("LADDER_PARALLELISM")
	if parallelism < 1 {
		parallelism = 1
	}

	var formats []string
	for _, f := range splitList(viper.GetString("ALLOWED_FORMATS")) {
		formats = append(formats, strings.TrimPrefix(strings.ToLower(f), "."))
	}

	return &Settings{
		MariaDBDSN:      viper.GetString("MARIADB_DSN"),
		MaxOpenConns:    viper.GetInt("MARIADB_MAX_OPEN_CONN"),
		MaxIdleConns:    viper.GetInt("MARIADB_MAX_IDLE_CONNS"),
		ConnMaxLifetime: time.Duration(viper.GetInt("MARIADB_CONN_MAX_LIFETIME")) * time.Second,
		ServerPort:      viper.GetInt("SERVER_PORT"),

		UploadsDir:     viper.GetString("UPLOADS_DIR"),
		StreamsDir:     viper.GetString("STREAMS_DIR"),
		MaxUploadBytes: viper.GetInt64("MAX_UPLOAD_BYTES"),
		AllowedFormats: formats,
		QualityPresets: presets,

		FFmpegPath:             viper.GetString("FFMPEG_PATH"),
		FFprobePath:            viper.GetString("FFPROBE_PATH"),
		ProbeTimeout:           viper.GetDuration("PROBE_TIMEOUT"),
		StallTimeout:           viper.GetDuration("STALL_TIMEOUT"),
		TransientRetries:       viper.GetInt("TRANSIENT_RETRIES"),
		MaxConcurrentProcesses: maxProcs,
		LadderParallelism:      parallelism,
		PosterEnabled:          viper.GetBool("POSTER_ENABLED"),

		ShutdownTimeout:        viper.GetDuration("SHUTDOWN_TIMEOUT"),
		StorageBudgetBytes:     viper.GetInt64("STORAGE_BUDGET_BYTES"),
		OrphanGracePeriod:      viper.GetDuration("ORPHAN_GRACE_PERIOD"),
		EvictCompletedVariants: viper.GetBool("EVICT_COMPLETED_VARIANTS"),
		CleanupInterval:        viper.GetDuration("CLEANUP_INTERVAL"),
		ProgressInterval:       viper.GetDuration("PROGRESS_INTERVAL"),

		DispatchMode:  mode,
		RedisAddr:     viper.GetString("REDIS_ADDR"),
		RedisPassword: viper.GetString("REDIS_PASSWORD"),

		MinioEndpoint:  viper.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: viper.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: viper.GetString("MINIO_SECRET_KEY"),
		MinioUseSSL:    viper.GetBool("MINIO_USE_SSL"),
		MinioBucket:    viper.GetString("MINIO_BUCKET"),

		JWTPublicKey: viper.GetString("JWT_PUBLIC_KEY"),
	}, nil
}

// splitList parses a comma separated env value, ignoring blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
