package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/model"
	"github.com/fhuszti/videos-ms-go/internal/port"
)

type VideoRepository struct {
	db *sql.DB
}

// compile-time check: *VideoRepository must satisfy port.VideoRepository
var _ port.VideoRepository = (*VideoRepository)(nil)

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

func (r *VideoRepository) Save(ctx context.Context, v *model.VideoMetadata) error {
	logger.Debugf(ctx, "saving database record for video #%s, qualities %v, transcoded %t...", v.ID, v.Qualities, v.IsTranscoded)

	const query = `
      INSERT INTO videos
        (id, name, size_bytes, mime_type, uploaded_at, qualities, is_transcoded, failure_message,
         duration, width, height, codec, fps, bitrate, audio_codec, channels, format)
      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
      ON DUPLICATE KEY UPDATE
        name            = VALUES(name),
        size_bytes      = VALUES(size_bytes),
        mime_type       = VALUES(mime_type),
        qualities       = VALUES(qualities),
        is_transcoded   = VALUES(is_transcoded),
        failure_message = VALUES(failure_message),
        duration        = VALUES(duration),
        width           = VALUES(width),
        height          = VALUES(height),
        codec           = VALUES(codec),
        fps             = VALUES(fps),
        bitrate         = VALUES(bitrate),
        audio_codec     = VALUES(audio_codec),
        channels        = VALUES(channels),
        format          = VALUES(format)
    `
	_, err := r.db.ExecContext(ctx, query,
		v.ID, v.Name, v.Size, v.MimeType, v.UploadedAt,
		v.Qualities, v.IsTranscoded, v.FailureMessage,
		v.Duration, v.Width, v.Height, v.Codec, v.FPS, v.Bitrate,
		v.AudioCodec, v.Channels, v.Format,
	)
	if err != nil {
		return fmt.Errorf("save video %s: %w", v.ID, err)
	}
	return nil
}

func (r *VideoRepository) GetByID(ctx context.Context, id string) (*model.VideoMetadata, error) {
	logger.Debugf(ctx, "fetching video #%s from the database...", id)

	const query = `
      SELECT id, name, size_bytes, mime_type, uploaded_at, qualities, is_transcoded, failure_message,
             duration, width, height, codec, fps, bitrate, audio_codec, channels, format, updated_at
      FROM videos
      WHERE id = ?
    `
	row := r.db.QueryRowContext(ctx, query, id)
	var v model.VideoMetadata
	if err := row.Scan(
		&v.ID, &v.Name, &v.Size, &v.MimeType, &v.UploadedAt,
		&v.Qualities, &v.IsTranscoded, &v.FailureMessage,
		&v.Duration, &v.Width, &v.Height, &v.Codec, &v.FPS, &v.Bitrate,
		&v.AudioCodec, &v.Channels, &v.Format, &v.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.Errorf(model.CodeNotFound, "video %s: %w", id, err)
		}
		return nil, fmt.Errorf("get video %s: %w", id, err)
	}
	if v.Qualities == nil {
		v.Qualities = model.Qualities{}
	}
	return &v, nil
}

func (r *VideoRepository) ResetVariants(ctx context.Context, id string) error {
	logger.Infof(ctx, "resetting variants of video #%s after eviction...", id)

	const query = `
      UPDATE videos
      SET qualities = ?, is_transcoded = FALSE
      WHERE id = ?
    `
	res, err := r.db.ExecContext(ctx, query, model.Qualities{}, id)
	if err != nil {
		return fmt.Errorf("reset variants of video %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return model.Errorf(model.CodeNotFound, "video %s", id)
	}
	return nil
}
