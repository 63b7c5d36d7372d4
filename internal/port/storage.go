package port

import (
	"context"
	"io"
)

// FileInfo represents metadata about a stored file.
type FileInfo struct {
	SizeBytes   int64
	ContentType string
}

// Storage is the object store finished variants are mirrored to.
type Storage interface {
	StatFile(ctx context.Context, fileKey string) (FileInfo, error)
	SaveFile(ctx context.Context, fileKey string, reader io.Reader, fileSize int64, opts map[string]string) error
	RemoveFile(ctx context.Context, fileKey string) error
	// RemovePrefix removes every object whose key starts with prefix and returns how many were removed.
	RemovePrefix(ctx context.Context, prefix string) (int, error)
}
