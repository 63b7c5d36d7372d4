package storage

import (
	"context"
	"io"

	"github.com/fhuszti/videos-ms-go/internal/logger"
	"github.com/fhuszti/videos-ms-go/internal/port"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioStorage struct {
	client     minioClient
	bucketName string
}

type Strg struct {
	Client minioClient
}

// compile-time check: *MinioStorage must satisfy port.Storage
var _ port.Storage = (*MinioStorage)(nil)

func NewMinioClient(endpoint, accessKey, secretKey string, useSSL bool) (*Strg, error) {
	logger.Info(context.Background(), "initialising minio client...")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return &Strg{Client: client}, nil
}

// WithBucket returns a Storage bound to bucket, creating the bucket when missing.
func (c *Strg) WithBucket(ctx context.Context, bucket string) (*MinioStorage, error) {
	ok, err := c.Client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	if !ok {
		logger.Infof(ctx, "bucket %q does not exist, creating it...", bucket)
		if err := c.Client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, mapMinioErr(err)
		}
	}
	return &MinioStorage{client: c.Client, bucketName: bucket}, nil
}

func (s *MinioStorage) StatFile(ctx context.Context, fileKey string) (port.FileInfo, error) {
	info, err := s.client.StatObject(ctx, s.bucketName, fileKey, minio.StatObjectOptions{})
	if err != nil {
		return port.FileInfo{}, mapMinioErr(err)
	}
	return port.FileInfo{
		SizeBytes:   info.Size,
		ContentType: info.ContentType,
	}, nil
}

func (s *MinioStorage) SaveFile(ctx context.Context, fileKey string, reader io.Reader, fileSize int64, opts map[string]string) error {
	logger.Infof(ctx, "saving file %q into bucket %q...", fileKey, s.bucketName)

	putOpts := minio.PutObjectOptions{}
	if ct := opts["Content-Type"]; ct != "" {
		putOpts.ContentType = ct
	}
	if cc := opts["Cache-Control"]; cc != "" {
		putOpts.CacheControl = cc
	}

	_, err := s.client.PutObject(ctx, s.bucketName, fileKey, reader, fileSize, putOpts)
	if err != nil {
		return mapMinioErr(err)
	}
	return nil
}

func (s *MinioStorage) RemoveFile(ctx context.Context, fileKey string) error {
	logger.Infof(ctx, "removing file %q from bucket %q...", fileKey, s.bucketName)

	err := s.client.RemoveObject(ctx, s.bucketName, fileKey, minio.RemoveObjectOptions{})
	return mapMinioErr(err)
}

func (s *MinioStorage) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	logger.Infof(ctx, "removing files under %q from bucket %q...", prefix, s.bucketName)

	removed := 0
	for obj := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return removed, mapMinioErr(obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucketName, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, mapMinioErr(err)
		}
		removed++
	}
	return removed, nil
}
