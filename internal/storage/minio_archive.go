package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cocaresync/cocaresync/internal/config"
	"github.com/cocaresync/cocaresync/internal/core"
)

// MinioArchiver keeps a copy of every uploaded import file in an S3
// compatible bucket, keyed by batch.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

var _ core.UploadArchiver = (*MinioArchiver)(nil)

// NewMinioArchiver creates the client. It does not contact the server;
// call EnsureBucket for that.
func NewMinioArchiver(cfg config.StorageConfig) (*MinioArchiver, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *MinioArchiver) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", m.bucket, err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}
	return nil
}

// Archive uploads data under imports/<batchID>/<fileName>.
func (m *MinioArchiver) Archive(ctx context.Context, batchID, fileName string, data []byte) error {
	key := ObjectKey(batchID, fileName)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentType(fileName),
		UserMetadata: map[string]string{
			"batch-id": batchID,
		},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// ObjectKey builds the object name for an archived upload. Directory parts
// of fileName are dropped so a client cannot write outside its batch.
func ObjectKey(batchID, fileName string) string {
	name := filepath.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join("imports", batchID, name)
}

// ContentType maps an upload's extension to its MIME type.
func ContentType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".xlsm":
		return "application/vnd.ms-excel.sheet.macroEnabled.12"
	case ".xls":
		return "application/vnd.ms-excel"
	default:
		return "application/octet-stream"
	}
}
