package api

import (
	"context"
	"io"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/infiniV/Digital-Ocean-X-BNU-sub001/internal/storage"
)

// ObjectStore is the slice of the Spaces client the handlers need;
// tests substitute a fake.
type ObjectStore interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

var _ ObjectStore = (*storage.Client)(nil)
