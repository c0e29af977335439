// Package archive stores raw engine output in object storage so a
// calculation can be re-normalized or audited without re-running the
// engine. Archiving is best-effort and feature-flagged.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/couchcryptid/geo-index-service/internal/config"
	"github.com/couchcryptid/geo-index-service/internal/domain"
	"github.com/couchcryptid/geo-index-service/internal/observability"
)

// ObjectKey locates one archived engine output.
type ObjectKey struct {
	OwnerID       string
	CalculationID string
	Date          string // YYYY-MM-DD, from the record's creation time
}

func (k ObjectKey) Key() string {
	return fmt.Sprintf("%s/%s/%s.json", k.Date, k.OwnerID, k.CalculationID)
}

// NewObjectKey derives the archive key for a persisted calculation.
func NewObjectKey(ownerID, calculationID string, createdAt time.Time) ObjectKey {
	return ObjectKey{
		OwnerID:       ownerID,
		CalculationID: calculationID,
		Date:          createdAt.UTC().Format("2006-01-02"),
	}
}

// MinIOArchive implements the raw-output archive on MinIO (or any
// S3-compatible endpoint).
type MinIOArchive struct {
	client  *minio.Client
	bucket  string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewMinIOArchive connects to the archive endpoint and ensures the bucket
// exists.
func NewMinIOArchive(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*MinIOArchive, error) {
	client, err := minio.New(cfg.ArchiveEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.ArchiveAccessKey, cfg.ArchiveSecretKey, ""),
		Secure: cfg.ArchiveUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.ArchiveBucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.ArchiveBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &MinIOArchive{client: client, bucket: cfg.ArchiveBucket, logger: logger, metrics: metrics}, nil
}

// Archive stores the raw output of a persisted calculation under a key
// derived from the record.
func (a *MinIOArchive) Archive(ctx context.Context, record domain.CalculationRecord, raw []byte) error {
	return a.Store(ctx, NewObjectKey(record.OwnerID, record.ID, record.CreatedAt), raw)
}

// Store uploads one raw engine output under the given key.
func (a *MinIOArchive) Store(ctx context.Context, key ObjectKey, raw []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, key.Key(), bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		a.metrics.ArchiveWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("archive engine output: %w", err)
	}
	a.metrics.ArchiveWrites.WithLabelValues("success").Inc()
	return nil
}
