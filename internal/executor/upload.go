package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"github.com/Kamar-Folarin/repo-ingest/internal/batch"
	"github.com/Kamar-Folarin/repo-ingest/internal/config"
	"github.com/Kamar-Folarin/repo-ingest/internal/models"
	"github.com/Kamar-Folarin/repo-ingest/internal/pipeline"
)

// ObjectStore is the subset of the minio client the upload stage uses.
type ObjectStore interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewMinioClient connects to the configured S3-compatible endpoint.
func NewMinioClient(cfg *config.ObjectStoreConfig) (*minio.Client, error) {
	endpoint := cfg.Endpoint
	if i := strings.Index(endpoint, "://"); i >= 0 {
		endpoint = endpoint[i+3:]
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return client, nil
}

// UploadExecutor copies the checked-out source into object storage.
type UploadExecutor struct {
	store  ObjectStore
	bucket string
	batch  batch.Config
	logger *logrus.Logger

	mu          sync.Mutex
	bucketReady bool
}

// NewUploadExecutor creates an upload stage executor
func NewUploadExecutor(store ObjectStore, cfg *config.ObjectStoreConfig, logger *logrus.Logger) *UploadExecutor {
	return &UploadExecutor{
		store:  store,
		bucket: cfg.Bucket,
		batch: batch.Config{
			Size:       1,
			Workers:    cfg.Workers,
			MaxRetries: cfg.MaxRetries,
			RetryDelay: 200 * time.Millisecond,
		},
		logger: logger,
	}
}

func (e *UploadExecutor) Execute(ctx context.Context, target pipeline.Target, report pipeline.ProgressFunc) error {
	if err := e.ensureBucket(ctx); err != nil {
		return err
	}

	files, err := sourceFiles(target.SourceDir)
	if err != nil {
		return err
	}

	logger := e.logger.WithFields(logrus.Fields{
		"repository_id": target.RepositoryID,
		"run_id":        target.RunID,
		"bucket":        e.bucket,
		"files":         len(files),
	})
	logger.Info("Uploading source to object storage")

	processor := batch.NewProcessor[string](e.batch, func(p models.BatchProgress) {
		report(pipeline.Report{
			Percent: p.Percent(),
			Detail: models.Details{
				"bucket":   e.bucket,
				"files":    p.TotalItems,
				"uploaded": p.ProcessedItems,
				"failed":   p.FailedItems,
			},
		})
	})

	progress, err := processor.ProcessItems(ctx, files, func(ctx context.Context, paths []string) error {
		for _, path := range paths {
			rel, err := filepath.Rel(target.SourceDir, path)
			if err != nil {
				return err
			}
			object := target.ObjectPrefix + filepath.ToSlash(rel)
			if _, err := e.store.FPutObject(ctx, e.bucket, object, path, minio.PutObjectOptions{}); err != nil {
				return fmt.Errorf("upload %s: %w", object, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.WithError(err).WithField("failed", progress.FailedItems).Error("Upload failed")
		return fmt.Errorf("%d of %d files failed to upload: %w", progress.FailedItems, progress.TotalItems, err)
	}

	logger.Info("Upload finished")
	return nil
}

func (e *UploadExecutor) ensureBucket(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bucketReady {
		return nil
	}

	exists, err := e.store.BucketExists(ctx, e.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", e.bucket, err)
	}
	if !exists {
		if err := e.store.MakeBucket(ctx, e.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", e.bucket, err)
		}
	}
	e.bucketReady = true
	return nil
}
