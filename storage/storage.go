package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Storage interface for report archive operations
type Storage interface {
	// Upload stores an object and returns its storage path
	Upload(ctx context.Context, objectID uuid.UUID, filename string, data io.Reader) (string, error)

	// Download retrieves an object by storage path
	Download(ctx context.Context, storagePath string) (io.ReadCloser, error)
}

// StorageType represents the storage backend type
type StorageType string

const (
	StorageTypeNone  StorageType = "none"
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// ReportFilename is the object name every archived evaluation report uses
const ReportFilename = "evaluation.json"

// StorageConfig holds configuration for storage
type StorageConfig struct {
	Type         StorageType
	Prefix       string // key prefix inside the backend, e.g. "evaluations"
	LocalPath    string // For local storage
	S3Bucket     string // For S3 storage
	S3Region     string // For S3 storage
	S3Endpoint   string // optional, for S3-compatible services
	AWSAccessKey string
	AWSSecretKey string
}

// NewStorage creates a storage instance. StorageTypeNone yields a nil Storage.
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch cfg.Type {
	case StorageTypeNone, "":
		return nil, nil
	case StorageTypeLocal:
		return NewLocalStorage(cfg.LocalPath, cfg.Prefix)
	case StorageTypeS3:
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 storage requires a bucket")
		}
		return NewS3Storage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// ReportPath returns the storage path of the archived report for an evaluation log
func ReportPath(prefix string, logID uuid.UUID) string {
	return generateStoragePath(prefix, logID, ReportFilename)
}

// generateStoragePath generates a sharded storage path for an object
func generateStoragePath(prefix string, objectID uuid.UUID, filename string) string {
	ext := filepath.Ext(filename)
	baseName := strings.TrimSuffix(filename, ext)
	// Sanitize filename
	baseName = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(baseName)

	id := objectID.String()
	path := fmt.Sprintf("%s/%s_%s%s", id[:2], id, baseName, ext)
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	return path
}
