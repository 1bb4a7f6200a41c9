package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/n3xfin/finance-tracker/internal/gcs"
)

// Re-export interface from shared package for backward compatibility
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage through one shared client.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a storage client using Application Default Credentials.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close releases the underlying storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// UploadFile uploads filePath to bucketName/objectName.
func (s *GCSStorageService) UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error) {
	return UploadFileWithClient(ctx, s.client, bucketName, objectName, filePath)
}

// FetchRawBytes downloads the object behind sourceRef.
func (s *GCSStorageService) FetchRawBytes(ctx context.Context, sourceRef string) ([]byte, error) {
	return FetchRawBytesWithClient(ctx, s.client, sourceRef)
}

// ExtractFilename returns the base filename of a gs:// reference.
func (s *GCSStorageService) ExtractFilename(uri string) string {
	return ExtractFilename(uri)
}
