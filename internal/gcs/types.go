package gcs

import (
	"context"
)

// StorageService provides an interface for statement object storage.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadFile uploads a local file to a storage bucket under the given object name
	// and returns the resulting gs:// reference.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) (string, error)

	// FetchRawBytes downloads the object bytes behind a gs:// reference.
	FetchRawBytes(ctx context.Context, sourceRef string) ([]byte, error)

	// ExtractFilename extracts the object's base filename from a gs:// reference.
	ExtractFilename(uri string) string
}
