package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const uploadTimeout = 2 * time.Minute

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}

	return parts[0], parts[1], nil
}

// UploadFileWithClient uploads a local file and returns its gs:// reference.
func UploadFileWithClient(ctx context.Context, client *storage.Client, bucketName, objectName, filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	if ct := contentType(filePath); ct != "" {
		w.ContentType = ct
	}

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("UploadFile: copy file to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("UploadFile: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", bucketName, objectName), nil
}

// FetchRawBytesWithClient downloads the bytes behind a gs:// reference.
// Malformed references fail before any network call.
func FetchRawBytesWithClient(ctx context.Context, client *storage.Client, sourceRef string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(sourceRef)
	if err != nil {
		return nil, fmt.Errorf("FetchRawBytes: %w", err)
	}

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchRawBytes: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchRawBytes: reading bytes: %w", err)
	}

	return data, nil
}

// ExtractFilename extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func ExtractFilename(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")

	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}

	return path.Base(parts[1])
}

// ObjectName builds the object key for a user's upload.
func ObjectName(userID, filePath string, now time.Time) string {
	return fmt.Sprintf("statements/%s/%s_%s", userID, now.UTC().Format("20060102T150405"), path.Base(filePath))
}

func contentType(filePath string) string {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	}
	return ""
}
