package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Uploader copies local files into a GCS bucket under an optional prefix.
// It holds one storage client for the whole run.
type Uploader struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewUploader creates an Uploader with a shared storage client. It assumes
// Application Default Credentials unless opts say otherwise.
func NewUploader(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Uploader, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewUploader: bucket is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewUploader: create storage client: %w", err)
	}
	return &Uploader{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close closes the storage client.
func (u *Uploader) Close() error {
	if u.client != nil {
		return u.client.Close()
	}
	return nil
}

// UploadFile uploads the file at filePath and returns its gs:// URI.
func (u *Uploader) UploadFile(ctx context.Context, filePath string) (string, error) {
	objectName := ObjectName(u.prefix, filePath)

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file %q: %w", filePath, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := u.client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("copy file to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	return URI(u.bucket, objectName), nil
}

// ObjectName places the base name of filePath under prefix.
// e.g. ("raw/nt", "/out/NT_ACCRUALS_TIR34_2026-10-15.csv") → "raw/nt/NT_ACCRUALS_TIR34_2026-10-15.csv"
func ObjectName(prefix, filePath string) string {
	name := filepath.Base(filePath)
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// URI formats a gs:// URI.
func URI(bucket, objectName string) string {
	return fmt.Sprintf("gs://%s/%s", bucket, objectName)
}
