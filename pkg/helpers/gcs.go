package helpers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// NewGCSClient creates a Google Cloud Storage client.
// creds may be a path to a service-account file or the JSON itself; empty uses ADC.
func NewGCSClient(ctx context.Context, creds string) (*storage.Client, error) {
	creds = strings.TrimSpace(creds)
	switch {
	case creds == "":
		return storage.NewClient(ctx)
	case strings.HasPrefix(creds, "{"):
		return storage.NewClient(ctx, option.WithCredentialsJSON([]byte(creds)))
	default:
		if _, err := os.Stat(creds); err != nil {
			return nil, fmt.Errorf("gcs credentials: %w", err)
		}
		return storage.NewClient(ctx, option.WithCredentialsFile(creds))
	}
}

// UploadObject streams r into bucket/objectPath and returns the object's public URL.
func UploadObject(ctx context.Context, client *storage.Client, bucket, objectPath, contentType string, r io.Reader) (string, error) {
	wc := client.Bucket(bucket).Object(objectPath).NewWriter(ctx)
	wc.ContentType = contentType
	wc.ChunkSize = 0 // single request for small files
	if _, err := io.Copy(wc, r); err != nil {
		_ = wc.Close()
		return "", err
	}
	if err := wc.Close(); err != nil {
		return "", err
	}
	return PublicURL(bucket, objectPath), nil
}

// DeleteObject removes bucket/objectPath; a missing object is not an error.
func DeleteObject(ctx context.Context, client *storage.Client, bucket, objectPath string) error {
	err := client.Bucket(bucket).Object(objectPath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

// PublicURL builds a public URL for an object (assuming public read access).
func PublicURL(bucket, objectPath string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, objectPath)
}
