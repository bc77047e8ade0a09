package objectstore

import (
	"context"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/oksasatya/pixsearch-identity/pkg/helpers"
)

// GCSImageStore keeps profile images in a Cloud Storage bucket and
// refers to them by public URL.
type GCSImageStore struct {
	client *storage.Client
	bucket string
}

func NewGCSImageStore(client *storage.Client, bucket string) *GCSImageStore {
	return &GCSImageStore{client: client, bucket: bucket}
}

func (s *GCSImageStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	return helpers.UploadObject(ctx, s.client, s.bucket, name, contentType, r)
}

// Delete removes the object behind ref. References outside this bucket are left alone.
func (s *GCSImageStore) Delete(ctx context.Context, ref string) error {
	path, ok := objectPath(s.bucket, ref)
	if !ok {
		return nil
	}
	return helpers.DeleteObject(ctx, s.client, s.bucket, path)
}

func objectPath(bucket, ref string) (string, bool) {
	prefix := helpers.PublicURL(bucket, "")
	if !strings.HasPrefix(ref, prefix) {
		return "", false
	}
	path := strings.TrimPrefix(ref, prefix)
	if path == "" || strings.Contains(path, "..") {
		return "", false
	}
	return path, true
}
