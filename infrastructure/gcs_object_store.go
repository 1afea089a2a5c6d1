// infrastructure/gcs_object_store.go
package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/vitovidale/clip-processor-service/domain"
)

const gcsScheme = "gs://"

// GCSObjectStore keeps cached sources and staged audio in a bucket whose
// lifecycle policy deletes objects after a fixed age. Expiry times are read
// from that policy, never assumed.
type GCSObjectStore struct {
	Client *storage.Client
	Bucket string

	mu        sync.Mutex
	retention time.Duration
}

func NewGCSObjectStore(client *storage.Client, bucket string) *GCSObjectStore {
	return &GCSObjectStore{Client: client, Bucket: bucket}
}

func (s *GCSObjectStore) URI(key string) string {
	return gcsScheme + s.Bucket + "/" + key
}

func (s *GCSObjectStore) keyOf(uri string) (string, error) {
	bucket, key, err := parseGCSURI(uri)
	if err != nil {
		return "", err
	}
	if bucket != s.Bucket {
		return "", domain.NewValidationError("objectstore.uri", "object %s is outside bucket %s", uri, s.Bucket)
	}
	return key, nil
}

func parseGCSURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, gcsScheme)
	if !ok {
		return "", "", domain.NewValidationError("objectstore.uri", "not a gs:// uri: %q", uri)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", domain.NewValidationError("objectstore.uri", "malformed uri: %q", uri)
	}
	return bucket, key, nil
}

// Retention returns the age after which the bucket deletes objects. The
// bucket must carry an age-based Delete rule.
func (s *GCSObjectStore) Retention(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retention > 0 {
		return s.retention, nil
	}
	attrs, err := s.Client.Bucket(s.Bucket).Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("read bucket attrs: %w", err)
	}
	d, err := retentionFromLifecycle(attrs.Lifecycle)
	if err != nil {
		return 0, err
	}
	s.retention = d
	return d, nil
}

// retentionFromLifecycle picks the shortest age of the unconditional
// Delete rules.
func retentionFromLifecycle(lc storage.Lifecycle) (time.Duration, error) {
	var days int64
	for _, rule := range lc.Rules {
		if rule.Action.Type != storage.DeleteAction || rule.Condition.AgeInDays <= 0 {
			continue
		}
		if days == 0 || rule.Condition.AgeInDays < days {
			days = rule.Condition.AgeInDays
		}
	}
	if days == 0 {
		return 0, domain.NewIntegrityError("objectstore.retention", "bucket has no age-based delete rule")
	}
	return time.Duration(days) * 24 * time.Hour, nil
}

func (s *GCSObjectStore) Exists(ctx context.Context, uri string) (bool, error) {
	key, err := s.keyOf(uri)
	if err != nil {
		return false, err
	}
	_, err = s.Client.Bucket(s.Bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", uri, err)
	}
	return true, nil
}

// Stat reports the object stored under key with its expiry derived from the
// bucket's retention rule.
func (s *GCSObjectStore) Stat(ctx context.Context, key string) (*domain.StoredObject, error) {
	attrs, err := s.Client.Bucket(s.Bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	retention, err := s.Retention(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.StoredObject{URI: s.URI(key), ExpiresAt: attrs.Created.Add(retention)}, nil
}

func (s *GCSObjectStore) UploadFromStream(ctx context.Context, key string, r io.Reader) (domain.StoredObject, error) {
	retention, err := s.Retention(ctx)
	if err != nil {
		return domain.StoredObject{}, err
	}

	// cancelling the context aborts the upload and leaves no object behind
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := s.Client.Bucket(s.Bucket).Object(key).NewWriter(wctx)
	if _, err := io.Copy(w, r); err != nil {
		cancel()
		w.Close()
		return domain.StoredObject{}, fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return domain.StoredObject{}, fmt.Errorf("finalize %s: %w", key, err)
	}
	created := w.Attrs().Created
	if created.IsZero() {
		created = time.Now()
	}
	return domain.StoredObject{URI: s.URI(key), ExpiresAt: created.Add(retention)}, nil
}

func (s *GCSObjectStore) DownloadAsStream(ctx context.Context, uri string) (io.ReadCloser, error) {
	key, err := s.keyOf(uri)
	if err != nil {
		return nil, err
	}
	rd, err := s.Client.Bucket(s.Bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, domain.NewNotFoundError("objectstore.download", "object %s does not exist", uri)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	return rd, nil
}

// Delete is idempotent: a missing object is not an error.
func (s *GCSObjectStore) Delete(ctx context.Context, uri string) error {
	key, err := s.keyOf(uri)
	if err != nil {
		return err
	}
	err = s.Client.Bucket(s.Bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", uri, err)
	}
	return nil
}
