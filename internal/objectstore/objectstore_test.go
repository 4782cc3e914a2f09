package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"virtual-tourist-backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDisabled(t *testing.T) {
	store, err := New(context.Background(), config.ObjectStoreConfig{})
	require.NoError(t, err)
	assert.Nil(t, store)
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(context.Background(), config.ObjectStoreConfig{Driver: "gcs", Bucket: "b"})
	assert.Error(t, err)
}

const noSuchKey = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`

// fakeBucket answers path-style S3 requests for one bucket
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]string
	requests []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, r.Method+" "+r.URL.Path)

	switch r.Method {
	case http.MethodGet:
		body, ok := b.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, noSuchKey)
			return
		}
		io.WriteString(w, body)
	case http.MethodPut:
		io.Copy(io.Discard, r.Body)
		b.objects[r.URL.Path] = "stored"
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newFakeS3(t *testing.T) (*S3Store, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	store, err := New(context.Background(), config.ObjectStoreConfig{
		Driver:    "s3",
		Bucket:    "photos",
		Prefix:    "cache/",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIDTEST",
		SecretKey: "secret",
	})
	require.NoError(t, err)
	s3Store, ok := store.(*S3Store)
	require.True(t, ok)
	return s3Store, bucket
}

func TestS3Get(t *testing.T) {
	store, bucket := newFakeS3(t)
	bucket.objects["/photos/cache/1_a.jpg"] = "image-bytes"

	data, ok, err := store.Get(context.Background(), "1_a.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("image-bytes"), data)

	data, ok, err = store.Get(context.Background(), "missing.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, data)
}

func TestS3PutAndDelete(t *testing.T) {
	store, bucket := newFakeS3(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "2_b.jpg", []byte("jpeg"), "image/jpeg"))
	require.NoError(t, store.Delete(ctx, "2_b.jpg"))
	require.NoError(t, store.Delete(ctx, "2_b.jpg"))

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	assert.Empty(t, bucket.objects)

	var methods []string
	for _, r := range bucket.requests {
		assert.True(t, strings.HasSuffix(r, "/photos/cache/2_b.jpg"), r)
		methods = append(methods, strings.Fields(r)[0])
	}
	assert.Equal(t, []string{"PUT", "DELETE", "DELETE"}, methods)
}
