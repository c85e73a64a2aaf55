package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/config"
)

func driversUnderTest(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
}

func TestStoreContract(t *testing.T) {
	for name, store := range driversUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "blueprints/org-1/bp-1/background"

			info, err := store.Put(ctx, key, strings.NewReader("png-bytes"), PutOptions{
				ContentType: "image/png",
				Metadata:    map[string]string{"blueprint": "bp-1"},
			})
			require.NoError(t, err)
			assert.Equal(t, key, info.Key)
			assert.EqualValues(t, len("png-bytes"), info.Size)

			_, err = store.Put(ctx, key, strings.NewReader("again"), PutOptions{})
			assert.ErrorIs(t, err, ErrExists)

			head, err := store.Head(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "image/png", head.ContentType)
			assert.Equal(t, "bp-1", head.Metadata["blueprint"])

			got, rc, err := store.Get(ctx, key)
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "png-bytes", string(body))
			assert.EqualValues(t, 9, got.Size)

			_, err = store.Put(ctx, "blueprints/org-2/bp-9/background", strings.NewReader("x"), PutOptions{})
			require.NoError(t, err)
			listed, err := store.List(ctx, "blueprints/org-1/")
			require.NoError(t, err)
			require.Len(t, listed, 1)
			assert.Equal(t, key, listed[0].Key)

			removed, err := store.Delete(ctx, key)
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = store.Delete(ctx, key)
			require.NoError(t, err)
			assert.False(t, removed)

			_, err = store.Head(ctx, key)
			assert.True(t, IsNotFound(err), "head after delete: %v", err)
			_, _, err = store.Get(ctx, key)
			assert.True(t, IsNotFound(err), "get after delete: %v", err)
		})
	}
}

func TestPresignURL(t *testing.T) {
	ctx := context.Background()
	stores := driversUnderTest(t)

	_, err := stores["memory"].PresignURL(ctx, "k", SignedURLOptions{})
	assert.ErrorIs(t, err, ErrUnsupported)

	url, err := stores["fs"].PresignURL(ctx, "a/b.png", SignedURLOptions{Method: "get"})
	require.NoError(t, err)
	assert.Equal(t, "http://local.blob/a/b.png", url)
	_, err = stores["fs"].PresignURL(ctx, "a/b.png", SignedURLOptions{Method: "PUT"})
	assert.ErrorIs(t, err, ErrUnsupported)

	url, err = stores["s3"].PresignURL(ctx, "a/b.png", SignedURLOptions{})
	require.NoError(t, err)
	assert.Contains(t, url, "mock-bucket/a/b.png")
	assert.Contains(t, url, "X-Amz-Signature")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, config.BlobConfig{FSRoot: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, store.Driver())

	store, err = Open(ctx, config.BlobConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, store.Driver())

	store, err = Open(ctx, config.BlobConfig{Driver: "s3", S3: config.S3Config{
		Bucket: "images", Endpoint: "http://127.0.0.1:9000", PathStyle: true,
		AccessKeyID: "minio", SecretAccessKey: "minio123",
	}})
	require.NoError(t, err)
	assert.Equal(t, DriverS3, store.Driver())

	_, err = Open(ctx, config.BlobConfig{Driver: "s3"})
	assert.ErrorContains(t, err, "bucket required")

	_, err = Open(ctx, config.BlobConfig{Driver: "gcs"})
	assert.ErrorContains(t, err, "unknown blob driver")
}

func TestIsNotFoundWrapped(t *testing.T) {
	assert.True(t, IsNotFound(errors.Join(errors.New("ctx"), ErrNotFound)))
	assert.False(t, IsNotFound(ErrExists))
}
