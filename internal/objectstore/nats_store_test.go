// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server with JetStream enabled.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newStore(t *testing.T, bucket string) (*objectstore.NatsObjectStore, nats.JetStreamContext) {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	return store, jetstreamContext
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "images")
	ctx := context.Background()
	uploadData := []byte("\x89PNG fake image bytes")

	require.NoError(t, store.Upload(ctx, "street.png", uploadData))

	downloadData, err := store.Download(ctx, "street.png")
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_BindsToExistingBucket(t *testing.T) {
	t.Parallel()

	store, jetstreamContext := newStore(t, "shared")
	require.NoError(t, store.Upload(context.Background(), "a.png", []byte("a")))

	again, err := objectstore.New(jetstreamContext, "shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", again.Bucket())

	data, err := again.Download(context.Background(), "a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestNatsObjectStore_MissingObjectIsNotFound(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "empty")

	_, err := store.Download(context.Background(), "ghost.png")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = store.Fetch(context.Background(), "../ghost.png")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestNatsObjectStore_ListImages(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t, "samples")
	ctx := context.Background()

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	for _, key := range []string{"b.jpg", "a.PNG", "clip.mp3"} {
		require.NoError(t, store.Upload(ctx, key, []byte(key)))
	}

	names, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.PNG", "b.jpg"}, names)

	data, err := store.Fetch(ctx, "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("b.jpg"), data)
}
