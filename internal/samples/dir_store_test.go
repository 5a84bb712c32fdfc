package samples_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/vision-service/internal/core"
	"github.com/book-expert/vision-service/internal/samples"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func populate(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()

	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("data-"+name), 0o600))
	}

	return dir
}

func TestDirStore_ListFiltersAndSorts(t *testing.T) {
	t.Parallel()

	dir := populate(t, "b.png", "a.JPG", "notes.txt", "c.jpeg", "d.gif")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.png"), 0o700))

	names, err := samples.NewDirStore(dir).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.JPG", "b.png", "c.jpeg"}, names)
}

func TestDirStore_ListMissingDirectory(t *testing.T) {
	t.Parallel()

	names, err := samples.NewDirStore(filepath.Join(t.TempDir(), "absent")).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestDirStore_Fetch(t *testing.T) {
	t.Parallel()

	store := samples.NewDirStore(populate(t, "cat.png"))

	data, err := store.Fetch(context.Background(), "cat.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("data-cat.png"), data)

	_, err = store.Fetch(context.Background(), "dog.png")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestDirStore_FetchRejectsTraversal(t *testing.T) {
	t.Parallel()

	store := samples.NewDirStore(populate(t, "cat.png"))

	for _, name := range []string{"../cat.png", "sub/cat.png", `sub\cat.png`, "..", ""} {
		_, err := store.Fetch(context.Background(), name)
		require.ErrorIs(t, err, core.ErrNotFound, name)
		require.ErrorIs(t, err, samples.ErrInvalidName, name)
	}
}

func TestIsImageName(t *testing.T) {
	t.Parallel()

	assert.True(t, samples.IsImageName("x.PNG"))
	assert.True(t, samples.IsImageName("x.jpeg"))
	assert.False(t, samples.IsImageName("x.webp"))
	assert.False(t, samples.IsImageName("png"))
}
