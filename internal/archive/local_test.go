package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorePutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	uri, err := s.PutObject(context.Background(), "listings/42.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "listings", "42.html"), uri)

	data, err := os.ReadFile(filepath.Join(dir, "listings", "42.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	t.Parallel()

	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "../escape.html", "", []byte("x"))
	require.Error(t, err)
}

func TestLocalStoreCreatesBaseDir(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "archive")
	_, err := NewLocalStore(dir)
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStoreRequiresPath(t *testing.T) {
	t.Parallel()

	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.PutObject(context.Background(), "  ", "", []byte("x"))
	require.Error(t, err)
}
