package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZipDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ab12cd34")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_2.pdf"), []byte("two"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page_1.pdf"), []byte("one"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nested", "x.txt"), []byte("x"), 0o644))

	dst := filepath.Join(root, "ab12cd34.zip")
	n, err := ZipDir(context.Background(), dir, dst, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	contents := map[string]string{}
	for _, f := range zr.File {
		names = append(names, f.Name)
		assert.Equal(t, zip.Deflate, f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		contents[f.Name] = string(b)
	}
	assert.Equal(t, []string{"nested/x.txt", "page_1.pdf", "page_2.pdf"}, names)
	assert.Equal(t, "one", contents["page_1.pdf"])

	leftovers, _ := filepath.Glob(filepath.Join(root, ".*.tmp"))
	assert.Empty(t, leftovers)
}

func TestZipDirMissingSource(t *testing.T) {
	root := t.TempDir()
	dst := filepath.Join(root, "x.zip")
	_, err := ZipDir(context.Background(), filepath.Join(root, "missing"), dst, Options{})
	assert.Error(t, err)
	assert.NoFileExists(t, dst)
}

func TestZipDirHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "d")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("a"), 0o644))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dst := filepath.Join(root, "d.zip")
	_, err := ZipDir(ctx, dir, dst, Options{Level: flateBest})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, dst)
}

const flateBest = 9
