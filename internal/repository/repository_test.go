package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/index"
	"github.com/LuisDee/catalog-enricher/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_DocumentCaching(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "trades.yaml", "name: trades\ncolumns:\n  - name: a\n")

	repo := New(dir, index.Paths{}, testutil.NewTestLogger(t))

	first, err := repo.Document(path)
	require.NoError(t, err)
	assert.Equal(t, "trades", first.Table.Name)
	assert.True(t, repo.Cached(path))

	second, err := repo.Document(path)
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged file is served from cache")

	require.NoError(t, os.WriteFile(path, []byte("name: trades\ncolumns:\n  - name: a\n  - name: b\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	third, err := repo.Document(path)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, []string{"a", "b"}, third.Table.ColumnNames())
}

func TestRepository_Invalidate(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "t.yaml", "name: t\n")
	repo := New(dir, index.Paths{}, nil)

	_, err := repo.Document(path)
	require.NoError(t, err)
	repo.Invalidate(path)
	assert.False(t, repo.Cached(path))

	_, err = repo.Document(path)
	require.NoError(t, err)
	repo.InvalidateAll()
	assert.False(t, repo.Cached(path))
}

func TestRepository_Write(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "t.yaml", "name: t\n")
	repo := New(dir, index.Paths{}, nil)

	_, err := repo.Document(path)
	require.NoError(t, err)

	require.NoError(t, repo.Write(path, []byte("name: renamed\n")))
	assert.False(t, repo.Cached(path))

	doc, err := repo.Document(path)
	require.NoError(t, err)
	assert.Equal(t, "renamed", doc.Table.Name)
}

func TestRepository_WriteKeepsModeAndLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteFile(t, dir, "t.yaml", "name: t\n")
	repo := New(dir, index.Paths{}, nil)

	require.NoError(t, repo.Write(path, []byte("name: t\nlayer: data\n")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "t.yaml", entries[0].Name())
}

func TestRepository_FailedWriteLeavesTargetIntact(t *testing.T) {
	dir := t.TempDir()
	// A non-empty directory cannot be replaced by a file.
	target := filepath.Join(dir, "t.yaml")
	keep := testutil.WriteFile(t, dir, "t.yaml/keep.txt", "original")
	repo := New(dir, index.Paths{}, nil)

	require.Error(t, repo.Write(target, []byte("name: t\n")))

	data, err := os.ReadFile(keep)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file is removed")
}

func TestRepository_MissingDocument(t *testing.T) {
	repo := New(t.TempDir(), index.Paths{}, nil)
	_, err := repo.Document(filepath.Join(t.TempDir(), "nope.yaml"))

	var mi *catalog.MissingInputError
	require.True(t, errors.As(err, &mi))
	assert.Equal(t, "document", mi.Kind)
}

func TestRepository_Documents(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "b.yaml", "name: b\n")
	testutil.WriteFile(t, dir, "a.yaml", "name: a\n")
	testutil.WriteFile(t, dir, "broken.yaml", "columns: [\n")

	repo := New(dir, index.Paths{}, nil)
	docs, errs, err := repo.Documents()
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].Table.Name)
	assert.Equal(t, "b", docs[1].Table.Name)
	require.Len(t, errs, 1)

	var pe *catalog.DocumentParseError
	assert.True(t, errors.As(errs[0], &pe))
}

func TestRepository_IndexesLoadedOnce(t *testing.T) {
	dir := t.TempDir()
	fields := testutil.WriteFile(t, dir, "fields.yaml", "groups:\n  - name: Trade\n    fields:\n      - {name: price, comment: px}\n")
	repo := New(dir, index.Paths{Fields: fields}, nil)

	first, err := repo.Indexes(context.Background())
	require.NoError(t, err)
	second, err := repo.Indexes(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	repo.InvalidateIndexes()
	third, err := repo.Indexes(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 1, third.Fields.Len())
}

func TestRepository_IsIndexPath(t *testing.T) {
	dir := t.TempDir()
	repo := New(dir, index.Paths{
		Fields:    filepath.Join(dir, "fields.yaml"),
		Reference: filepath.Join(dir, "reference"),
	}, nil)

	assert.True(t, repo.IsIndexPath(filepath.Join(dir, "fields.yaml")))
	assert.True(t, repo.IsIndexPath(filepath.Join(dir, "reference", "t.yaml")))
	assert.False(t, repo.IsIndexPath(filepath.Join(dir, "catalog", "t.yaml")))
}
