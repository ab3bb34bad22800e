// Package repository caches parsed table documents and the structural
// indexes for the lifetime of its owner. Nothing is cached at package level;
// callers construct a Repository and pass it where it is needed.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"github.com/LuisDee/catalog-enricher/internal/index"
)

// Document is a parsed table document with the bytes it was parsed from.
type Document struct {
	Path     string
	Table    *catalog.Table
	Source   []byte
	ModTime  time.Time
	Size     int64
	ParsedAt time.Time
}

// Repository loads and caches documents, keyed by absolute path and
// invalidated when the file's modification time or size changes.
type Repository struct {
	catalogDir string
	paths      index.Paths

	documents   map[string]*Document
	documentsMu sync.RWMutex

	indexes   *index.Indexes
	indexesMu sync.Mutex

	logger *slog.Logger
}

// New creates a repository over catalogDir using the given index paths.
func New(catalogDir string, paths index.Paths, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Repository{
		catalogDir: catalogDir,
		paths:      paths,
		documents:  make(map[string]*Document),
		logger:     logger,
	}
}

// CatalogDir returns the directory documents are discovered in.
func (r *Repository) CatalogDir() string {
	return r.catalogDir
}

// IndexPaths returns the configured structural index locations.
func (r *Repository) IndexPaths() index.Paths {
	return r.paths
}

// Indexes returns the structural indexes, loading them on first use.
func (r *Repository) Indexes(ctx context.Context) (*index.Indexes, error) {
	r.indexesMu.Lock()
	defer r.indexesMu.Unlock()

	if r.indexes != nil {
		return r.indexes, nil
	}
	idx, err := index.Load(ctx, r.paths, r.logger)
	if err != nil {
		return nil, err
	}
	r.indexes = idx
	return idx, nil
}

// Paths returns all document paths under the catalog directory.
func (r *Repository) Paths() ([]string, error) {
	return catalog.DiscoverDocuments(r.catalogDir)
}

// Document returns the cached document for path, re-reading it when the
// file changed on disk since it was cached.
func (r *Repository) Document(path string) (*Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.Invalidate(abs)
			return nil, &catalog.MissingInputError{Kind: "document", Path: path, Err: err}
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	r.documentsMu.RLock()
	doc, ok := r.documents[abs]
	r.documentsMu.RUnlock()
	if ok && fresh(doc, info) {
		return doc, nil
	}

	r.documentsMu.Lock()
	defer r.documentsMu.Unlock()

	// Double-check after acquiring write lock
	if doc, ok := r.documents[abs]; ok && fresh(doc, info) {
		return doc, nil
	}

	table, data, err := catalog.LoadDocument(abs)
	if err != nil {
		delete(r.documents, abs)
		return nil, err
	}
	doc = &Document{
		Path:     abs,
		Table:    table,
		Source:   data,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
		ParsedAt: time.Now(),
	}
	r.documents[abs] = doc
	r.logger.Debug("parsed document", "path", abs, "table", table.Name, "columns", len(table.Columns))
	return doc, nil
}

func fresh(doc *Document, info fs.FileInfo) bool {
	return doc.ModTime.Equal(info.ModTime()) && doc.Size == info.Size()
}

// Documents loads every document under the catalog directory. Documents that
// fail to load are returned as errors alongside the ones that loaded.
func (r *Repository) Documents() ([]*Document, []error, error) {
	paths, err := r.Paths()
	if err != nil {
		return nil, nil, err
	}
	var (
		docs []*Document
		errs []error
	)
	for _, p := range paths {
		doc, err := r.Document(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, errs, nil
}

// Write stores data at path and refreshes the cache entry. The data goes
// to a temporary file in the same directory that is renamed over path, so
// a failed write leaves the original document intact.
func (r *Repository) Write(path string, data []byte) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(abs); err == nil {
		mode = info.Mode().Perm()
	}
	if err := writeAtomic(abs, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	r.Invalidate(abs)
	return nil
}

func writeAtomic(path string, data []byte, mode fs.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return err
	}
	if err = tmp.Chmod(mode); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Cached reports whether path has a cached entry.
func (r *Repository) Cached(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	r.documentsMu.RLock()
	defer r.documentsMu.RUnlock()
	_, ok := r.documents[abs]
	return ok
}

// Invalidate removes a document from the cache.
func (r *Repository) Invalidate(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	r.documentsMu.Lock()
	defer r.documentsMu.Unlock()
	delete(r.documents, abs)
}

// InvalidateIndexes forces the structural indexes to reload on next use.
func (r *Repository) InvalidateIndexes() {
	r.indexesMu.Lock()
	defer r.indexesMu.Unlock()
	r.indexes = nil
}

// InvalidateAll clears every cached document and the indexes.
func (r *Repository) InvalidateAll() {
	r.documentsMu.Lock()
	r.documents = make(map[string]*Document)
	r.documentsMu.Unlock()
	r.InvalidateIndexes()
}

// IsIndexPath reports whether path is one of the structural index inputs.
func (r *Repository) IsIndexPath(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, p := range []string{r.paths.Fields, r.paths.Transforms, r.paths.Metrics} {
		if p == "" {
			continue
		}
		if pa, err := filepath.Abs(p); err == nil && pa == abs {
			return true
		}
	}
	if r.paths.Reference != "" {
		if ra, err := filepath.Abs(r.paths.Reference); err == nil {
			if rel, err := filepath.Rel(ra, abs); err == nil && !strings.HasPrefix(rel, "..") {
				return true
			}
		}
	}
	return false
}
