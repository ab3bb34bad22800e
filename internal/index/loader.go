package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/LuisDee/catalog-enricher/internal/catalog"
	"golang.org/x/sync/errgroup"
)

// Paths locates the structural index inputs. Empty paths are not loaded.
type Paths struct {
	Fields     string
	Transforms string
	Metrics    string
	Reference  string
}

// Indexes bundles the loaded structural indexes. Once built they are never
// mutated and may be shared across table runs without locking.
type Indexes struct {
	Fields     *FieldIndex
	Transforms *TransformIndex
	Metrics    *MetricSpec
	Reference  *ReferenceCatalog

	// Missing lists configured inputs that did not exist. Their indexes are
	// left empty so enrichment can continue with the remaining tiers.
	Missing []*catalog.MissingInputError
}

// Empty returns indexes with nothing loaded.
func Empty() *Indexes {
	return &Indexes{
		Fields:     NewFieldIndex(),
		Transforms: NewTransformIndex(),
		Metrics:    NewMetricSpec(),
		Reference:  NewReferenceCatalog(),
	}
}

// Load reads every configured index concurrently. A missing file is
// recorded in Indexes.Missing; a malformed file fails the load.
func Load(ctx context.Context, paths Paths, logger *slog.Logger) (*Indexes, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	idx := Empty()
	missing := make([]*catalog.MissingInputError, 4)

	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		data, err := readIndex(paths.Fields, "fields index", &missing[0])
		if err != nil || data == nil {
			return err
		}
		fi, err := ParseFieldIndex(data)
		if err != nil {
			return fmt.Errorf("fields index %s: %w", paths.Fields, err)
		}
		idx.Fields = fi
		logger.Debug("loaded fields index", "path", paths.Fields, "fields", fi.Len())
		return nil
	})

	g.Go(func() error {
		data, err := readIndex(paths.Transforms, "transforms index", &missing[1])
		if err != nil || data == nil {
			return err
		}
		ti, err := ParseTransformIndex(data)
		if err != nil {
			return fmt.Errorf("transforms index %s: %w", paths.Transforms, err)
		}
		idx.Transforms = ti
		logger.Debug("loaded transforms index", "path", paths.Transforms, "tables", len(ti.Tables()))
		return nil
	})

	g.Go(func() error {
		data, err := readIndex(paths.Metrics, "metrics index", &missing[2])
		if err != nil || data == nil {
			return err
		}
		ms, err := ParseMetricSpec(data)
		if err != nil {
			return fmt.Errorf("metrics index %s: %w", paths.Metrics, err)
		}
		idx.Metrics = ms
		logger.Debug("loaded metrics index", "path", paths.Metrics,
			"trade_types", len(ms.TradeTypes), "shared", len(ms.Shared), "intervals", len(ms.Intervals))
		return nil
	})

	g.Go(func() error {
		if paths.Reference == "" {
			return nil
		}
		ref, err := LoadReferenceCatalog(paths.Reference)
		if err != nil {
			var mi *catalog.MissingInputError
			if errors.As(err, &mi) && mi.Kind == "catalog directory" {
				missing[3] = &catalog.MissingInputError{Kind: "reference catalog", Path: paths.Reference, Err: mi.Err}
				return nil
			}
			return err
		}
		idx.Reference = ref
		logger.Debug("loaded reference catalog", "path", paths.Reference, "tables", ref.Len())
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, m := range missing {
		if m != nil {
			idx.Missing = append(idx.Missing, m)
			logger.Warn("structural index missing", "kind", m.Kind, "path", m.Path)
		}
	}
	return idx, nil
}

// readIndex returns nil data without error when path is unset or missing;
// the latter is recorded through slot.
func readIndex(path, kind string, slot **catalog.MissingInputError) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			*slot = &catalog.MissingInputError{Kind: kind, Path: path, Err: err}
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
