package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LocalBackend bundles the single-node storage trio: chunk rows in SQLite,
// lexical index in Bleve, vectors in HNSW. The indexes are rebuilt from the
// chunk rows at startup; SQLite is the source of truth.
type LocalBackend struct {
	Chunks  *SQLiteStore
	Lexical *BleveIndex
	Vector  *HNSWIndex

	lock *flock.Flock
}

// OpenLocal opens the local backend rooted at dataDir. The directory is
// guarded with a file lock so two processes cannot serve the same index.
func OpenLocal(ctx context.Context, dataDir string, dims int) (*LocalBackend, error) {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another process", dataDir)
	}

	chunks, err := NewSQLiteStore(filepath.Join(dataDir, "chunks.db"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	lexical, err := NewBleveIndex("")
	if err != nil {
		_ = chunks.Close()
		_ = lock.Unlock()
		return nil, err
	}

	vector, err := NewHNSWIndex(dims)
	if err != nil {
		_ = lexical.Close()
		_ = chunks.Close()
		_ = lock.Unlock()
		return nil, err
	}

	b := &LocalBackend{Chunks: chunks, Lexical: lexical, Vector: vector, lock: lock}
	if err := b.rebuild(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}

	return b, nil
}

// rebuild populates both indexes from the chunk rows.
func (b *LocalBackend) rebuild(ctx context.Context) error {
	start := time.Now()
	total := 0
	embedded := 0

	err := b.Chunks.AllChunks(ctx, func(batch []*Chunk) error {
		if err := b.Lexical.Index(ctx, batch); err != nil {
			return fmt.Errorf("rebuild lexical index: %w", err)
		}
		if err := b.Vector.Add(ctx, batch); err != nil {
			return fmt.Errorf("rebuild vector index: %w", err)
		}
		total += len(batch)
		for _, c := range batch {
			if len(c.Embedding) > 0 {
				embedded++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("local_index_rebuilt",
		slog.Int("chunks", total),
		slog.Int("with_embedding", embedded),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// AddChunks persists chunks and keeps both indexes in sync.
func (b *LocalBackend) AddChunks(ctx context.Context, chunks []*Chunk) error {
	if err := b.Chunks.SaveChunks(ctx, chunks); err != nil {
		return err
	}
	if err := b.Lexical.Index(ctx, chunks); err != nil {
		return err
	}
	return b.Vector.Add(ctx, chunks)
}

// Close releases all resources and the directory lock.
func (b *LocalBackend) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{b.Vector, b.Lexical, b.Chunks} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := b.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
