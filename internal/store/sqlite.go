package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements ChunkStore on a local SQLite database. The schema
// mirrors the chunks table the chunking collaborator writes to Postgres, so
// a local deployment can be seeded with a plain row copy.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	chunk_id      TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	client_id     TEXT NOT NULL DEFAULT '',
	chunk_index   INTEGER NOT NULL,
	text          TEXT NOT NULL,
	heading       TEXT NOT NULL DEFAULT '',
	heading_level INTEGER NOT NULL DEFAULT 0,
	chunk_type    TEXT NOT NULL DEFAULT 'general',
	token_count   INTEGER NOT NULL DEFAULT 0,
	embedding     BLOB,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_client ON chunks(client_id);
`

// NewSQLiteStore opens (creating if needed) the chunk database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveChunks upserts chunk rows. Used by tests and by deployments that seed
// the local store directly instead of sharing Postgres with the chunker.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (
			chunk_id, document_id, client_id, chunk_index,
			text, heading, heading_level, chunk_type, token_count, embedding, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			text = excluded.text,
			heading = excluded.heading,
			heading_level = excluded.heading_level,
			chunk_type = excluded.chunk_type,
			token_count = excluded.token_count,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			c.ChunkID, c.DocumentID, c.ClientID, c.Ordinal,
			c.Text, c.Heading, c.HeadingLevel, string(c.ChunkType),
			c.TokenCount, encodeEmbedding(c.Embedding), createdAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ChunkID, err)
		}
	}

	return tx.Commit()
}

// GetChunks implements ChunkStore.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chunk_id, document_id, client_id, chunk_index,
		       text, heading, heading_level, chunk_type, token_count, embedding, created_at
		FROM chunks WHERE chunk_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanChunkRows(rows)
}

// allChunksBatchSize bounds one rowid-keyed batch during index rebuild.
const allChunksBatchSize = 500

// AllChunks streams every chunk row, batched by rowid. Used to rebuild the
// lexical and vector indexes at startup.
func (s *SQLiteStore) AllChunks(ctx context.Context, fn func([]*Chunk) error) error {
	lastRowID := int64(0)

	for {
		rows, err := s.db.QueryContext(ctx, `
			SELECT rowid, chunk_id, document_id, client_id, chunk_index,
			       text, heading, heading_level, chunk_type, token_count, embedding, created_at
			FROM chunks WHERE rowid > ? ORDER BY rowid LIMIT ?`, lastRowID, allChunksBatchSize)
		if err != nil {
			return fmt.Errorf("scan chunk batch: %w", err)
		}

		var batch []*Chunk
		for rows.Next() {
			var (
				rowID     int64
				c         Chunk
				chunkType string
				embedding []byte
			)
			if err := rows.Scan(&rowID, &c.ChunkID, &c.DocumentID, &c.ClientID, &c.Ordinal,
				&c.Text, &c.Heading, &c.HeadingLevel, &chunkType, &c.TokenCount,
				&embedding, &c.CreatedAt); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan chunk row: %w", err)
			}
			c.ChunkType = ChunkType(chunkType)
			c.Embedding = decodeEmbedding(embedding)
			lastRowID = rowID
			batch = append(batch, &c)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < allChunksBatchSize {
			return nil
		}
	}
}

// Count implements ChunkStore.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanChunkRows(rows *sql.Rows) ([]*Chunk, error) {
	var chunks []*Chunk
	for rows.Next() {
		var (
			c         Chunk
			chunkType string
			embedding []byte
		)
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ClientID, &c.Ordinal,
			&c.Text, &c.Heading, &c.HeadingLevel, &chunkType, &c.TokenCount,
			&embedding, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chunk row: %w", err)
		}
		c.ChunkType = ChunkType(chunkType)
		c.Embedding = decodeEmbedding(embedding)
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if chunks == nil {
		chunks = []*Chunk{}
	}
	return chunks, nil
}

// encodeEmbedding packs a vector as little-endian float32 bytes.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

var _ ChunkStore = (*SQLiteStore)(nil)
