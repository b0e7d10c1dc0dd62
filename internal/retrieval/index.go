package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"hearth/internal/embedding"
)

// Hit is one retrieval result. Similarity is 1 minus the vector distance,
// so identical vectors score 1.0 and the value can go negative for very
// distant matches. Keyword-mode hits carry a fixed nominal similarity.
type Hit struct {
	DocID      string
	Content    string
	Similarity float64
}

// VectorIndex stores and searches document chunks.
type VectorIndex interface {
	Upsert(ctx context.Context, docID, text string) error
	Search(ctx context.Context, query string, k int) ([]Hit, error)
	Close() error
}

const keywordSimilarity = 0.5

const indexSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id     TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_doc ON chunks(doc_id);
`

// SQLiteIndex is a vector index over a dedicated SQLite database. With the
// vec0 extension loaded and an embedding engine configured it does true
// nearest-neighbor search; otherwise it falls back to keyword matching over
// the chunk table.
type SQLiteIndex struct {
	db     *sql.DB
	engine embedding.Engine
	logger *zap.Logger
	hasVec bool
}

// OpenIndex opens (creating if needed) the index database under dir.
// engine may be nil for keyword-only mode.
func OpenIndex(dir string, engine embedding.Engine, logger *zap.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create vector dir: %w", err)
	}

	path := filepath.Join(dir, "index.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply index schema: %w", err)
	}

	idx := &SQLiteIndex{db: db, engine: engine, logger: logger}
	if engine != nil {
		idx.hasVec = idx.detectVec(engine.Dimensions())
	}
	logger.Info("vector index opened",
		zap.String("path", path),
		zap.Bool("vec_extension", idx.hasVec),
		zap.Bool("embeddings", engine != nil))
	return idx, nil
}

// detectVec probes for the vec0 virtual-table module by creating the chunk
// vector table. Fails cleanly when the extension is not compiled in.
func (x *SQLiteIndex) detectVec(dims int) bool {
	_, err := x.db.Exec(fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(embedding float[%d])`, dims))
	if err != nil {
		x.logger.Info("vec0 extension unavailable, using keyword search", zap.Error(err))
		return false
	}
	return true
}

// Upsert replaces the stored chunks for docID with fresh chunks of text.
func (x *SQLiteIndex) Upsert(ctx context.Context, docID, text string) error {
	chunks := ChunkText(text)

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer tx.Rollback()

	if x.hasVec {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chunk_vectors WHERE rowid IN (SELECT id FROM chunks WHERE doc_id = ?)`,
			docID); err != nil {
			return fmt.Errorf("failed to clear vectors: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	for _, chunk := range chunks {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chunks (doc_id, content) VALUES (?, ?)`, docID, chunk)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		if !x.hasVec {
			continue
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk id: %w", err)
		}
		vec, err := x.engine.Embed(ctx, chunk)
		if err != nil {
			return fmt.Errorf("failed to embed chunk: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chunk_vectors (rowid, embedding) VALUES (?, ?)`,
			rowID, serializeVector(vec)); err != nil {
			return fmt.Errorf("failed to insert vector: %w", err)
		}
	}

	return tx.Commit()
}

// Search returns up to k hits for the query, best first.
func (x *SQLiteIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if k <= 0 {
		k = 5
	}
	if x.hasVec {
		return x.vectorSearch(ctx, query, k)
	}
	return x.keywordSearch(ctx, query, k)
}

func (x *SQLiteIndex) vectorSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	qvec, err := x.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := x.db.QueryContext(ctx,
		`SELECT c.doc_id, c.content, v.distance
		 FROM chunk_vectors v JOIN chunks c ON c.id = v.rowid
		 WHERE v.embedding MATCH ? AND v.k = ?
		 ORDER BY v.distance`,
		serializeVector(qvec), k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var distance float64
		if err := rows.Scan(&h.DocID, &h.Content, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		h.Similarity = 1 - distance
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// keywordSearch matches chunks containing every word of the query,
// case-insensitively, newest first.
func (x *SQLiteIndex) keywordSearch(ctx context.Context, query string, k int) ([]Hit, error) {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(words))
	args := make([]any, 0, len(words)+1)
	for _, w := range words {
		conds = append(conds, "content LIKE ? COLLATE NOCASE")
		args = append(args, "%"+w+"%")
	}
	args = append(args, k)

	rows, err := x.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT doc_id, content FROM chunks WHERE %s ORDER BY created_at DESC LIMIT ?`,
		strings.Join(conds, " AND ")), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.DocID, &h.Content); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		h.Similarity = keywordSimilarity
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close closes the index database.
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}

// serializeVector encodes a float32 vector in the little-endian layout the
// vec0 extension expects.
func serializeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}
