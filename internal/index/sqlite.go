package index

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"
)

// queryMaxCandidates caps the number of embeddings loaded into memory during
// a similarity query. Candidates are selected newest first, so the most
// recently-created memories are always considered. Typical personal-memory
// datasets stay well under this; larger deployments should use the
// PostgreSQL backend for indexed ANN search.
const queryMaxCandidates = 10_000

// SQLiteIndex implements Index on an embedded SQLite database. Vectors are
// stored as little-endian float32 blobs and ranked by cosine similarity in
// Go, in the absence of a native vector type.
type SQLiteIndex struct {
	db  *sql.DB
	cfg Config
}

// NewSQLiteIndex opens (or creates) the SQLite database at path.
func NewSQLiteIndex(path string, cfg Config) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", ErrProvision, err)
	}
	return &SQLiteIndex{db: db, cfg: cfg}, nil
}

// Ensure creates the collection table if absent. CREATE TABLE IF NOT EXISTS
// makes concurrent creation races harmless.
func (s *SQLiteIndex) Ensure(ctx context.Context) error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			content      TEXT NOT NULL,
			memory_type  TEXT NOT NULL,
			entities     TEXT NOT NULL DEFAULT '',
			priority     TEXT NOT NULL,
			created_at   TEXT NOT NULL,
			created_date TEXT NOT NULL,
			embedding    BLOB NOT NULL,
			dimension    INTEGER NOT NULL
		)`, tableName(s.cfg.Name))

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("%w: %v", ErrProvision, err)
	}
	return nil
}

// Upsert inserts or replaces the entry for id.
func (s *SQLiteIndex) Upsert(ctx context.Context, id string, vector []float32, md Metadata) error {
	if len(vector) != s.cfg.Dimension {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", ErrWrite, len(vector), s.cfg.Dimension)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, memory_type, entities, priority, created_at, created_date, embedding, dimension)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content      = excluded.content,
			memory_type  = excluded.memory_type,
			entities     = excluded.entities,
			priority     = excluded.priority,
			created_at   = excluded.created_at,
			created_date = excluded.created_date,
			embedding    = excluded.embedding,
			dimension    = excluded.dimension
	`, tableName(s.cfg.Name))

	_, err := s.db.ExecContext(ctx, query,
		id, md.Content, md.MemoryType, md.Entities, md.Priority,
		md.CreatedAt.UTC().Format(time.RFC3339Nano), md.CreatedDate,
		serializeVector(vector), len(vector))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Query loads filtered candidates (newest first, capped) and ranks them by
// cosine similarity computed in Go.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if len(vector) != s.cfg.Dimension {
		return nil, fmt.Errorf("%w: vector has %d dimensions, index expects %d", ErrQuery, len(vector), s.cfg.Dimension)
	}

	args := []interface{}{}
	where := ""
	if filter.MemoryType != "" {
		where += " AND memory_type = ?"
		args = append(args, filter.MemoryType)
	}
	if filter.CreatedDate != "" {
		where += " AND created_date = ?"
		args = append(args, filter.CreatedDate)
	}
	args = append(args, queryMaxCandidates)

	query := fmt.Sprintf(`
		SELECT id, content, memory_type, entities, priority, created_at, created_date, embedding, dimension
		FROM %s
		WHERE 1=1%s
		ORDER BY created_at DESC
		LIMIT ?
	`, tableName(s.cfg.Name), where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var (
			m         Match
			createdAt string
			blob      []byte
			dim       int
		)
		if err := rows.Scan(&m.ID, &m.Metadata.Content, &m.Metadata.MemoryType,
			&m.Metadata.Entities, &m.Metadata.Priority, &createdAt,
			&m.Metadata.CreatedDate, &blob, &dim); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrQuery, err)
		}

		stored, err := deserializeVector(blob, dim)
		if err != nil {
			// A corrupt row should not sink the whole query.
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			m.Metadata.CreatedAt = t
		}
		m.Score = cosineSimilarity(vector, stored)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Stats returns the total number of stored vectors.
func (s *SQLiteIndex) Stats(ctx context.Context) (Stats, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", tableName(s.cfg.Name))
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return Stats{Count: count}, nil
}

// Close releases the database handle.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Compile-time assertion.
var _ Index = (*SQLiteIndex)(nil)
