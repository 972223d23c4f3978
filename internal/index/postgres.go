package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"
)

// PostgresIndex implements Index on PostgreSQL with the pgvector extension.
// Cosine distance queries use the `<=>` operator, accelerated by an ivfflat
// index once the table is non-empty.
type PostgresIndex struct {
	db    *sql.DB
	cfg   Config
	table string
}

// NewPostgresIndex opens a connection pool for the given DSN. The collection
// is not provisioned until Ensure is called.
func NewPostgresIndex(dsn string, cfg Config) (*PostgresIndex, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: postgres DSN is required", ErrProvision)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", ErrProvision, err)
	}
	return &PostgresIndex{db: db, cfg: cfg, table: tableName(cfg.Name)}, nil
}

// tableName maps a collection name to a safe SQL identifier.
// "personal-memory" becomes "personal_memory".
func tableName(collection string) string {
	var b strings.Builder
	for _, r := range collection {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "c_" + name
	}
	return name
}

// Ensure creates the pgvector extension, the collection table and its
// cosine index if they are absent. Concurrent processes racing to create
// the same collection all succeed: every statement is IF NOT EXISTS and a
// lost race surfaces as "already exists", which is treated as success.
func (p *PostgresIndex) Ensure(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id           TEXT PRIMARY KEY,
				content      TEXT NOT NULL,
				memory_type  TEXT NOT NULL,
				entities     TEXT NOT NULL DEFAULT '',
				priority     TEXT NOT NULL,
				created_at   TIMESTAMPTZ NOT NULL,
				created_date TEXT NOT NULL,
				embedding    vector(%d) NOT NULL
			)`, p.table, p.cfg.Dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_cosine ON %s USING ivfflat (embedding vector_cosine_ops)`, p.table, p.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_type_date ON %s (memory_type, created_date)`, p.table, p.table),
	}

	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "already exists") {
				continue
			}
			return fmt.Errorf("%w: %v", ErrProvision, err)
		}
	}
	return nil
}

// Upsert inserts or replaces the entry for id.
func (p *PostgresIndex) Upsert(ctx context.Context, id string, vector []float32, md Metadata) error {
	if len(vector) != p.cfg.Dimension {
		return fmt.Errorf("%w: vector has %d dimensions, index expects %d", ErrWrite, len(vector), p.cfg.Dimension)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, memory_type, entities, priority, created_at, created_date, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content      = excluded.content,
			memory_type  = excluded.memory_type,
			entities     = excluded.entities,
			priority     = excluded.priority,
			created_at   = excluded.created_at,
			created_date = excluded.created_date,
			embedding    = excluded.embedding
	`, p.table)

	_, err := p.db.ExecContext(ctx, query,
		id, md.Content, md.MemoryType, md.Entities, md.Priority,
		md.CreatedAt, md.CreatedDate, pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

// Query returns up to topK nearest neighbors by cosine similarity.
// pgvector's `<=>` yields cosine distance; similarity is 1 - distance.
func (p *PostgresIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if len(vector) != p.cfg.Dimension {
		return nil, fmt.Errorf("%w: vector has %d dimensions, index expects %d", ErrQuery, len(vector), p.cfg.Dimension)
	}

	vec := pgvector.NewVector(vector)
	args := []interface{}{vec}
	var where []string

	if filter.MemoryType != "" {
		args = append(args, filter.MemoryType)
		where = append(where, fmt.Sprintf("memory_type = $%d", len(args)))
	}
	if filter.CreatedDate != "" {
		args = append(args, filter.CreatedDate)
		where = append(where, fmt.Sprintf("created_date = $%d", len(args)))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, topK)
	query := fmt.Sprintf(`
		SELECT id, content, memory_type, entities, priority, created_at, created_date,
		       1 - (embedding <=> $1) AS score
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, p.table, whereClause, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Metadata.Content, &m.Metadata.MemoryType,
			&m.Metadata.Entities, &m.Metadata.Priority, &m.Metadata.CreatedAt,
			&m.Metadata.CreatedDate, &m.Score); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrQuery, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQuery, err)
	}

	return matches, nil
}

// Stats returns the total number of stored vectors.
func (p *PostgresIndex) Stats(ctx context.Context) (Stats, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", p.table)
	if err := p.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return Stats{Count: count}, nil
}

// Close releases the connection pool.
func (p *PostgresIndex) Close() error {
	return p.db.Close()
}

// Compile-time assertion.
var _ Index = (*PostgresIndex)(nil)
