package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding knowledge sets and their chunks.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "cerebro.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages that scan chunk rows directly.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Knowledge sets ---

// CreateKnowledgeSet registers a named knowledge set. Idempotent: creating a
// set that already exists is not an error.
func (s *Store) CreateKnowledgeSet(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("knowledge set name must not be empty")
	}
	_, err := s.db.Exec(`
		INSERT INTO knowledge_sets (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteKnowledgeSet removes a set and all of its chunks in one transaction,
// so no reader observes a partially deleted set.
func (s *Store) DeleteKnowledgeSet(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM chunks WHERE knowledge_set = ?", name); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", name, err)
	}
	res, err := tx.Exec("DELETE FROM knowledge_sets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting knowledge set %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ListKnowledgeSets returns all sets ordered by creation time, then name.
func (s *Store) ListKnowledgeSets() ([]KnowledgeSet, error) {
	rows, err := s.db.Query("SELECT name, created_at FROM knowledge_sets ORDER BY created_at ASC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("listing knowledge sets: %w", err)
	}
	defer rows.Close()

	var sets []KnowledgeSet
	for rows.Next() {
		var ks KnowledgeSet
		var createdAt string
		if err := rows.Scan(&ks.Name, &createdAt); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			ks.CreatedAt = t
		}
		sets = append(sets, ks)
	}
	return sets, rows.Err()
}

// HasKnowledgeSet reports whether the named set exists.
func (s *Store) HasKnowledgeSet(name string) (bool, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM knowledge_sets WHERE name = ?", name).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// --- Chunks ---

// UpsertChunks writes all chunks in a single transaction. Rows sharing a
// (knowledge_set, source_file, sequence) key are overwritten in place, which
// keeps their rowid (and therefore insertion order) stable across re-ingestion.
func (s *Store) UpsertChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning upsert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, knowledge_set, source_file, sequence, text, metadata, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(knowledge_set, source_file, sequence) DO UPDATE SET
			id = excluded.id,
			text = excluded.text,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		metadata := c.Metadata
		if metadata == "" {
			metadata = "{}"
		}
		blob := EncodeVector(c.Embedding)
		if _, err := stmt.Exec(c.ID, c.KnowledgeSet, c.SourceFile, c.Sequence, c.Text, metadata, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting chunk %s/%s#%d: %w", c.KnowledgeSet, c.SourceFile, c.Sequence, err)
		}
	}

	return tx.Commit()
}

// CountChunks returns the number of chunks stored in the named set.
func (s *Store) CountChunks(knowledgeSet string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE knowledge_set = ?", knowledgeSet).Scan(&count)
	return count, err
}

// ChunksForFile returns the chunks of one source file ordered by sequence.
func (s *Store) ChunksForFile(knowledgeSet, sourceFile string) ([]Chunk, error) {
	rows, err := s.db.Query(`
		SELECT id, knowledge_set, source_file, sequence, text, metadata, embedding, created_at
		FROM chunks WHERE knowledge_set = ? AND source_file = ?
		ORDER BY sequence ASC`, knowledgeSet, sourceFile)
	if err != nil {
		return nil, fmt.Errorf("querying chunks for %s: %w", sourceFile, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		var createdAt string
		if err := rows.Scan(&c.ID, &c.KnowledgeSet, &c.SourceFile, &c.Sequence, &c.Text, &c.Metadata, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		embedding, err := DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}
		c.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		c.CreatedAt = t
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
