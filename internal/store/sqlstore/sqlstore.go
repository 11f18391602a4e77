package sqlstore

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DBType represents the type of database
type DBType string

const (
	SQLite   DBType = "sqlite3"
	Postgres DBType = "postgres"
)

// SQLStore implements the Store interface for SQL databases
type SQLStore struct {
	db     *sql.DB
	dbType DBType
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
}

// New creates a new SQLStore with the given driver and connection string
func New(driver, connStr string) (*SQLStore, error) {
	dbType := DBType(driver)
	if dbType != SQLite && dbType != Postgres {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, err
	}

	// SQLite pragmas are per connection and :memory: databases are per
	// connection too, so keep a single one.
	if dbType == SQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLStore{
		db:     db,
		dbType: dbType,
	}

	if dbType == SQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[db] connected (%s)", driver)
	return store, nil
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.dbType == SQLite {
		return query
	}
	var result strings.Builder
	argNum := 1
	for _, c := range query {
		if c == '?' {
			result.WriteString(fmt.Sprintf("$%d", argNum))
			argNum++
		} else {
			result.WriteRune(c)
		}
	}
	return result.String()
}

// insert runs an INSERT and returns the new row id.
func (s *SQLStore) insert(q querier, query string, args ...any) (int, error) {
	if s.dbType == Postgres {
		var id int
		err := q.QueryRow(s.rebind(query+" RETURNING id"), args...).Scan(&id)
		return id, err
	}
	result, err := q.Exec(s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	return int(id), err
}

// execOwned runs a statement that must touch at least one row.
func (s *SQLStore) execOwned(query string, args ...any) error {
	result, err := s.db.Exec(s.rebind(query), args...)
	if err != nil {
		return err
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id {{pk}},
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id {{pk}},
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		client_name TEXT NOT NULL DEFAULT '',
		case_number TEXT NOT NULL DEFAULT '',
		court TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open',
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS project_dates (
		id {{pk}},
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		date {{ts}} NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id {{pk}},
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id {{pk}},
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL,
		UNIQUE(user_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS notes (
		id {{pk}},
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS note_images (
		id {{pk}},
		note_id INTEGER NOT NULL REFERENCES notes(id) ON DELETE CASCADE,
		filename TEXT NOT NULL,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id {{pk}},
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id {{pk}},
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		search_query TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS search_results (
		id {{pk}},
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		message_id INTEGER REFERENCES messages(id) ON DELETE SET NULL,
		project_id INTEGER REFERENCES projects(id) ON DELETE SET NULL,
		category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
		document_id TEXT NOT NULL,
		title TEXT NOT NULL,
		citation TEXT NOT NULL DEFAULT '',
		jurisdiction TEXT NOT NULL DEFAULT '',
		doc_type TEXT NOT NULL DEFAULT '',
		year INTEGER NOT NULL DEFAULT 0,
		url TEXT NOT NULL DEFAULT '',
		excerpt TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		relevance INTEGER NOT NULL DEFAULT 0,
		detail TEXT NOT NULL DEFAULT '',
		saved BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_categories_user_name ON categories(user_id, LOWER(name))`,
	`CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id, project_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_results_user ON search_results(user_id, saved)`,
	`CREATE INDEX IF NOT EXISTS idx_results_message ON search_results(message_id)`,
}

func (s *SQLStore) initSchema() error {
	var r *strings.Replacer
	if s.dbType == Postgres {
		r = strings.NewReplacer("{{pk}}", "SERIAL PRIMARY KEY", "{{ts}}", "TIMESTAMPTZ")
	} else {
		r = strings.NewReplacer("{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT", "{{ts}}", "DATETIME")
	}

	for _, stmt := range schema {
		if _, err := s.db.Exec(r.Replace(stmt)); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
