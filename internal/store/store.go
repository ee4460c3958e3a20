package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresmejia3/facewatch/internal/gallery"
	"github.com/andresmejia3/facewatch/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Store keeps the gallery in PostgreSQL, one row per entry, descriptors in a pgvector column.
type Store struct {
	conn *pgx.Conn
	url  string
}

// IsURL reports whether a gallery location names a PostgreSQL database rather than a file.
func IsURL(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn, url: redact(connString)}, nil
}

// initSchema creates the gallery table and vector extension if they don't exist.
// The vector column has no fixed width so any descriptor model can be stored.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS gallery_entries (
			id BIGSERIAL PRIMARY KEY,
			label TEXT NOT NULL,
			embedding VECTOR NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS gallery_entries_label_idx ON gallery_entries (label);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// redact drops the password from a connection string for error messages
func redact(connString string) string {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return "postgres"
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}

// String names the database without its password
func (s *Store) String() string {
	return s.url
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// SaveGallery replaces every stored entry with the contents of g, in storage order.
func (s *Store) SaveGallery(ctx context.Context, g *gallery.Gallery) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM gallery_entries"); err != nil {
		return fmt.Errorf("clear gallery: %w", err)
	}
	// Restart ids so storage order is the id order of this save
	if _, err := tx.Exec(ctx, "ALTER SEQUENCE gallery_entries_id_seq RESTART WITH 1"); err != nil {
		return fmt.Errorf("reset gallery ids: %w", err)
	}

	batch := &pgx.Batch{}
	for _, e := range g.Entries() {
		batch.Queue("INSERT INTO gallery_entries (label, embedding) VALUES ($1, $2)", e.Label, pgvector.NewVector(e.Descriptor))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert gallery entries: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadGallery reads every entry ordered by id. Any failure is a *gallery.LoadError.
func (s *Store) LoadGallery(ctx context.Context) (*gallery.Gallery, error) {
	rows, err := s.conn.Query(ctx, "SELECT label, embedding FROM gallery_entries ORDER BY id")
	if err != nil {
		return nil, &gallery.LoadError{Path: s.url, Err: err}
	}
	defer rows.Close()

	var entries []types.GalleryEntry
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, &gallery.LoadError{Path: s.url, Err: err}
		}
		entries = append(entries, types.GalleryEntry{Label: label, Descriptor: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, &gallery.LoadError{Path: s.url, Err: err}
	}

	g, err := gallery.New(entries)
	if err != nil {
		return nil, &gallery.LoadError{Path: s.url, Err: err}
	}
	return g, nil
}

// ListLabels returns each label with its entry count, in order of first insertion.
func (s *Store) ListLabels(ctx context.Context) ([]gallery.LabelCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT label, COUNT(*) FROM gallery_entries
		GROUP BY label
		ORDER BY MIN(id)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gallery.LabelCount
	for rows.Next() {
		var lc gallery.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// RenameLabel updates every entry carrying label from, and returns how many rows changed.
func (s *Store) RenameLabel(ctx context.Context, from, to string) (int, error) {
	tag, err := s.conn.Exec(ctx, "UPDATE gallery_entries SET label = $1 WHERE label = $2", to, from)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// Reset drops the gallery table to clear the database state.
// The next New recreates it.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS gallery_entries CASCADE;`)
	return err
}

// Load, Save and Counts make the store a gallery.Container.

func (s *Store) Load(ctx context.Context) (*gallery.Gallery, error) {
	return s.LoadGallery(ctx)
}

func (s *Store) Save(ctx context.Context, g *gallery.Gallery) error {
	return s.SaveGallery(ctx, g)
}

func (s *Store) Counts(ctx context.Context) ([]gallery.LabelCount, error) {
	return s.ListLabels(ctx)
}

var _ gallery.Container = (*Store)(nil)
