// Package store keeps the face gallery in PostgreSQL using pgvector columns.
package store

import (
	"context"
	"fmt"

	"github.com/andresmejia3/faceroll/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

// Store manages the PostgreSQL connection and implements gallery.Storage.
type Store struct {
	conn *pgx.Conn
	url  string
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

	return &Store{conn: conn, url: redact(conn.Config())}, nil
}

// initSchema creates the vector extension and gallery table if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS gallery_entries (
			position INT PRIMARY KEY,
			name TEXT NOT NULL,
			embedding VECTOR(%d) NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`, types.EmbeddingDim)
	_, err := conn.Exec(ctx, query)
	return err
}

func redact(cfg *pgx.ConnConfig) string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// Location identifies the database without leaking the password.
func (s *Store) Location() string {
	return s.url
}

// Load returns every entry in enrollment order.
func (s *Store) Load(ctx context.Context) ([]types.GalleryEntry, error) {
	rows, err := s.conn.Query(ctx, `SELECT name, embedding FROM gallery_entries ORDER BY position`)
	if err != nil {
		return nil, &types.StorageError{Op: "load", Path: s.url, Err: err}
	}
	defer rows.Close()

	var entries []types.GalleryEntry
	for rows.Next() {
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&name, &vec); err != nil {
			return nil, &types.StorageError{Op: "load", Path: s.url, Err: err}
		}
		emb, err := toEmbedding(vec.Slice())
		if err != nil {
			return nil, &types.StorageError{Op: "load", Path: s.url, Err: err}
		}
		entries = append(entries, types.GalleryEntry{Name: name, Embedding: emb})
	}
	if err := rows.Err(); err != nil {
		return nil, &types.StorageError{Op: "load", Path: s.url, Err: err}
	}
	return entries, nil
}

// Save overwrites the whole gallery inside one transaction, mirroring the
// file backend's snapshot semantics.
func (s *Store) Save(ctx context.Context, entries []types.GalleryEntry) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return &types.StorageError{Op: "save", Path: s.url, Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM gallery_entries"); err != nil {
		return &types.StorageError{Op: "save", Path: s.url, Err: err}
	}

	batch := &pgx.Batch{}
	for i, e := range entries {
		emb := e.Embedding
		batch.Queue(`INSERT INTO gallery_entries (position, name, embedding) VALUES ($1, $2, $3)`,
			i, e.Name, pgvector.NewVector(emb[:]))
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return &types.StorageError{Op: "save", Path: s.url, Err: err}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return &types.StorageError{Op: "save", Path: s.url, Err: err}
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM gallery_entries").Scan(&n)
	return n, err
}

// Reset drops the gallery table to force a schema refresh.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, "DROP TABLE IF EXISTS gallery_entries CASCADE"); err != nil {
		return err
	}
	return initSchema(ctx, s.conn)
}

func toEmbedding(vec []float32) (types.Embedding, error) {
	var e types.Embedding
	if len(vec) != types.EmbeddingDim {
		return e, fmt.Errorf("stored vector has %d dimensions, want %d", len(vec), types.EmbeddingDim)
	}
	copy(e[:], vec)
	return e, nil
}
