// Package gallery holds the enrolled identities and keeps them on disk.
package gallery

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/andresmejia3/faceroll/internal/matcher"
	"github.com/andresmejia3/faceroll/internal/types"
)

// Storage persists a whole gallery snapshot.
// Load returns (nil, nil) when nothing has been saved yet.
type Storage interface {
	Load(ctx context.Context) ([]types.GalleryEntry, error)
	Save(ctx context.Context, entries []types.GalleryEntry) error
	Location() string
}

// Gallery is the ordered list of known faces.
type Gallery struct {
	mu      sync.RWMutex
	entries []types.GalleryEntry
	storage Storage
	matcher *matcher.Matcher
	log     *slog.Logger
}

// Option configures a Gallery.
type Option func(*Gallery)

// WithLogger sets the logger used for persistence events.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gallery) { g.log = l }
}

// WithMatcher overrides the default-threshold matcher.
func WithMatcher(m *matcher.Matcher) Option {
	return func(g *Gallery) { g.matcher = m }
}

// New creates an empty gallery backed by storage. Call Load to read it.
func New(storage Storage, opts ...Option) *Gallery {
	g := &Gallery{
		storage: storage,
		matcher: matcher.New(matcher.DefaultThreshold),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Load replaces the in-memory entries with the persisted snapshot.
// On failure the gallery is left empty.
func (g *Gallery) Load(ctx context.Context) error {
	entries, err := g.storage.Load(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.entries = nil
		return asStorageError("load", g.storage.Location(), err)
	}
	g.entries = entries
	g.log.Debug("gallery loaded", "path", g.storage.Location(), "entries", len(entries))
	return nil
}

// Save writes every entry, overwriting the previous snapshot.
func (g *Gallery) Save(ctx context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.saveLocked(ctx)
}

func (g *Gallery) saveLocked(ctx context.Context) error {
	if err := g.storage.Save(ctx, g.entries); err != nil {
		return asStorageError("save", g.storage.Location(), err)
	}
	g.log.Debug("gallery saved", "path", g.storage.Location(), "entries", len(g.entries))
	return nil
}

// Enroll appends a new identity and persists the gallery. If the write
// fails the entry is dropped again so memory and disk stay in step.
func (g *Gallery) Enroll(ctx context.Context, name string, emb types.Embedding) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &types.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries = append(g.entries, types.GalleryEntry{Name: name, Embedding: emb})
	if err := g.saveLocked(ctx); err != nil {
		g.entries = g.entries[:len(g.entries)-1]
		return err
	}
	g.log.Info("identity enrolled", "name", name, "entries", len(g.entries))
	return nil
}

// Reset removes every identity and persists the empty gallery.
func (g *Gallery) Reset(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := g.entries
	g.entries = nil
	if err := g.saveLocked(ctx); err != nil {
		g.entries = old
		return err
	}
	return nil
}

// Entries returns a copy of the current entries in enrollment order.
func (g *Gallery) Entries() []types.GalleryEntry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]types.GalleryEntry, len(g.entries))
	copy(out, g.entries)
	return out
}

// Len returns the number of enrolled identities.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}

// Match runs the matcher against the current entries.
func (g *Gallery) Match(query types.Embedding) matcher.Result {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.matcher.Match(query, g.entries)
}

// Location describes where the gallery is persisted.
func (g *Gallery) Location() string {
	return g.storage.Location()
}

func asStorageError(op, path string, err error) error {
	if types.IsStorage(err) {
		return err
	}
	return &types.StorageError{Op: op, Path: path, Err: err}
}
