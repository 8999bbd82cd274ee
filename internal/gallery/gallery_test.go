package gallery

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/faceroll/internal/types"
)

func embeddingOf(vals ...float32) types.Embedding {
	var e types.Embedding
	copy(e[:], vals)
	return e
}

// failingStorage lets tests observe writes and inject failures.
type failingStorage struct {
	saves   int
	saveErr error
	loadErr error
	data    []types.GalleryEntry
}

func (f *failingStorage) Load(ctx context.Context) ([]types.GalleryEntry, error) {
	return f.data, f.loadErr
}

func (f *failingStorage) Save(ctx context.Context, entries []types.GalleryEntry) error {
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data = append([]types.GalleryEntry(nil), entries...)
	return nil
}

func (f *failingStorage) Location() string { return "memory" }

func TestFileRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "known_faces.gob")

	g := New(NewFileStorage(path))
	alice := embeddingOf(0.1, -0.25, float32(math.Pi))
	bob := embeddingOf(1e-7, 3.5)
	if err := g.Enroll(ctx, "Alice", alice); err != nil {
		t.Fatalf("Enroll Alice: %v", err)
	}
	if err := g.Enroll(ctx, "Bob", bob); err != nil {
		t.Fatalf("Enroll Bob: %v", err)
	}

	reloaded := New(NewFileStorage(path))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := reloaded.Entries()
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Name != "Alice" || got[1].Name != "Bob" {
		t.Errorf("order not preserved: %q, %q", got[0].Name, got[1].Name)
	}
	if got[0].Embedding != alice || got[1].Embedding != bob {
		t.Error("embeddings did not survive the round trip bit-for-bit")
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.gob")
	g := New(NewFileStorage(path))
	if err := g.Load(context.Background()); err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty gallery, got %d entries", g.Len())
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "known_faces.gob")
	if err := os.WriteFile(path, []byte("definitely not gob"), 0644); err != nil {
		t.Fatal(err)
	}

	g := New(NewFileStorage(path))
	err := g.Load(context.Background())
	if !types.IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty gallery after failed load, got %d", g.Len())
	}
}

func TestLoadFailureClearsPrevious(t *testing.T) {
	ctx := context.Background()
	st := &failingStorage{}
	g := New(st)
	if err := g.Enroll(ctx, "Alice", embeddingOf(1)); err != nil {
		t.Fatal(err)
	}
	st.loadErr = errors.New("disk gone")
	if err := g.Load(ctx); !types.IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if g.Len() != 0 {
		t.Errorf("expected empty gallery, got %d", g.Len())
	}
}

func TestEnrollRejectsEmptyName(t *testing.T) {
	tests := []string{"", "   ", "\t\n"}
	for _, name := range tests {
		st := &failingStorage{}
		g := New(st)
		err := g.Enroll(context.Background(), name, embeddingOf(1))
		if !types.IsValidation(err) {
			t.Errorf("name %q: expected ValidationError, got %v", name, err)
		}
		if st.saves != 0 {
			t.Errorf("name %q: expected no write, got %d", name, st.saves)
		}
		if g.Len() != 0 {
			t.Errorf("name %q: gallery mutated", name)
		}
	}
}

func TestEnrollEmptyNameLeavesFileUnchanged(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "known_faces.gob")
	g := New(NewFileStorage(path))
	if err := g.Enroll(ctx, "Alice", embeddingOf(1)); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := g.Enroll(ctx, "", embeddingOf(2)); !types.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("gallery file changed after rejected enrollment")
	}
}

func TestEnrollRollsBackOnSaveFailure(t *testing.T) {
	ctx := context.Background()
	st := &failingStorage{}
	g := New(st)
	if err := g.Enroll(ctx, "Alice", embeddingOf(1)); err != nil {
		t.Fatal(err)
	}

	st.saveErr = errors.New("read-only filesystem")
	err := g.Enroll(ctx, "Bob", embeddingOf(2))
	if !types.IsStorage(err) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if g.Len() != 1 {
		t.Errorf("expected rollback to 1 entry, got %d", g.Len())
	}
}

func TestEnrollTrimsName(t *testing.T) {
	g := New(&failingStorage{})
	if err := g.Enroll(context.Background(), "  Carol ", embeddingOf(1)); err != nil {
		t.Fatal(err)
	}
	if got := g.Entries()[0].Name; got != "Carol" {
		t.Errorf("expected trimmed name, got %q", got)
	}
}

func TestMatchUsesGalleryOrder(t *testing.T) {
	ctx := context.Background()
	g := New(&failingStorage{})
	_ = g.Enroll(ctx, "Alice", embeddingOf(0.3))
	_ = g.Enroll(ctx, "Bob", embeddingOf(0.1))

	res := g.Match(embeddingOf(0))
	if !res.Known || res.Name != "Alice" {
		t.Errorf("expected first match Alice, got %+v", res)
	}

	if res := New(&failingStorage{}).Match(embeddingOf(0)); res.Known {
		t.Errorf("empty gallery matched %+v", res)
	}
}

func TestEntriesIsCopy(t *testing.T) {
	g := New(&failingStorage{})
	_ = g.Enroll(context.Background(), "Alice", embeddingOf(1))
	entries := g.Entries()
	entries[0].Name = "Mallory"
	if g.Entries()[0].Name != "Alice" {
		t.Error("Entries exposed internal slice")
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "known_faces.gob")
	g := New(NewFileStorage(path))
	_ = g.Enroll(ctx, "Alice", embeddingOf(1))
	if err := g.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	reloaded := New(NewFileStorage(path))
	if err := reloaded.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if reloaded.Len() != 0 {
		t.Errorf("expected empty gallery after reset, got %d", reloaded.Len())
	}
}
