package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func exerciseRepository(t *testing.T, repo Repository) {
	t.Helper()
	ctx := context.Background()

	if _, err := repo.Get(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty store error = %v, want ErrNotFound", err)
	}

	if err := repo.Set(ctx, KeyAuthToken, "tok-1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := repo.Get(ctx, KeyAuthToken)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "tok-1" {
		t.Fatalf("Get = %q, want tok-1", got)
	}

	if err := repo.Set(ctx, KeyAuthToken, "tok-2"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if got, _ := repo.Get(ctx, KeyAuthToken); got != "tok-2" {
		t.Fatalf("Get after overwrite = %q, want tok-2", got)
	}

	if err := repo.Clear(ctx, KeyAuthToken); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := repo.Get(ctx, KeyAuthToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Clear error = %v, want ErrNotFound", err)
	}
	if err := repo.Clear(ctx, "missing"); err != nil {
		t.Fatalf("Clear missing key: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseRepository(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "session.json")
	repo, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	exerciseRepository(t, repo)
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	first, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if err := first.Set(context.Background(), KeyClientID, "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	second, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	got, err := second.Get(context.Background(), KeyClientID)
	if err != nil || got != "abc" {
		t.Fatalf("Get = %q, %v; want abc, nil", got, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != sessionFileMode {
		t.Fatalf("file mode = %o, want %o", perm, sessionFileMode)
	}
}

func TestFileStoreCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	repo, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := repo.Get(context.Background(), KeyAuthToken); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on corrupt file error = %v, want decode error", err)
	}
}

func TestNewFileStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := NewFileStore("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()

	repo, err := Open(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Open default: %v", err)
	}
	if _, ok := repo.(*MemoryStore); !ok {
		t.Fatalf("default backend = %T, want *MemoryStore", repo)
	}

	repo, err = Open(context.Background(), Config{Backend: "file", FilePath: filepath.Join(t.TempDir(), "s.json")})
	if err != nil {
		t.Fatalf("Open file: %v", err)
	}
	if _, ok := repo.(*FileStore); !ok {
		t.Fatalf("file backend = %T, want *FileStore", repo)
	}

	if _, err := Open(context.Background(), Config{Backend: "cookie"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
