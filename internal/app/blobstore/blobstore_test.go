package blobstore

import (
	"os"
	"path/filepath"
	"testing"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestNewCreatesLayout(t *testing.T) {
	store := newStore(t)
	for _, sub := range []string{"apps", "backups", "files", "staging"} {
		info, err := os.Stat(filepath.Join(store.Root(), sub))
		if err != nil {
			t.Fatalf("stat %s: %v", sub, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", sub)
		}
	}
}

func TestAppDirLifecycle(t *testing.T) {
	store := newStore(t)

	dir, err := store.CreateAppDir("app-1")
	if err != nil {
		t.Fatalf("create app dir: %v", err)
	}
	exists, err := store.AppDirExists("app-1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatal("expected app dir to exist")
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := store.RemoveAppDir("app-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	exists, err = store.AppDirExists("app-1")
	if err != nil {
		t.Fatalf("exists after remove: %v", err)
	}
	if exists {
		t.Fatal("expected app dir to be gone")
	}
}

func TestSwapAppDirReplacesContent(t *testing.T) {
	store := newStore(t)

	dir, err := store.CreateAppDir("app-1")
	if err != nil {
		t.Fatalf("create app dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	staged, err := store.NewStagingDir()
	if err != nil {
		t.Fatalf("staging dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staged, "index.html"), []byte("new"), 0o644); err != nil {
		t.Fatalf("write staged: %v", err)
	}

	if err := store.SwapAppDir("app-1", staged); err != nil {
		t.Fatalf("swap: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(store.AppDir("app-1"), "index.html"))
	if err != nil {
		t.Fatalf("read after swap: %v", err)
	}
	if string(got) != "new" {
		t.Fatalf("content = %q, want %q", got, "new")
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatal("staged directory should be consumed by the swap")
	}
	if _, err := os.Stat(store.AppDir("app-1") + ".old"); !os.IsNotExist(err) {
		t.Fatal("old directory should be cleaned up")
	}
}

func TestSwapAppDirWithoutExistingTarget(t *testing.T) {
	store := newStore(t)

	staged, err := store.NewStagingDir()
	if err != nil {
		t.Fatalf("staging dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(staged, "index.html"), []byte("fresh"), 0o644); err != nil {
		t.Fatalf("write staged: %v", err)
	}

	if err := store.SwapAppDir("brand-new", staged); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.AppDir("brand-new"), "index.html")); err != nil {
		t.Fatalf("swapped content missing: %v", err)
	}
}

func TestBackupPath(t *testing.T) {
	store := newStore(t)

	path, err := store.BackupPath("app-1", "backup-9")
	if err != nil {
		t.Fatalf("backup path: %v", err)
	}
	if filepath.Base(path) != "backup-9.zip" {
		t.Fatalf("unexpected archive name: %s", path)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("backup directory not created: %v", err)
	}
}

func TestSaveAndRemoveFile(t *testing.T) {
	store := newStore(t)

	path, err := store.SaveFile("f1", "notes.txt", []byte("hello"))
	if err != nil {
		t.Fatalf("save file: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("content = %q", got)
	}

	if err := store.RemoveFile(path); err != nil {
		t.Fatalf("remove file: %v", err)
	}
	if err := store.RemoveFile("/etc/passwd"); err == nil {
		t.Fatal("expected refusal to remove a path outside the files area")
	}
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 10), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.txt"), make([]byte, 5), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	size, err := DirSize(dir)
	if err != nil {
		t.Fatalf("dir size: %v", err)
	}
	if size != 15 {
		t.Fatalf("size = %d, want 15", size)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"notes.txt":          "notes.txt",
		"my report v2.pdf":   "my_report_v2.pdf",
		"../../etc/passwd":   "passwd",
		"..\\..\\evil.exe":   "evil.exe",
		".htaccess":          "htaccess",
		"":                   "file",
		"...":                "file",
		"résumé.pdf":         "r_sum_.pdf",
		"already_fine-1.txt": "already_fine-1.txt",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
