package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestExtract(t *testing.T) {
	data := buildZip(t, map[string]string{
		"index.html":     "<h1>hello</h1>",
		"css/styles.css": "body{}",
		"js/app.js":      "console.log(1)",
	})
	dest := t.TempDir()

	summary, err := Extract(context.Background(), data, dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if summary.Files != 3 {
		t.Fatalf("files = %d, want 3", summary.Files)
	}
	if summary.Bytes == 0 {
		t.Fatal("expected non-zero extracted bytes")
	}

	got, err := os.ReadFile(filepath.Join(dest, "css", "styles.css"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(got) != "body{}" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../evil.txt", "a/../../evil.txt", "/etc/evil.txt"} {
		t.Run(name, func(t *testing.T) {
			data := buildZip(t, map[string]string{name: "owned"})
			parent := t.TempDir()
			dest := filepath.Join(parent, "app")
			if err := os.Mkdir(dest, 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}

			if _, err := Extract(context.Background(), data, dest); err == nil {
				t.Fatal("expected traversal to be rejected")
			}
			if _, err := os.Stat(filepath.Join(parent, "evil.txt")); !os.IsNotExist(err) {
				t.Fatal("traversal escaped the destination")
			}
		})
	}
}

func TestExtractRejectsGarbage(t *testing.T) {
	if _, err := Extract(context.Background(), []byte("not a zip at all"), t.TempDir()); err == nil {
		t.Fatal("expected error for non-zip payload")
	}
}

func TestExtractHonorsContext(t *testing.T) {
	data := buildZip(t, map[string]string{"index.html": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Extract(ctx, data, t.TempDir()); err == nil {
		t.Fatal("expected context error")
	}
}

func TestCompressRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.MkdirAll(filepath.Join(src, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "index.html"), []byte("<p>hi</p>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "assets", "logo.svg"), []byte("<svg/>"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	archivePath := filepath.Join(t.TempDir(), "snapshot.zip")
	size, err := Compress(context.Background(), src, archivePath)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if size <= 0 {
		t.Fatalf("size = %d, want > 0", size)
	}

	dest := t.TempDir()
	summary, err := ExtractFile(context.Background(), archivePath, dest)
	if err != nil {
		t.Fatalf("extract file: %v", err)
	}
	if summary.Files != 2 {
		t.Fatalf("files = %d, want 2", summary.Files)
	}
	got, err := os.ReadFile(filepath.Join(dest, "assets", "logo.svg"))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "<svg/>" {
		t.Fatalf("unexpected content: %q", got)
	}
}

func TestIsZipName(t *testing.T) {
	cases := map[string]bool{
		"site.zip":    true,
		"SITE.ZIP":    true,
		"index.html":  false,
		"archive.tar": false,
		"zip":         false,
	}
	for name, want := range cases {
		if got := IsZipName(name); got != want {
			t.Errorf("IsZipName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSecureJoinKeepsNestedPaths(t *testing.T) {
	root := filepath.Clean("/data/apps/abc")
	got, err := secureJoin(root, "deep/nested/file.txt")
	if err != nil {
		t.Fatalf("secure join: %v", err)
	}
	if !strings.HasPrefix(got, root) {
		t.Fatalf("joined path %q not under root", got)
	}
}
