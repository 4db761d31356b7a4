// Package archive packs and unpacks application zip archives. Extraction
// refuses entries that would escape the destination directory; symlinks and
// other non-regular entries are skipped.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Summary reports what an extraction produced.
type Summary struct {
	Files int
	Bytes int64
}

// IsZipName reports whether a filename claims to be a zip archive.
func IsZipName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// Extract unpacks an in-memory zip archive into dest.
func Extract(ctx context.Context, data []byte, dest string) (Summary, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Summary{}, fmt.Errorf("open archive: %w", err)
	}
	return extract(ctx, reader, dest)
}

// ExtractFile unpacks a zip archive from disk into dest.
func ExtractFile(ctx context.Context, path, dest string) (Summary, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return Summary{}, fmt.Errorf("open archive %s: %w", path, err)
	}
	defer reader.Close()
	return extract(ctx, &reader.Reader, dest)
}

func extract(ctx context.Context, reader *zip.Reader, dest string) (Summary, error) {
	root := filepath.Clean(dest)
	var summary Summary

	for _, entry := range reader.File {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		target, err := secureJoin(root, entry.Name)
		if err != nil {
			return summary, err
		}

		info := entry.FileInfo()
		switch {
		case info.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return summary, fmt.Errorf("create directory %s: %w", entry.Name, err)
			}
		case !info.Mode().IsRegular():
			// Symlinks, devices and the like never belong in an app bundle.
			continue
		default:
			written, err := writeEntry(entry, target)
			if err != nil {
				return summary, err
			}
			summary.Files++
			summary.Bytes += written
		}
	}
	return summary, nil
}

// secureJoin resolves an archive entry name under root, rejecting absolute
// names and any traversal outside root.
func secureJoin(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("archive entry with empty name")
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("archive entry %q has an absolute path", name)
	}
	target := filepath.Join(root, clean)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}

func writeEntry(entry *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", entry.Name, err)
	}

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", entry.Name, err)
	}

	in, err := entry.Open()
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("open entry %s: %w", entry.Name, err)
	}

	written, err := io.Copy(out, in)
	in.Close()
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("write %s: %w", entry.Name, err)
	}
	return written, nil
}

// Compress zips the contents of srcDir into destPath and returns the
// archive size in bytes. Entry names are relative to srcDir.
func Compress(ctx context.Context, srcDir, destPath string) (int64, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create archive %s: %w", destPath, err)
	}

	writer := zip.NewWriter(out)
	walkErr := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		entry, err := writer.CreateHeader(header)
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, in)
		in.Close()
		return err
	})

	if walkErr != nil {
		writer.Close()
		out.Close()
		os.Remove(destPath)
		return 0, fmt.Errorf("compress %s: %w", srcDir, walkErr)
	}
	if err := writer.Close(); err != nil {
		out.Close()
		os.Remove(destPath)
		return 0, fmt.Errorf("finalize archive: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(destPath)
		return 0, fmt.Errorf("close archive: %w", err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}
	return info.Size(), nil
}
