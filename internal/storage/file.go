package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"tongbuying/internal/member"
)

// FileBackend persists the member collection as pretty-printed JSON in a
// single local file. It carries no version token; in-process serialization
// is the store's responsibility.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the data file. A missing or corrupt file degrades to an empty
// collection rather than an error.
func (b *FileBackend) Load(_ context.Context) ([]member.Member, string, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return []member.Member{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("read data file: %w", err)
	}

	var doc member.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("data file is corrupt, starting from an empty collection", "path", b.path, "error", err)
		return []member.Member{}, "", nil
	}
	if doc.Members == nil {
		doc.Members = []member.Member{}
	}
	return doc.Members, "", nil
}

// Save writes the full collection with a fresh lastUpdated stamp. The
// previous file is first copied to a .backup sibling; that copy is a
// best-effort safety net and its failure is logged, not fatal.
func (b *FileBackend) Save(_ context.Context, members []member.Member, _ string, _ string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	if err := copyFile(b.path, b.path+".backup"); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to write backup copy", "path", b.path+".backup", "error", err)
	}

	doc := member.Document{Members: members, LastUpdated: timestamp()}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal members document: %w", err)
	}

	if err := os.WriteFile(b.path, data, 0o644); err != nil {
		return "", fmt.Errorf("write data file: %w", err)
	}
	return "", nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
