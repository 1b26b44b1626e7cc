// Package assets moves photo evidence folders between order references on
// the local uploads tree. Migration is copy-merge: files are copied to the
// target when absent there and the source is always left in place, so a
// repeated or crashed run never loses evidence.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Categories are the evidence folders kept per order reference.
var Categories = []string{"delivery", "appeal", "responses"}

// Migrator copies evidence trees on the local filesystem.
type Migrator struct {
	root   string
	logger *slog.Logger
}

// NewMigrator constructs a migrator over the uploads root.
func NewMigrator(root string, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{root: root, logger: logger}
}

// CopyMerge copies every category folder of fromKey into toKey, skipping
// files the target already has. The source folders are kept.
func (m *Migrator) CopyMerge(ctx context.Context, fromKey, toKey string) error {
	fromKey, toKey = sanitizeKey(fromKey), sanitizeKey(toKey)
	if fromKey == "" || toKey == "" || fromKey == toKey {
		return nil
	}
	for _, cat := range Categories {
		if err := ctx.Err(); err != nil {
			return err
		}
		src := filepath.Join(m.root, cat, fromKey)
		dst := filepath.Join(m.root, cat, toKey)
		if err := copyTree(src, dst); err != nil {
			return fmt.Errorf("assets: migrate %s %s -> %s: %w", cat, fromKey, toKey, err)
		}
	}
	return nil
}

// Consolidate merges the evidence of every alternate reference onto the
// canonical key. Sources are kept; callers pass the order's known aliases.
func (m *Migrator) Consolidate(ctx context.Context, canonical string, aliases []string) error {
	for _, alias := range aliases {
		if err := m.CopyMerge(ctx, alias, canonical); err != nil {
			return err
		}
	}
	return nil
}

// Listing returns the stored file names for the reference across every
// category, omitting categories with nothing in them.
func (m *Migrator) Listing(key string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, cat := range Categories {
		files, err := m.List(cat, key)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			out[cat] = files
		}
	}
	return out, nil
}

// List returns the file names stored under one category for the reference.
func (m *Migrator) List(category, key string) ([]string, error) {
	dir := filepath.Join(m.root, category, sanitizeKey(key))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("assets: list %s/%s: %w", category, key, err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := copyTree(from, to); err != nil {
				return err
			}
			continue
		}
		if _, err := os.Stat(to); err == nil {
			continue
		}
		if err := copyFile(from, to); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	tmp := out.Name()
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// sanitizeKey keeps references safe as directory names.
func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "#")
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	key = strings.ReplaceAll(key, "..", "_")
	return key
}
