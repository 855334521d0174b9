package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/stake-plus/dao-monitor/src/gov"
)

const fileFormatVersion = 1

// FileStore keeps the notified set in a single JSON document. Every mark
// rewrites the document through a temp file and rename, so a crash leaves
// either the old or the new state on disk.
type FileStore struct {
	path string
	set  *notifiedSet
}

// OpenFile loads the store at path. A missing file is a cold start; anything
// else that prevents reading the document yields ErrCorrupt.
func OpenFile(path string) (*FileStore, error) {
	s := &FileStore{path: path, set: newNotifiedSet()}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (f *FileStore) load() error {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrCorrupt, f.path, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrCorrupt, f.path, err)
	}

	if v, ok := doc["version"]; ok {
		var version int
		if err := json.Unmarshal(v, &version); err != nil || version != fileFormatVersion {
			return fmt.Errorf("%w: %s has unsupported version %s", ErrCorrupt, f.path, string(v))
		}
		delete(doc, "version")
	}

	for key, value := range doc {
		var ids []int64
		if err := json.Unmarshal(value, &ids); err != nil {
			return fmt.Errorf("%w: %s category %q: %v", ErrCorrupt, f.path, key, err)
		}
		for _, id := range ids {
			f.set.addLocked(id, gov.Category(key))
		}
	}
	return nil
}

func (f *FileStore) IsNotified(_ context.Context, voteID int64, category gov.Category) (bool, error) {
	return f.set.has(voteID, category), nil
}

// MarkNotified sets the flag and persists it before returning. If the write
// fails the in-memory flag is rolled back so state never runs ahead of disk.
func (f *FileStore) MarkNotified(_ context.Context, voteID int64, category gov.Category) error {
	f.set.mu.Lock()
	defer f.set.mu.Unlock()

	if !f.set.addLocked(voteID, category) {
		return nil
	}
	if err := f.writeLocked(); err != nil {
		f.set.removeLocked(voteID, category)
		return err
	}
	return nil
}

func (f *FileStore) List(_ context.Context, category gov.Category) ([]int64, error) {
	return f.set.list(category), nil
}

func (f *FileStore) Close() error { return nil }

func (f *FileStore) writeLocked() error {
	doc := map[string]any{"version": fileFormatVersion}
	for _, c := range gov.Categories {
		doc[string(c)] = []int64{}
	}
	categories := make([]string, 0, len(f.set.order))
	for c := range f.set.order {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		doc[c] = f.set.order[gov.Category(c)]
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode notified set: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
