// Package filestore serves the JSON dataset sources (market, trade, patent and
// the local clinical fallback) with deep substring search over each record.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aiox-platform/gloser/internal/source"
)

// keyFields names the field that receives the object key when a dataset is
// stored as a dict instead of a list.
var keyFields = map[source.Kind]string{
	source.Trade:  "hs_code",
	source.Market: "area",
}

var summaries = map[source.Kind]func(n int, q string) string{
	source.Market: func(n int, q string) string {
		return fmt.Sprintf("IQVIA Agent found %d records related to '%s'.", n, q)
	},
	source.Trade: func(n int, q string) string {
		return fmt.Sprintf("Exim Agent found %d records for '%s'.", n, q)
	},
	source.Patent: func(n int, q string) string {
		return fmt.Sprintf("Patent Agent found %d patents matching '%s'.", n, q)
	},
	source.Clinical: func(n int, q string) string {
		return fmt.Sprintf("Clinical Agent (local) found %d trials for '%s'.", n, q)
	},
}

type dataset struct {
	kind source.Kind
	path string
	rows []source.Fields // nil until loaded
}

// Store caches parsed datasets in memory. A cached dataset is dropped when
// its file changes on disk, see Watch.
type Store struct {
	dir string

	mu       sync.RWMutex
	datasets map[source.Kind]*dataset
	onChange func(source.Kind)
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir, datasets: make(map[source.Kind]*dataset)}
}

// Register binds kind to a dataset file. Relative paths resolve against the
// store directory.
func (s *Store) Register(kind source.Kind, file string) {
	if !filepath.IsAbs(file) {
		file = filepath.Join(s.dir, file)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[kind] = &dataset{kind: kind, path: filepath.Clean(file)}
}

// Lookup returns the source collaborator for kind.
func (s *Store) Lookup(kind source.Kind) source.Lookup {
	return source.LookupFunc(func(ctx context.Context, query string) (source.Result, error) {
		rows, err := s.Match(ctx, kind, query)
		if err != nil {
			return source.Result{}, err
		}
		summary := fmt.Sprintf("%s dataset returned %d records for '%s'.", kind.Label(), len(rows), query)
		if fn, ok := summaries[kind]; ok {
			summary = fn(len(rows), query)
		}
		return source.NewResult(kind, rows, summary), nil
	})
}

// Match returns every record of kind that contains any whitespace-separated
// term of query, case-insensitively, anywhere in its JSON encoding.
func (s *Store) Match(ctx context.Context, kind source.Kind, query string) ([]source.Fields, error) {
	rows, err := s.rows(kind)
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	matched := make([]source.Fields, 0)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if containsAny(row, terms) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

func containsAny(row source.Fields, terms []string) bool {
	b, err := json.Marshal(row)
	if err != nil {
		return false
	}
	text := strings.ToLower(string(b))
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func (s *Store) rows(kind source.Kind) ([]source.Fields, error) {
	s.mu.RLock()
	ds, ok := s.datasets[kind]
	if ok && ds.rows != nil {
		rows := ds.rows
		s.mu.RUnlock()
		return rows, nil
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no dataset registered for %s", kind)
	}

	rows, err := load(kind, ds.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	ds.rows = rows
	s.mu.Unlock()
	slog.Debug("filestore: dataset loaded", "source", kind, "path", ds.path, "records", len(rows))
	return rows, nil
}

// load reads a dataset stored either as a list of objects or as an object
// keyed by id. Keyed entries are flattened in key order.
func load(kind source.Kind, path string) ([]source.Fields, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}

	rows := make([]source.Fields, 0)
	switch v := raw.(type) {
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				rows = append(rows, source.Fields(m))
			}
		}
	case map[string]any:
		keyField := keyFields[kind]
		if keyField == "" {
			keyField = "_key"
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			row := source.Fields{keyField: k}
			if m, ok := v[k].(map[string]any); ok {
				for field, val := range m {
					row[field] = val
				}
			} else {
				row["value"] = v[k]
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// OnChange registers fn to run after a loaded dataset is dropped by
// Invalidate. fn runs outside the store lock.
func (s *Store) OnChange(fn func(source.Kind)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Invalidate drops the cached copy of any dataset stored at path.
func (s *Store) Invalidate(path string) bool {
	path = filepath.Clean(path)
	s.mu.Lock()
	var dropped *dataset
	for _, ds := range s.datasets {
		if ds.path == path && ds.rows != nil {
			ds.rows = nil
			dropped = ds
			break
		}
	}
	fn := s.onChange
	s.mu.Unlock()

	if dropped == nil {
		return false
	}
	slog.Info("filestore: dataset changed, cache dropped", "source", dropped.kind, "path", path)
	if fn != nil {
		fn(dropped.kind)
	}
	return true
}

// Watch invalidates cached datasets whenever their files change. It blocks
// until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating dataset watcher: %w", err)
	}
	defer w.Close()

	s.mu.RLock()
	dirs := make(map[string]bool)
	for _, ds := range s.datasets {
		dirs[filepath.Dir(ds.path)] = true
	}
	s.mu.RUnlock()

	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			slog.Warn("filestore: cannot watch dataset directory", "dir", dir, "error", err)
		}
	}

	slog.Info("filestore: watching datasets", "dirs", len(dirs))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.Invalidate(event.Name)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Warn("filestore: watcher error", "error", err)
		}
	}
}
