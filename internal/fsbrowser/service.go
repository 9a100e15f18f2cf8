package fsbrowser

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	defaultSearchLimit = 20
	maxSearchDepth     = 6
)

type Item struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

type ListResult struct {
	Path  string `json:"path"`
	Items []Item `json:"items"`
}

// Service lists and searches directories. Relative paths resolve against
// base; "~" expands to the home directory.
type Service struct {
	base string
}

func NewService(base string) *Service {
	if strings.TrimSpace(base) == "" {
		base = "."
	}
	return &Service{base: base}
}

func (s *Service) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = "."
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(s.base, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", errors.New("path is not a directory")
	}
	return filepath.Clean(abs), nil
}

// List returns the entries of one directory, directories first.
func (s *Service) List(path string, includeHidden bool) (ListResult, error) {
	resolved, err := s.Resolve(path)
	if err != nil {
		return ListResult{}, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return ListResult{}, err
	}
	items := make([]Item, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !includeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		item := Item{Name: name, Path: filepath.Join(resolved, name), IsDir: entry.IsDir()}
		if !item.IsDir {
			if info, err := entry.Info(); err == nil {
				item.Size = info.Size()
			}
		}
		items = append(items, item)
	}
	sortItems(items)
	return ListResult{Path: resolved, Items: items}, nil
}

// Search walks base breadth first and returns entries whose name contains
// q, case-insensitively. Hidden directories and symlinks are not followed.
func (s *Service) Search(base, q string, limit int) ([]Item, error) {
	resolvedBase, err := s.Resolve(base)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(strings.TrimSpace(q))
	if query == "" {
		return []Item{}, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	type node struct {
		path  string
		depth int
	}
	queue := []node{{path: resolvedBase}}
	out := make([]Item, 0, limit)

	for len(queue) > 0 && len(out) < limit {
		cur := queue[0]
		queue = queue[1:]
		entries, err := os.ReadDir(cur.path)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if len(out) >= limit {
				break
			}
			name := entry.Name()
			if entry.Type()&os.ModeSymlink != 0 {
				continue
			}
			child := filepath.Join(cur.path, name)
			if strings.Contains(strings.ToLower(name), query) {
				out = append(out, Item{Name: name, Path: child, IsDir: entry.IsDir()})
			}
			if entry.IsDir() && !strings.HasPrefix(name, ".") && cur.depth+1 <= maxSearchDepth {
				queue = append(queue, node{path: child, depth: cur.depth + 1})
			}
		}
	}
	sortItems(out)
	return out, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}
