package content

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Catalog resolves gradable items by kind and id.
type Catalog interface {
	Get(kind Kind, id string) (Item, error)
	List(kind Kind) []Item
}

type itemKey struct {
	kind Kind
	id   string
}

// Loader loads and caches lessons and challenges from a directory tree of YAML files.
type Loader struct {
	rootDir string
	items   map[itemKey]Item
	mu      sync.RWMutex
}

// NewLoader creates a new catalog loader and loads all content.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		items:   make(map[itemKey]Item),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading content: %w", err)
	}

	slog.Info("content loaded",
		"lessons", len(l.List(KindLesson)),
		"challenges", len(l.List(KindChallenge)),
	)
	return l, nil
}

// NewStaticCatalog builds a catalog from already validated items.
func NewStaticCatalog(items ...Item) (*Loader, error) {
	l := &Loader{items: make(map[itemKey]Item)}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
		key := itemKey{kind: it.Kind, id: it.ID}
		if _, dup := l.items[key]; dup {
			return nil, fmt.Errorf("duplicate %s id %q", it.Kind, it.ID)
		}
		l.items[key] = it
	}
	return l, nil
}

// Get returns an item by kind and id.
func (l *Loader) Get(kind Kind, id string) (Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	it, ok := l.items[itemKey{kind: kind, id: id}]
	if !ok {
		return Item{}, fmt.Errorf("%s %s: %w", kind, id, ErrItemNotFound)
	}
	return it, nil
}

// List returns all items of a kind sorted by order, then id.
func (l *Loader) List(kind Kind) []Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	items := make([]Item, 0, len(l.items))
	for k, it := range l.items {
		if k.kind == kind {
			items = append(items, it)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].ID < items[j].ID
	})
	return items
}

func (l *Loader) loadAll() error {
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadFile(path)
		}
		return nil
	})
}

// loadFile reads one YAML file. A file holds either a single item or a list under `items`.
func (l *Loader) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var doc struct {
		Item  `yaml:",inline"`
		Items []Item `yaml:"items"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		slog.Warn("skipping invalid content YAML", "path", path, "error", err)
		return nil
	}

	items := doc.Items
	if doc.Item.ID != "" {
		items = append(items, doc.Item)
	}

	for _, it := range items {
		if err := it.Validate(); err != nil {
			slog.Warn("skipping invalid item", "path", path, "error", err)
			continue
		}
		key := itemKey{kind: it.Kind, id: it.ID}

		l.mu.Lock()
		_, dup := l.items[key]
		if !dup {
			l.items[key] = it
		}
		l.mu.Unlock()

		if dup {
			slog.Warn("duplicate item id, keeping first", "path", path, "kind", it.Kind, "id", it.ID)
		}
	}
	return nil
}
