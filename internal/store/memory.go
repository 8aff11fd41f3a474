package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Document. It is used by tests and single-node deployments.
type Memory struct {
	mu    sync.Mutex
	roots map[string]map[string]any
	subs  *fanout
}

func NewMemory() *Memory {
	return &Memory{
		roots: make(map[string]map[string]any),
		subs:  newFanout(),
	}
}

func (m *Memory) Get(_ context.Context, path string) (any, error) {
	root, rest, err := splitRoot(path)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.roots[root]
	if !ok {
		return nil, nil
	}
	return cloneValue(lookup(doc, rest)), nil
}

func (m *Memory) Set(ctx context.Context, path string, value any) error {
	root, rest, err := splitRoot(path)
	if err != nil {
		return err
	}
	if len(rest) == 0 && value == nil {
		m.mu.Lock()
		delete(m.roots, root)
		m.subs.publish(root, nil)
		m.mu.Unlock()
		return nil
	}
	return m.Update(ctx, map[string]any{path: value})
}

func (m *Memory) Update(_ context.Context, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	root, changes, err := groupPatch(patch)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc := m.roots[root]
	prev := versionOf(doc)
	doc = apply(cloneMap(doc), changes)
	bump(doc, prev)
	m.roots[root] = doc
	m.subs.publish(root, doc)
	return nil
}

func (m *Memory) UpdateIf(_ context.Context, root string, version int64, patch map[string]any) (int64, error) {
	if _, _, err := splitRoot(root); err != nil {
		return 0, err
	}
	r, changes, err := groupPatch(patch)
	if err != nil {
		return 0, err
	}
	if len(changes) > 0 && r != strings.Trim(root, "/") {
		return 0, ErrCrossRoot
	}
	root = strings.Trim(root, "/")

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.roots[root]
	if !ok {
		return 0, ErrNotFound
	}
	if versionOf(doc) != version {
		return 0, ErrVersionConflict
	}
	doc = apply(cloneMap(doc), changes)
	next := bump(doc, version)
	m.roots[root] = doc
	m.subs.publish(root, doc)
	return next, nil
}

func (m *Memory) Subscribe(ctx context.Context, path string, fn func(any)) (func(), error) {
	root, rest, err := splitRoot(path)
	if err != nil {
		return nil, err
	}
	s, cancel := m.subs.add(ctx, root, rest, fn)
	m.mu.Lock()
	s.push(m.roots[root])
	m.mu.Unlock()
	return cancel, nil
}

func (m *Memory) List(_ context.Context, collection string) ([]string, error) {
	prefix := strings.Trim(collection, "/") + "/"
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for root := range m.roots {
		if strings.HasPrefix(root, prefix) {
			keys = append(keys, strings.TrimPrefix(root, prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Close() error {
	m.subs.closeAll()
	return nil
}
