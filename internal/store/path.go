package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Split breaks a path into its segments, ignoring leading/trailing slashes.
func Split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Join builds a path from segments.
func Join(segs ...string) string {
	return strings.Join(segs, "/")
}

// splitRoot returns the root ("collection/key") of path and the remaining segments.
func splitRoot(path string) (string, []string, error) {
	segs := Split(path)
	if len(segs) < 2 {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	for _, s := range segs {
		if s == "" {
			return "", nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	return segs[0] + "/" + segs[1], segs[2:], nil
}

type change struct {
	segs  []string
	value any
}

// groupPatch checks that all paths share one root and normalizes values.
func groupPatch(patch map[string]any) (string, []change, error) {
	var root string
	changes := make([]change, 0, len(patch))
	for path, v := range patch {
		r, rest, err := splitRoot(path)
		if err != nil {
			return "", nil, err
		}
		if root == "" {
			root = r
		} else if root != r {
			return "", nil, fmt.Errorf("%w: %s vs %s", ErrCrossRoot, root, r)
		}
		nv, err := Normalize(v)
		if err != nil {
			return "", nil, err
		}
		changes = append(changes, change{segs: rest, value: nv})
	}
	// parents before children so a child write lands inside a replaced parent
	sortChanges(changes)
	return root, changes, nil
}

func sortChanges(cs []change) {
	for i := 1; i < len(cs); i++ {
		for j := i; j > 0 && len(cs[j].segs) < len(cs[j-1].segs); j-- {
			cs[j], cs[j-1] = cs[j-1], cs[j]
		}
	}
}

// Normalize converts a Go value into the generic JSON tree representation
// (map[string]any, []any, float64, string, bool, nil).
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch v.(type) {
	case string, bool, float64:
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	return out, nil
}

// Decode converts a generic tree value into dst.
func Decode(v any, dst any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func lookup(tree any, segs []string) any {
	cur := tree
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[s]
		if !ok {
			return nil
		}
	}
	return cur
}

// assign writes value at segs inside doc. Empty maps left behind by deletes are pruned.
func assign(doc map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	head := segs[0]
	if len(segs) == 1 {
		if value == nil {
			delete(doc, head)
		} else {
			doc[head] = value
		}
		return
	}
	child, ok := doc[head].(map[string]any)
	if !ok {
		if value == nil {
			return
		}
		child = map[string]any{}
		doc[head] = child
	}
	assign(child, segs[1:], value)
	if len(child) == 0 {
		delete(doc, head)
	}
}

// apply writes every change into doc (creating it when nil) and bumps the version.
func apply(doc map[string]any, changes []change) map[string]any {
	if doc == nil {
		doc = map[string]any{}
	}
	for _, c := range changes {
		if len(c.segs) == 0 {
			m, _ := c.value.(map[string]any)
			doc = cloneMap(m)
			if doc == nil {
				doc = map[string]any{}
			}
			continue
		}
		assign(doc, c.segs, c.value)
	}
	return doc
}

func versionOf(doc map[string]any) int64 {
	if doc == nil {
		return 0
	}
	switch v := doc[VersionField].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func bump(doc map[string]any, prev int64) int64 {
	next := prev + 1
	doc[VersionField] = float64(next)
	return next
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

func encodeDoc(doc map[string]any) ([]byte, error) {
	return json.Marshal(doc)
}

func decodeDoc(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
