// Package settings models the hierarchical settings document: a JSON tree
// addressed by dotted paths, with scalar coercion at the update boundary
// and typed read views for services.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	ErrNotFound  = errors.New("settings: path not found")
	ErrNotScalar = errors.New("settings: target is not a scalar leaf")
	ErrBadIndex  = errors.New("settings: bad list index")
)

// Document is the root of the settings tree. Top-level keys are service
// names plus the distinguished key "global".
type Document map[string]any

// Load reads a document from a JSON file.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return d, nil
}

// Parse decodes a document from raw JSON bytes.
func Parse(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if d == nil {
		d = Document{}
	}
	return d, nil
}

// Save serializes the tree back to disk. Mutations are write-through: the
// store persists before broadcasting.
func (d Document) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Get resolves a dotted path. List nodes consume the next segment as an
// integer index.
func (d Document) Get(path string) (any, bool) {
	var node any = map[string]any(d)
	for _, seg := range strings.Split(path, ".") {
		switch n := node.(type) {
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = v
		case Document:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// SetScalar writes a scalar value at a dotted path. Missing intermediate
// mappings are created; an existing mapping or list at the target makes the
// update fail so a typo cannot wipe out a subtree.
func (d Document) SetScalar(path string, value any) error {
	if !isScalar(value) {
		return ErrNotScalar
	}
	parent, last, err := d.walk(path, true)
	if err != nil {
		return err
	}
	switch p := parent.(type) {
	case map[string]any:
		if cur, ok := p[last]; ok && !isScalar(cur) {
			return fmt.Errorf("%w: %s", ErrNotScalar, path)
		}
		p[last] = value
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(p) {
			return fmt.Errorf("%w: %s", ErrBadIndex, path)
		}
		if !isScalar(p[idx]) {
			return fmt.Errorf("%w: %s", ErrNotScalar, path)
		}
		p[idx] = value
	default:
		return fmt.Errorf("%w: %s", ErrNotScalar, path)
	}
	return nil
}

// SetBlock replaces the node at the path wholesale with an arbitrary
// subtree.
func (d Document) SetBlock(path string, value any) error {
	parent, last, err := d.walk(path, true)
	if err != nil {
		return err
	}
	switch p := parent.(type) {
	case map[string]any:
		p[last] = value
	case []any:
		idx, err := strconv.Atoi(last)
		if err != nil || idx < 0 || idx >= len(p) {
			return fmt.Errorf("%w: %s", ErrBadIndex, path)
		}
		p[idx] = value
	default:
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return nil
}

// walk resolves the parent container of a dotted path and the final
// segment. With create set, missing intermediate mappings are created.
func (d Document) walk(path string, create bool) (any, string, error) {
	segs := strings.Split(path, ".")
	if len(segs) == 0 || path == "" {
		return nil, "", fmt.Errorf("%w: empty path", ErrNotFound)
	}

	var node any = map[string]any(d)
	for _, seg := range segs[:len(segs)-1] {
		switch n := node.(type) {
		case map[string]any:
			next, ok := n[seg]
			if !ok {
				if !create {
					return nil, "", fmt.Errorf("%w: %s", ErrNotFound, path)
				}
				m := map[string]any{}
				n[seg] = m
				node = m
				continue
			}
			node = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, "", fmt.Errorf("%w: %s", ErrBadIndex, path)
			}
			node = n[idx]
		default:
			return nil, "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
	}
	return node, segs[len(segs)-1], nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, bool, string, int, int64, float64, json.Number:
		return true
	default:
		return false
	}
}

// Coerce converts a string value from the wire into its natural type:
// integer first, then float, then the string itself.
func Coerce(s string) any {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
