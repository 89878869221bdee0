package settings

// View methods: typed reads with defaults, so call sites coerce once at the
// boundary instead of re-checking JSON types everywhere.

// Subtree returns the mapping under a top-level key, or an empty document.
func (d Document) Subtree(key string) Document {
	if v, ok := d[key].(map[string]any); ok {
		return Document(v)
	}
	return Document{}
}

// String returns the string at path or the default.
func (d Document) String(path, def string) string {
	if v, ok := d.Get(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Float returns the number at path or the default. JSON decodes numbers as
// float64; ints set programmatically are accepted too.
func (d Document) Float(path string, def float64) float64 {
	v, ok := d.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// Int returns the integer at path or the default.
func (d Document) Int(path string, def int) int {
	v, ok := d.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}

// Bool returns the boolean at path or the default.
func (d Document) Bool(path string, def bool) bool {
	if v, ok := d.Get(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}
