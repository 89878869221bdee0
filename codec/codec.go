// Package codec defines the keyed-record payload format used on the bus.
// Every payload is a JSON object; commands carry a "command" key, data
// records carry "name"/"value" pairs or an arbitrary object.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

var ErrEncode = errors.New("codec: encode error")

// Record is a decoded keyed JSON object.
type Record map[string]any

// Decode parses raw payload bytes into a Record.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// Marshal serializes any value to JSON, mapping failures onto ErrEncode.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

// Encode serializes the record back to JSON.
func (r Record) Encode() ([]byte, error) {
	return Marshal(r)
}

// Has reports whether the key is present.
func (r Record) Has(key string) bool {
	_, ok := r[key]
	return ok
}

// GetString returns the value as a string, or "" if absent or not a string.
func (r Record) GetString(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// GetFloat returns the value as float64. JSON numbers decode as float64,
// but ints stored programmatically are handled too.
func (r Record) GetFloat(key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// GetBool returns the value as a bool, or false if absent.
func (r Record) GetBool(key string) bool {
	v, _ := r[key].(bool)
	return v
}

// GetRecord returns a nested object as a Record.
func (r Record) GetRecord(key string) (Record, bool) {
	if v, ok := r[key].(map[string]any); ok {
		return Record(v), true
	}
	return nil, false
}

// DecodeInto maps the record onto a struct with weak typing, so "5" fills
// an int field and numbers fill strings the way handlers expect.
func (r Record) DecodeInto(target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(r))
}
