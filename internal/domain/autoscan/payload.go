package autoscan

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Payload is an opaque key-value document used for settings, progress and phase
// results. Its structure is validated by the collaborator that owns it.
type Payload map[string]any

// Clone returns a deep copy of p by round-tripping through JSON, which also
// normalises values to the shapes a store would hand back.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return maps.Clone(p)
	}
	var out Payload
	if err := json.Unmarshal(raw, &out); err != nil {
		return maps.Clone(p)
	}
	return out
}

// Merge returns a copy of p with every key of overlay applied on top.
func (p Payload) Merge(overlay Payload) Payload {
	out := make(Payload, len(p)+len(overlay))
	maps.Copy(out, p)
	maps.Copy(out, overlay)
	return out
}

// GetString returns the string stored under key, or def.
func (p Payload) GetString(key, def string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

// GetBool returns the bool stored under key, or def.
func (p Payload) GetBool(key string, def bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

// GetInt returns the integer stored under key, accepting the numeric types JSON
// decoding and Go callers produce.
func (p Payload) GetInt(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// GetStrings returns the string list stored under key. Both []string and the
// []any produced by JSON decoding are accepted.
func (p Payload) GetStrings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// GetObjects returns the list of nested documents stored under key.
func (p Payload) GetObjects(key string) []Payload {
	switch v := p[key].(type) {
	case []Payload:
		return v
	case []map[string]any:
		out := make([]Payload, len(v))
		for i, m := range v {
			out[i] = Payload(m)
		}
		return out
	case []any:
		out := make([]Payload, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, Payload(m))
			}
		}
		return out
	}
	return nil
}

// DecodeInto unmarshals p into dst, which is typically a collaborator's typed
// configuration struct.
func (p Payload) DecodeInto(dst any) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
