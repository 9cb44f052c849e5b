package store

import (
	"fmt"
	"sort"

	"github.com/eldtechnologies/roomlog/internal/normalize"
)

// Register is a CRDT register that yields its current value on Read.
type Register interface {
	Read() (any, error)
}

// extractor looks up field in a record using one representation.
type extractor struct {
	name string
	find func(rec map[string]any, field string) (any, bool)
}

// extractors are tried in order until one finds the field. Client versions
// encode composite CRDT maps differently, so each strategy covers one
// observed encoding.
var extractors = []extractor{
	{"top-level", fromTopLevel},
	{"nested-value", fromNestedValue},
	{"register", fromRegister},
	{"registers", fromRegisters},
	{"scan", fromScan},
}

// Extract returns the value of field in rec, or ErrFieldNotFound.
// rec may be any map representation or a flat key/value list.
func Extract(rec any, field string) (any, error) {
	m, ok := asObject(rec, true)
	if !ok {
		return nil, fmt.Errorf("%w: %q in %T", ErrFieldNotFound, field, rec)
	}
	for _, ex := range extractors {
		if v, ok := ex.find(m, field); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, field)
}

func fromTopLevel(rec map[string]any, field string) (any, bool) {
	v, ok := rec[field]
	if !ok || v == nil || isComposite(v) {
		return nil, false
	}
	return v, true
}

func fromNestedValue(rec map[string]any, field string) (any, bool) {
	inner, ok := asObject(rec[field], false)
	if !ok {
		return nil, false
	}
	return scalar(inner["value"])
}

func fromRegister(rec map[string]any, field string) (any, bool) {
	r, ok := rec[field].(Register)
	if !ok {
		return nil, false
	}
	v, err := r.Read()
	if err != nil {
		return nil, false
	}
	return scalar(v)
}

func fromRegisters(rec map[string]any, field string) (any, bool) {
	regs, ok := asObject(rec["registers"], false)
	if !ok {
		return nil, false
	}
	r, ok := regs[field]
	if !ok || r == nil {
		return nil, false
	}
	if inner, ok := asObject(r, false); ok {
		return scalar(inner["value"])
	}
	if reg, ok := r.(Register); ok {
		v, err := reg.Read()
		if err != nil {
			return nil, false
		}
		return scalar(v)
	}
	return scalar(r)
}

// fromScan looks one level down for an object carrying field, or for a
// {key: field, value: v} entry.
func fromScan(rec map[string]any, field string) (any, bool) {
	for _, k := range sortedKeys(rec) {
		candidates := []any{rec[k]}
		if seq, ok := asSequence(rec[k]); ok {
			candidates = seq
		}
		for _, c := range candidates {
			inner, ok := asObject(c, false)
			if !ok {
				continue
			}
			if v, ok := inner[field]; ok && v != nil {
				if nested, ok := asObject(v, false); ok {
					if val, ok := scalar(nested["value"]); ok {
						return val, true
					}
					continue
				}
				return v, true
			}
			if key, ok := inner["key"]; ok && normalize.String(key) == field {
				if val, ok := scalar(inner["value"]); ok {
					return val, true
				}
			}
		}
	}
	return nil, false
}

func scalar(v any) (any, bool) {
	if v == nil || isComposite(v) {
		return nil, false
	}
	return v, true
}

func isComposite(v any) bool {
	if _, ok := v.(Register); ok {
		return true
	}
	if _, ok := asObject(v, false); ok {
		return true
	}
	_, ok := asSequence(v)
	return ok
}

// asObject converts the map representations produced by JSON decoding and
// by RESP2/RESP3 replies into map[string]any. Flat key/value lists (RESP2
// HGETALL) are only accepted when allowPairs is set.
func asObject(v any, allowPairs bool) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[normalize.String(k)] = val
		}
		return out, true
	case []any:
		if !allowPairs || len(t) == 0 || len(t)%2 != 0 {
			return nil, false
		}
		out := make(map[string]any, len(t)/2)
		for i := 0; i < len(t); i += 2 {
			k, ok := t[i].(string)
			if !ok {
				return nil, false
			}
			out[k] = t[i+1]
		}
		return out, true
	default:
		return nil, false
	}
}

func asSequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// extractIDs decodes the identifier set of a room from the reply shapes
// seen across client versions: a bare sequence, an object with a keys, key
// or rows sequence, a nested payload.items sequence, or, last, the first
// field of the object holding a sequence. A nil reply is an empty set.
func extractIDs(raw any) ([]string, error) {
	if raw == nil {
		return nil, nil
	}
	if seq, ok := asSequence(raw); ok {
		return idStrings(seq), nil
	}
	obj, ok := asObject(raw, false)
	if !ok {
		return nil, fmt.Errorf("%w: id set reply of type %T", ErrAdapterIncompatibility, raw)
	}
	for _, k := range []string{"keys", "key", "rows"} {
		if seq, ok := asSequence(obj[k]); ok {
			return idStrings(seq), nil
		}
	}
	if payload, ok := asObject(obj["payload"], false); ok {
		if seq, ok := asSequence(payload["items"]); ok {
			return idStrings(seq), nil
		}
	}
	for _, k := range sortedKeys(obj) {
		if seq, ok := asSequence(obj[k]); ok {
			return idStrings(seq), nil
		}
	}
	return nil, fmt.Errorf("%w: id set object without a sequence field", ErrAdapterIncompatibility)
}

func idStrings(seq []any) []string {
	ids := make([]string, 0, len(seq))
	for _, v := range seq {
		if id := normalize.String(v); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
