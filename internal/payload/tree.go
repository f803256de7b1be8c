// Package payload normalizes webhook payloads from the messaging gateway.
//
// Gateways push several structurally different envelope shapes, all of them
// riddled with optional fields. Payloads are therefore modeled as a generic
// decoded-JSON tree and field lookup is an ordered chain of candidate paths
// returning the first non-empty hit, rather than typed structs per shape.
// Only the normalized output is typed.
package payload

import (
	"strconv"
	"strings"
)

// Tree is a generic decoded JSON object.
type Tree map[string]any

// asTree converts a decoded JSON value to a Tree when it is an object.
func asTree(v any) (Tree, bool) {
	switch m := v.(type) {
	case Tree:
		return m, true
	case map[string]any:
		return Tree(m), true
	}
	return nil, false
}

// asList converts a decoded JSON value to a slice when it is an array.
func asList(v any) ([]any, bool) {
	l, ok := v.([]any)
	return l, ok
}

// Get walks a dot-separated key path and returns the value, or nil when any
// segment is missing.
func (t Tree) Get(path string) any {
	if t == nil {
		return nil
	}
	keys := strings.Split(path, ".")
	var cur any = t
	for _, k := range keys {
		m, ok := asTree(cur)
		if !ok {
			return nil
		}
		cur, ok = m[k]
		if !ok {
			return nil
		}
	}
	return cur
}

// Str returns the value at path rendered as a string. Numbers are rendered
// without an exponent, matching how providers interchange numeric ids.
// Missing values, empty strings, and non-scalar values all yield "".
func (t Tree) Str(path string) string {
	return scalarString(t.Get(path))
}

// First returns the first non-empty string among the given candidate paths.
func (t Tree) First(paths ...string) string {
	for _, p := range paths {
		if s := t.Str(p); s != "" {
			return s
		}
	}
	return ""
}

// Map returns the object at path, or nil.
func (t Tree) Map(path string) Tree {
	m, _ := asTree(t.Get(path))
	return m
}

// List returns the array at path, or nil.
func (t Tree) List(path string) []any {
	l, _ := asList(t.Get(path))
	return l
}

// Int returns the value at path as an int64, accepting JSON numbers and
// numeric strings. Returns 0 when absent or unparseable.
func (t Tree) Int(path string) int64 {
	switch v := t.Get(path).(type) {
	case float64:
		return int64(v)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}

// scalarString renders a scalar JSON value as a string, or "".
func scalarString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		if s {
			return "true"
		}
		return "false"
	}
	return ""
}

// truthy interprets a decoded JSON value as a boolean flag the way loosely
// typed providers send them: true, nonzero numbers, "true"/"1".
func truthy(v any) (val, present bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no", "":
			return false, true
		}
	}
	return false, false
}
