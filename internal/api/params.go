package api

import (
	"net/url"
	"sort"
	"strings"
)

// reserved query string keys are request controls, not filter parameters.
var reserved = map[string]bool{
	"page":     true,
	"per_page": true,
	"record":   true,
	"id":       true,
	"dir":      true,

	"letter":       true,
	"need_letters": true,
}

// ParseParams turns a permalink query string into a raw parameter mapping.
// "a[b]=v" nests, "a[]=1&a[]=2" builds a list and a repeated plain key
// becomes a list too. Values are never split on commas.
func ParseParams(values url.Values) map[string]any {
	raw := map[string]any{}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path, list, ok := splitKey(key)
		if !ok || reserved[path[0]] {
			continue
		}
		vals := values[key]
		var value any
		switch {
		case list:
			items := make([]any, len(vals))
			for i, v := range vals {
				items[i] = v
			}
			value = items
		case len(vals) == 1:
			value = vals[0]
		default:
			items := make([]any, len(vals))
			for i, v := range vals {
				items[i] = v
			}
			value = items
		}
		assign(raw, path, value)
	}
	return raw
}

// splitKey parses "a[b][c][]" into [a b c] with list set.
func splitKey(key string) (path []string, list bool, ok bool) {
	head, rest, _ := strings.Cut(key, "[")
	if head == "" {
		return nil, false, false
	}
	path = []string{head}
	if rest == "" {
		return path, false, true
	}
	rest = "[" + rest
	for rest != "" {
		if rest[0] != '[' {
			return nil, false, false
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, false, false
		}
		seg := rest[1:end]
		rest = rest[end+1:]
		if seg == "" {
			if rest != "" {
				return nil, false, false
			}
			return path, true, true
		}
		path = append(path, seg)
	}
	return path, false, true
}

func assign(m map[string]any, path []string, value any) {
	for _, seg := range path[:len(path)-1] {
		next, ok := m[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}
