package api

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	values, err := url.ParseQuery("by_user=alice&names[]=1&names[]=2&in_box[north]=35&in_box[south]=34" +
		"&name_query[rank][]=Species&date=2024,2025&page=2&record=9&notes_has=a&notes_has=b")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"by_user": "alice",
		"names":   []any{"1", "2"},
		"in_box":  map[string]any{"north": "35", "south": "34"},
		"name_query": map[string]any{
			"rank": []any{"Species"},
		},
		"date":      "2024,2025",
		"notes_has": []any{"a", "b"},
	}, ParseParams(values))
}

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key  string
		path []string
		list bool
		ok   bool
	}{
		{"a", []string{"a"}, false, true},
		{"a[]", []string{"a"}, true, true},
		{"a[b][c]", []string{"a", "b", "c"}, false, true},
		{"a[b][]", []string{"a", "b"}, true, true},
		{"a[]x", nil, false, false},
		{"a[b", nil, false, false},
		{"[b]", nil, false, false},
	}
	for _, tt := range tests {
		path, list, ok := splitKey(tt.key)
		assert.Equal(t, tt.ok, ok, tt.key)
		assert.Equal(t, tt.path, path, tt.key)
		assert.Equal(t, tt.list, list, tt.key)
	}
}
