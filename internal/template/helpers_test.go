package template

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultHelperPrefersFirstNonNullArg(t *testing.T) {
	v, err := defaultHelper([]any{nil, "fallback"})
	require.NoError(t, err)
	require.Equal(t, "fallback", v)

	v, err = defaultHelper([]any{"value", "fallback"})
	require.NoError(t, err)
	require.Equal(t, "value", v)
}

func TestStringifyHelperProducesJSON(t *testing.T) {
	v, err := stringifyHelper([]any{map[string]any{"a": int64(1)}})
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, v.(string))
}

func TestEntriesHelperOverArray(t *testing.T) {
	v, err := entriesHelper([]any{[]any{"a", "b"}})
	require.NoError(t, err)

	entries := v.([]map[string]any)
	require.Len(t, entries, 2)
	require.Equal(t, 0, entries[0]["key"])
	require.Equal(t, "a", entries[0]["value"])
	require.Equal(t, 1, entries[1]["key"])
	require.Equal(t, "b", entries[1]["value"])
}

func TestEntriesHelperOverEntryLister(t *testing.T) {
	lister := fakeEntryLister{{Key: "x", Value: int64(1)}, {Key: "y", Value: int64(2)}}
	v, err := entriesHelper([]any{lister})
	require.NoError(t, err)

	entries := v.([]map[string]any)
	require.Equal(t, "x", entries[0]["key"])
	require.Equal(t, "y", entries[1]["key"])
}

type fakeEntryLister []Entry

func (f fakeEntryLister) Entries() []Entry { return f }
