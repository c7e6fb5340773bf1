package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordPreservesInsertionOrder(t *testing.T) {
	r := RecordFrom("z", 1, "a", 2, "m", 3)
	assert.Equal(t, []string{"z", "a", "m"}, r.Keys())
	assert.Equal(t, 3, r.Len())
}

func TestRecordSetUpdatesWithoutReordering(t *testing.T) {
	r := RecordFrom("a", 1, "b", 2)
	r.Set("a", 10)

	assert.Equal(t, []string{"a", "b"}, r.Keys())
	v, ok := r.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestRecordGetMissing(t *testing.T) {
	r := RecordFrom("a", 1)
	_, ok := r.Get("b")
	assert.False(t, ok)
}

func TestRecordNilValueIsPresent(t *testing.T) {
	r := RecordFrom("a", nil)
	v, ok := r.Get("a")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestRecordDottedAccess(t *testing.T) {
	inner := RecordFrom("name", "alice")
	r := RecordFrom(
		"author", inner,
		"meta", map[string]any{"site": map[string]any{"lang": "en"}},
	)

	v, ok := r.Get("author.name")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	v, ok = r.Get("meta.site.lang")
	require.True(t, ok)
	assert.Equal(t, "en", v)

	_, ok = r.Get("author.missing")
	assert.False(t, ok)
	_, ok = r.Get("author.name.deeper")
	assert.False(t, ok)
}

func TestRecordMarshalJSONOrder(t *testing.T) {
	r := RecordFrom("z", 1, "a", "two", "nested", map[string]any{"k": true})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"z":1,"a":"two","nested":{"k":true}}`, string(data))
}

func TestRecordMarshalJSONEmpty(t *testing.T) {
	data, err := json.Marshal(NewRecord())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}
