package transcript

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "transcripts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RecordAndList(t *testing.T) {
	store := testStore(t)
	spec := backends.ModelSpec{Name: "m1", Backend: "openai"}

	id, err := store.Record(context.Background(), spec, backends.Completion{
		Prompt:   map[string]any{"model": "m1"},
		Response: map[string]any{"id": "chatcmpl-1"},
		Text:     "hello",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	interactions, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, id, interactions[0].ID)
	assert.Equal(t, "m1", interactions[0].Model)
	assert.Equal(t, "openai", interactions[0].Backend)
	assert.Equal(t, "hello", interactions[0].Text)
	assert.JSONEq(t, `{"id": "chatcmpl-1"}`, interactions[0].Response)
}

func TestSQLiteStore_NilPayloadsBecomeEmptyObjects(t *testing.T) {
	store := testStore(t)
	_, err := store.Record(context.Background(), backends.ModelSpec{Name: "m", Backend: "b"}, backends.Completion{Text: "t"})
	require.NoError(t, err)

	interactions, err := store.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.JSONEq(t, `{}`, interactions[0].Prompt)
}

func TestSQLiteStore_EmptyDSN(t *testing.T) {
	_, err := NewSQLiteStore("")
	require.Error(t, err)
}
