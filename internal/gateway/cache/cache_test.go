package cache

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutMatchRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	part := store.Partition("telos-static-v1")

	want := &StoredResponse{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:   []byte("<!doctype html><title>shell</title>"),
	}
	require.NoError(t, part.Put("/", want))

	got, err := part.Match("/")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Header, got.Header)
	assert.Equal(t, want.Body, got.Body)
}

func TestMatchAbsentKey(t *testing.T) {
	store := NewStore(t.TempDir())
	part := store.Partition("telos-dynamic-v1")

	got, err := part.Match("/never-stored")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestPutReplaces(t *testing.T) {
	store := NewStore(t.TempDir())
	part := store.Partition("telos-dynamic-v1")

	require.NoError(t, part.Put("/a", &StoredResponse{Status: 200, Body: []byte("old")}))
	require.NoError(t, part.Put("/a", &StoredResponse{Status: 200, Body: []byte("new")}))

	got, err := part.Match("/a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []byte("new"), got.Body)
}

func TestPartitionsAreIsolated(t *testing.T) {
	store := NewStore(t.TempDir())
	a := store.Partition("telos-static-v1")
	b := store.Partition("telos-static-v2")

	require.NoError(t, a.Put("/", &StoredResponse{Status: 200, Body: []byte("v1")}))

	got, err := b.Match("/")
	require.NoError(t, err)
	assert.Nil(t, got, "a key in one partition must not be visible from another")
}

func TestListAndDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	require.NoError(t, store.Partition("telos-static-v1").Put("/", &StoredResponse{Status: 200}))
	require.NoError(t, store.Partition("telos-dynamic-v1").Put("/a", &StoredResponse{Status: 200}))

	names, err := store.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"telos-static-v1", "telos-dynamic-v1"}, names)

	require.NoError(t, store.Delete("telos-static-v1"))

	names, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"telos-dynamic-v1"}, names)
}

func TestListMissingBaseDir(t *testing.T) {
	store := NewStore(t.TempDir() + "/never-created")

	names, err := store.List()
	require.NoError(t, err)
	assert.Nil(t, names)
}
