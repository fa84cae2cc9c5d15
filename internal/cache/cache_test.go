package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJSON(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	var got struct{ Version string }
	ok, err := GetJSON(ctx, c, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, SetJSON(ctx, c, "k", map[string]string{"Version": "v1"}))
	ok, err = GetJSON(ctx, c, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v1", got.Version)

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value))
	value[0] = 'x'

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(got))
}

func TestGetJSONRejectsGarbage(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	require.NoError(t, c.Set(ctx, "k", []byte("{")))

	var v map[string]any
	_, err := GetJSON(ctx, c, "k", &v)
	assert.ErrorContains(t, err, "decode cache key k")
}
