package bigcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{LifeWindow: time.Minute, MaxEntriesInWindow: 1024, MaxEntrySize: 256})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestProvider_GetSetDel(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	_, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "k", []byte("v"), 1, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, p.Len())

	b, ok, err := p.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)

	require.NoError(t, p.Del(ctx, "k"))
	require.NoError(t, p.Del(ctx, "k"), "deleting a missing key is not an error")
	_, ok, _ = p.Get(ctx, "k")
	assert.False(t, ok)
}

func TestProvider_RejectsTTLShorterThanLifeWindow(t *testing.T) {
	ctx := context.Background()
	p := newProvider(t)

	ok, err := p.Set(ctx, "short", []byte("v"), 0, time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
	_, hit, _ := p.Get(ctx, "short")
	assert.False(t, hit)

	ok, err = p.Set(ctx, "forever", []byte("v"), 0, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_RejectsZeroLifeWindow(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoLifeWindow)
}
