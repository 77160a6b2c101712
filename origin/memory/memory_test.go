package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/edgekv/origin"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestStore_PutGetWithMetadata(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.Put(ctx, "a", strings.NewReader("hello"), origin.PutOptions{Metadata: []byte(`{"v":1}`)}))

	body, err := s.Get(ctx, "a", origin.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, body))

	obj, err := s.GetWithMetadata(ctx, "a", origin.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, obj.Body))
	assert.JSONEq(t, `{"v":1}`, string(obj.Metadata))
}

func TestStore_MissingKey(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	_, err := s.Get(ctx, "nope", origin.GetOptions{})
	assert.ErrorIs(t, err, origin.ErrNotFound)
	_, err = s.GetWithMetadata(ctx, "nope", origin.GetOptions{})
	assert.ErrorIs(t, err, origin.ErrNotFound)
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	require.NoError(t, s.Put(ctx, "a", strings.NewReader("x"), origin.PutOptions{}))

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Delete(ctx, "a"))
	}
	_, err := s.Get(ctx, "a", origin.GetOptions{})
	assert.ErrorIs(t, err, origin.ErrNotFound)
}

func TestStore_Expiration(t *testing.T) {
	ctx := context.Background()
	s := New(0)

	require.NoError(t, s.Put(ctx, "past", strings.NewReader("x"), origin.PutOptions{Expiration: time.Now().Add(-time.Second)}))
	_, err := s.Get(ctx, "past", origin.GetOptions{})
	assert.ErrorIs(t, err, origin.ErrNotFound)

	require.NoError(t, s.Put(ctx, "short", strings.NewReader("x"), origin.PutOptions{ExpirationTTL: 20 * time.Millisecond}))
	_, err = s.Get(ctx, "short", origin.GetOptions{})
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = s.Get(ctx, "short", origin.GetOptions{})
	assert.ErrorIs(t, err, origin.ErrNotFound)
}

func TestStore_ListPaginates(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	for _, k := range []string{"user:3", "user:1", "team:1", "user:2", "user:4"} {
		require.NoError(t, s.Put(ctx, k, strings.NewReader(k), origin.PutOptions{Metadata: []byte(`"` + k + `"`)}))
	}

	page, err := s.List(ctx, origin.ListOptions{Prefix: "user:", Limit: 3})
	require.NoError(t, err)
	assert.False(t, page.Complete)
	require.Len(t, page.Keys, 3)
	assert.Equal(t, "user:1", page.Keys[0].Name)
	assert.Equal(t, `"user:1"`, string(page.Keys[0].Metadata))
	assert.NotEmpty(t, page.Cursor)

	next, err := s.List(ctx, origin.ListOptions{Prefix: "user:", Limit: 3, Cursor: page.Cursor})
	require.NoError(t, err)
	assert.True(t, next.Complete)
	assert.Empty(t, next.Cursor)
	require.Len(t, next.Keys, 1)
	assert.Equal(t, "user:4", next.Keys[0].Name)
}

func TestStore_ListRejectsBadCursor(t *testing.T) {
	_, err := New(0).List(context.Background(), origin.ListOptions{Cursor: "%%%"})
	assert.Error(t, err)
}
