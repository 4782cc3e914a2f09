package imagecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	return s
}

func TestPathForUsesLastSegment(t *testing.T) {
	s := newStore(t)

	p, err := s.PathFor("https://farm1.staticflickr.com/123/456_abc_c.jpg?zz=1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Dir(), "456_abc_c.jpg"), p)

	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err), "PathFor must not create the file")
}

func TestPathForRejectsURLWithoutName(t *testing.T) {
	s := newStore(t)

	for _, u := range []string{"", "https://example.com/", "https://example.com", "https://example.com/a/.."} {
		_, err := s.PathFor(u)
		assert.ErrorIs(t, err, ErrInvalidURL, u)
	}
}

func TestWriteThenRead(t *testing.T) {
	s := newStore(t)
	u := "https://example.com/p/1.jpg"

	_, ok, err := s.Read(u)
	require.NoError(t, err)
	assert.False(t, ok)

	path, err := s.Write(u, []byte("jpeg bytes"))
	require.NoError(t, err)

	data, ok, err := s.Read(u)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("jpeg bytes"), data)

	onDisk, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)
}

func TestWriteOverwrites(t *testing.T) {
	s := newStore(t)
	u := "https://example.com/p/1.jpg"

	_, err := s.Write(u, []byte("first"))
	require.NoError(t, err)
	_, err = s.Write(u, []byte("second"))
	require.NoError(t, err)

	data, ok, err := s.Read(u)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), data)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newStore(t)
	u := "https://example.com/p/1.jpg"

	_, err := s.Write(u, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(u))
	require.NoError(t, s.Delete(u))

	_, ok, err := s.Read(u)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSameURLSharesFile(t *testing.T) {
	s := newStore(t)
	a := "https://farm1.staticflickr.com/1/42_secret_c.jpg"
	b := "https://farm1.staticflickr.com/1/42_secret_c.jpg"

	pa, err := s.PathFor(a)
	require.NoError(t, err)
	pb, err := s.PathFor(b)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)

	_, err = s.Write(a, []byte("shared"))
	require.NoError(t, err)

	data, ok, err := s.Read(b)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("shared"), data)
}
