package secret

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromBytesZeroesSource(t *testing.T) {
	source := []byte("super secret seed material")
	want := string(source)

	buffer, err := NewFromBytes(source)
	require.NoError(t, err)
	t.Cleanup(func() { buffer.Close() })

	assert.Equal(t, want, string(buffer.Bytes()))
	assert.Equal(t, len(want), buffer.Len())
	for i, b := range source {
		require.Zerof(t, b, "source byte %d not zeroed", i)
	}
}

func TestNewFromBytesEmpty(t *testing.T) {
	_, err := NewFromBytes(nil)
	require.Error(t, err)
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	_, err = New(-4)
	require.Error(t, err)
}

func TestNewSurvivesMissingDontDump(t *testing.T) {
	old := madvise
	madvise = func([]byte, int) error { return errors.New("einval") }
	t.Cleanup(func() { madvise = old })

	buffer, err := NewFromBytes([]byte("seed"))
	require.NoError(t, err)
	t.Cleanup(func() { buffer.Close() })
	assert.Equal(t, "seed", string(buffer.Bytes()))
}

func TestCloseIsIdempotentAndBlocksAccess(t *testing.T) {
	buffer, err := NewFromBytes([]byte{1, 2, 3})
	require.NoError(t, err)

	require.NoError(t, buffer.Close())
	require.NoError(t, buffer.Close())
	assert.True(t, buffer.Closed())
	assert.Panics(t, func() { buffer.Bytes() })
}

func TestWipe(t *testing.T) {
	b := []byte{9, 9, 9}
	Wipe(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}
