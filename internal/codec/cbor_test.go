package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": "a", "mid": []int{1, 2}}

	first, err := Marshal(value)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestUnmarshalAnyUsesStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"nested": map[string]any{"k": "v"}})
	require.NoError(t, err)

	var decoded any
	require.NoError(t, Unmarshal(data, &decoded))

	top, ok := decoded.(map[string]any)
	require.True(t, ok, "top level decoded as %T", decoded)
	nested, ok := top["nested"].(map[string]any)
	require.True(t, ok, "nested decoded as %T", top["nested"])
	assert.Equal(t, "v", nested["k"])
}

func TestRawMessageDefersDecoding(t *testing.T) {
	type frame struct {
		Type string     `cbor:"type"`
		Data RawMessage `cbor:"data"`
	}

	inner, err := Marshal([]string{"a", "b"})
	require.NoError(t, err)

	outer, err := Marshal(frame{Type: "x", Data: inner})
	require.NoError(t, err)

	var got frame
	require.NoError(t, Unmarshal(outer, &got))
	assert.Equal(t, "x", got.Type)

	var list []string
	require.NoError(t, Unmarshal(got.Data, &list))
	assert.Equal(t, []string{"a", "b"}, list)
}
