package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaCodec_Inline(t *testing.T) {
	c, err := NewMetaCodec(0)
	require.NoError(t, err)

	inline, packed, err := c.Encode(map[string]any{"reason": "manual"})
	require.NoError(t, err)
	assert.Nil(t, packed)
	assert.JSONEq(t, `{"reason":"manual"}`, string(inline))

	meta, err := c.Decode(inline, packed)
	require.NoError(t, err)
	assert.Equal(t, "manual", meta["reason"])
}

func TestMetaCodec_CompressesLargeMeta(t *testing.T) {
	c, err := NewMetaCodec(64)
	require.NoError(t, err)

	note := strings.Repeat("recount after damage ", 20)
	inline, packed, err := c.Encode(map[string]any{"note": note})
	require.NoError(t, err)
	assert.Nil(t, inline)
	require.NotEmpty(t, packed)
	assert.Less(t, len(packed), len(note))

	meta, err := c.Decode(inline, packed)
	require.NoError(t, err)
	assert.Equal(t, note, meta["note"])
}

func TestMetaCodec_Empty(t *testing.T) {
	c, err := NewMetaCodec(0)
	require.NoError(t, err)

	inline, packed, err := c.Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, inline)
	assert.Nil(t, packed)

	meta, err := c.Decode(nil, nil)
	require.NoError(t, err)
	assert.Nil(t, meta)

	_, err = c.Decode(nil, []byte("not zstd"))
	assert.Error(t, err)
}
