package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type matrixMeta struct {
	Units string `json:"units"`
	Study string `json:"study"`
}

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}

	_, ok := ByName("msgpack")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	in := matrixMeta{Units: "TPM", Study: "pilot"}

	a := MustMarshal(JSON{}, in)
	b := MustMarshal(GoJSON{}, in)
	assert.JSONEq(t, string(a), string(b))

	var out matrixMeta
	require.NoError(t, GoJSON{}.Unmarshal(a, &out))
	assert.Equal(t, in, out)
}

func TestGoJSONAppend(t *testing.T) {
	dst := []byte("meta:")
	dst, err := GoJSON{}.Append(dst, map[string]int{"rows": 3})
	require.NoError(t, err)
	assert.Equal(t, `meta:{"rows":3}`, string(dst))
}
