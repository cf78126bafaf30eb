package codec

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.hackfix.me/stash/crypto"
)

type profile struct {
	Name  string   `json:"name" yaml:"name" toml:"name"`
	Level int      `json:"level" yaml:"level" toml:"level"`
	Tags  []string `json:"tags" yaml:"tags" toml:"tags"`
}

func TestDocumentCodec(t *testing.T) {
	t.Parallel()

	entries := map[string]profile{
		"alice": {Name: "Alice", Level: 3, Tags: []string{"admin"}},
		"bob":   {Name: "Bob", Level: 1, Tags: []string{"guest", "new"}},
	}

	for _, f := range []Format{Gob, JSON, YAML, TOML} {
		f := f
		t.Run(f.Name(), func(t *testing.T) {
			t.Parallel()

			c := ForDocument[string, profile](f)
			var buf bytes.Buffer
			require.NoError(t, c.Encode(&buf, entries))

			got, err := c.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, entries, got)
		})
	}
}

func TestEntryCodec(t *testing.T) {
	t.Parallel()

	for _, f := range []Format{Gob, JSON, YAML, TOML} {
		f := f
		t.Run(f.Name(), func(t *testing.T) {
			t.Parallel()

			c := ForEntry[int, profile](f)
			var buf bytes.Buffer
			want := profile{Name: "Carol", Level: 7, Tags: []string{"x"}}
			require.NoError(t, c.EncodeEntry(&buf, 42, want))

			key, value, err := c.DecodeEntry(&buf)
			require.NoError(t, err)
			assert.Equal(t, 42, key)
			assert.Equal(t, want, value)
		})
	}
}

func TestEntryCodecNilValue(t *testing.T) {
	t.Parallel()

	c := ForEntry[string, *profile](JSON)
	var buf bytes.Buffer
	require.NoError(t, c.EncodeEntry(&buf, "ghost", nil))
	assert.JSONEq(t, `{"key":"ghost","value":null}`, buf.String())

	key, value, err := c.DecodeEntry(&buf)
	require.NoError(t, err)
	assert.Equal(t, "ghost", key)
	assert.Nil(t, value)
}

func TestSealed(t *testing.T) {
	t.Parallel()

	key, err := crypto.NewKey()
	require.NoError(t, err)

	f := Sealed(JSON, key)
	assert.Equal(t, "json+sealed", f.Name())

	data, err := f.Marshal(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"a"`)

	var got map[string]int
	require.NoError(t, f.Unmarshal(data, &got))
	assert.Equal(t, map[string]int{"a": 1}, got)

	otherKey, err := crypto.NewKey()
	require.NoError(t, err)
	err = Sealed(JSON, otherKey).Unmarshal(data, &got)
	assert.ErrorIs(t, err, crypto.ErrDecrypt)
}

func TestFormatByName(t *testing.T) {
	t.Parallel()

	f, err := FormatByName("YAML")
	require.NoError(t, err)
	assert.Equal(t, YAML, f)

	_, err = FormatByName("xml")
	assert.EqualError(t, err, "unknown format 'xml'; expected one of gob, json, toml, yaml")
}

func TestFuncs(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	dc := DocumentFuncs[string, int]{
		EncodeFunc: func(w io.Writer, entries map[string]int) error { return errBoom },
		DecodeFunc: func(r io.Reader) (map[string]int, error) {
			return map[string]int{"one": 1}, nil
		},
	}
	assert.ErrorIs(t, dc.Encode(io.Discard, nil), errBoom)
	got, err := dc.Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"one": 1}, got)

	ec := EntryFuncs[string, int]{
		EncodeFunc: func(w io.Writer, key string, value int) error {
			_, err := io.WriteString(w, key)
			return err
		},
		DecodeFunc: func(r io.Reader) (string, int, error) { return "k", 2, nil },
	}
	var buf bytes.Buffer
	require.NoError(t, ec.EncodeEntry(&buf, "key", 1))
	assert.Equal(t, "key", buf.String())
	k, v, err := ec.DecodeEntry(&buf)
	require.NoError(t, err)
	assert.Equal(t, "k", k)
	assert.Equal(t, 2, v)
}
