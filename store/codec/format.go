// Package codec provides the serialization strategies used by store backends.
//
// A Format turns single Go values into bytes. Backends that persist the whole
// store as one document use a DocumentCodec, and backends that persist each
// entry separately use an EntryCodec. Both come in a default, Format driven
// flavor (ForDocument, ForEntry), and can be replaced by any custom
// implementation chosen when the backend is constructed.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"go.hackfix.me/stash/crypto"
)

// Format marshals and unmarshals single values.
type Format interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Available formats. Gob is the default.
var (
	Gob  Format = gobFormat{}
	JSON Format = jsonFormat{}
	YAML Format = yamlFormat{}
	TOML Format = tomlFormat{}
)

var formats = map[string]Format{
	Gob.Name():  Gob,
	JSON.Name(): JSON,
	YAML.Name(): YAML,
	TOML.Name(): TOML,
}

// FormatByName returns the format registered with the given name.
func FormatByName(name string) (Format, error) {
	f, ok := formats[strings.ToLower(name)]
	if !ok {
		names := make([]string, 0, len(formats))
		for n := range formats {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown format '%s'; expected one of %s",
			name, strings.Join(names, ", "))
	}
	return f, nil
}

type gobFormat struct{}

func (gobFormat) Name() string { return "gob" }

func (gobFormat) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobFormat) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

type jsonFormat struct{}

func (jsonFormat) Name() string                       { return "json" }
func (jsonFormat) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonFormat) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type yamlFormat struct{}

func (yamlFormat) Name() string                       { return "yaml" }
func (yamlFormat) Marshal(v any) ([]byte, error)      { return yaml.Marshal(v) }
func (yamlFormat) Unmarshal(data []byte, v any) error { return yaml.Unmarshal(data, v) }

type tomlFormat struct{}

func (tomlFormat) Name() string                       { return "toml" }
func (tomlFormat) Marshal(v any) ([]byte, error)      { return toml.Marshal(v) }
func (tomlFormat) Unmarshal(data []byte, v any) error { return toml.Unmarshal(data, v) }

// Sealed wraps f so that marshaled data is encrypted with secretKey, and
// decrypted before unmarshaling.
func Sealed(f Format, secretKey *[crypto.KeySize]byte) Format {
	return sealedFormat{inner: f, key: secretKey}
}

type sealedFormat struct {
	inner Format
	key   *[crypto.KeySize]byte
}

func (s sealedFormat) Name() string { return s.inner.Name() + "+sealed" }

func (s sealedFormat) Marshal(v any) ([]byte, error) {
	data, err := s.inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	return crypto.Seal(data, s.key)
}

func (s sealedFormat) Unmarshal(data []byte, v any) error {
	plain, err := crypto.Open(data, s.key)
	if err != nil {
		return err
	}
	return s.inner.Unmarshal(plain, v)
}
