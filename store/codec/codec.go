package codec

import (
	"io"
)

// DocumentCodec serializes a whole store as a single document.
type DocumentCodec[K comparable, V any] interface {
	Encode(w io.Writer, entries map[K]V) error
	Decode(r io.Reader) (map[K]V, error)
}

// EntryCodec serializes a single key/value pair.
type EntryCodec[K comparable, V any] interface {
	EncodeEntry(w io.Writer, key K, value V) error
	DecodeEntry(r io.Reader) (K, V, error)
}

// entry is the on-disk shape of a key/value pair for the default codecs.
type entry[K comparable, V any] struct {
	Key   K `json:"key" yaml:"key" toml:"key"`
	Value V `json:"value" yaml:"value" toml:"value"`
}

// document wraps the entries in a struct, since some formats (TOML) can't
// have a list at the top level, and others (JSON) only support string map keys.
type document[K comparable, V any] struct {
	Entries []entry[K, V] `json:"entries" yaml:"entries" toml:"entries"`
}

// ForDocument returns the default DocumentCodec for the given format.
func ForDocument[K comparable, V any](f Format) DocumentCodec[K, V] {
	return documentCodec[K, V]{format: f}
}

type documentCodec[K comparable, V any] struct {
	format Format
}

func (c documentCodec[K, V]) Encode(w io.Writer, entries map[K]V) error {
	doc := document[K, V]{Entries: make([]entry[K, V], 0, len(entries))}
	for k, v := range entries {
		doc.Entries = append(doc.Entries, entry[K, V]{Key: k, Value: v})
	}

	data, err := c.format.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = w.Write(data)

	return err
}

func (c documentCodec[K, V]) Decode(r io.Reader) (map[K]V, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc document[K, V]
	if err = c.format.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	entries := make(map[K]V, len(doc.Entries))
	for _, e := range doc.Entries {
		entries[e.Key] = e.Value
	}

	return entries, nil
}

// ForEntry returns the default EntryCodec for the given format.
func ForEntry[K comparable, V any](f Format) EntryCodec[K, V] {
	return entryCodec[K, V]{format: f}
}

type entryCodec[K comparable, V any] struct {
	format Format
}

func (c entryCodec[K, V]) EncodeEntry(w io.Writer, key K, value V) error {
	data, err := c.format.Marshal(entry[K, V]{Key: key, Value: value})
	if err != nil {
		return err
	}
	_, err = w.Write(data)

	return err
}

func (c entryCodec[K, V]) DecodeEntry(r io.Reader) (key K, value V, err error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return key, value, err
	}

	var e entry[K, V]
	if err = c.format.Unmarshal(data, &e); err != nil {
		return key, value, err
	}

	return e.Key, e.Value, nil
}

// DocumentFuncs adapts plain functions to a DocumentCodec, for stores with a
// custom layout.
type DocumentFuncs[K comparable, V any] struct {
	EncodeFunc func(w io.Writer, entries map[K]V) error
	DecodeFunc func(r io.Reader) (map[K]V, error)
}

var _ DocumentCodec[string, any] = DocumentFuncs[string, any]{}

func (f DocumentFuncs[K, V]) Encode(w io.Writer, entries map[K]V) error {
	return f.EncodeFunc(w, entries)
}

func (f DocumentFuncs[K, V]) Decode(r io.Reader) (map[K]V, error) {
	return f.DecodeFunc(r)
}

// EntryFuncs adapts plain functions to an EntryCodec.
type EntryFuncs[K comparable, V any] struct {
	EncodeFunc func(w io.Writer, key K, value V) error
	DecodeFunc func(r io.Reader) (K, V, error)
}

var _ EntryCodec[string, any] = EntryFuncs[string, any]{}

func (f EntryFuncs[K, V]) EncodeEntry(w io.Writer, key K, value V) error {
	return f.EncodeFunc(w, key, value)
}

func (f EntryFuncs[K, V]) DecodeEntry(r io.Reader) (K, V, error) {
	return f.DecodeFunc(r)
}
