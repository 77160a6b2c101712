package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// JSON is the default structured codec. The zero value is ready to use.
// Decode rejects trailing data after the first JSON document.
type JSON[V any] struct{}

var _ Codec[any] = JSON[any]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var zero V
		return zero, errors.New("json: trailing data after document")
	}
	return v, nil
}

func (JSON[V]) ContentType() string { return "application/json" }
