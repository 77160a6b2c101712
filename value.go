package edgekv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/unkn0wn-root/edgekv/codec"
)

// Representation selects how a stored payload is materialised for the caller.
type Representation uint8

const (
	Text Representation = iota + 1
	Structured
	Binary
	Stream
)

func (r Representation) String() string {
	switch r {
	case Text:
		return "text"
	case Structured:
		return "structured"
	case Binary:
		return "binary"
	case Stream:
		return "stream"
	default:
		return fmt.Sprintf("Representation(%d)", uint8(r))
	}
}

func (r Representation) valid() bool { return r >= Text && r <= Stream }

// ParseRepresentation accepts the names used by HTTP callers. The empty string is Text.
func ParseRepresentation(s string) (Representation, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return Text, nil
	case "json", "structured":
		return Structured, nil
	case "binary", "arraybuffer", "bytes":
		return Binary, nil
	case "stream":
		return Stream, nil
	}
	return 0, fmt.Errorf("%w: unknown representation %q", ErrInvalidRepresentation, s)
}

// Value is one of text, structured, binary or stream. The zero Value is invalid.
type Value struct {
	rep        Representation
	text       string
	bin        []byte
	stream     io.Reader
	structured any
}

func TextValue(s string) Value      { return Value{rep: Text, text: s} }
func BinaryValue(b []byte) Value    { return Value{rep: Binary, bin: b} }
func StreamValue(r io.Reader) Value { return Value{rep: Stream, stream: r} }
func StructuredValue(v any) Value   { return Value{rep: Structured, structured: v} }

func (v Value) Representation() Representation { return v.rep }

func (v Value) wrong(want Representation) error {
	return fmt.Errorf("%w: value is %s, not %s", ErrInvalidRepresentation, v.rep, want)
}

func (v Value) Text() (string, error) {
	if v.rep != Text {
		return "", v.wrong(Text)
	}
	return v.text, nil
}

func (v Value) Bytes() ([]byte, error) {
	if v.rep != Binary {
		return nil, v.wrong(Binary)
	}
	return v.bin, nil
}

func (v Value) Structured() (any, error) {
	if v.rep != Structured {
		return nil, v.wrong(Structured)
	}
	return v.structured, nil
}

func (v Value) Stream() (io.Reader, error) {
	if v.rep != Stream {
		return nil, v.wrong(Stream)
	}
	return v.stream, nil
}

// decodeValue materialises payload. payload may alias an edge buffer, so
// Binary gets its own copy.
func decodeValue(rep Representation, payload []byte, sc codec.Codec[any]) (Value, error) {
	switch rep {
	case Text:
		return TextValue(string(payload)), nil
	case Binary:
		return BinaryValue(bytes.Clone(payload)), nil
	case Stream:
		return StreamValue(bytes.NewReader(payload)), nil
	case Structured:
		v, err := sc.Decode(payload)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidRepresentation, err)
		}
		return StructuredValue(v), nil
	}
	return Value{}, fmt.Errorf("%w: %s", ErrInvalidRepresentation, rep)
}

// encodeValue returns the payload bytes of a non-stream value.
func encodeValue(v Value, sc codec.Codec[any]) ([]byte, error) {
	switch v.rep {
	case Text:
		return []byte(v.text), nil
	case Binary:
		return v.bin, nil
	case Structured:
		b, err := sc.Encode(v.structured)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRepresentation, err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("%w: cannot encode %s", ErrInvalidRepresentation, v.rep)
}

// GetStructured reads key and decodes it with c instead of the KV's structured codec.
func GetStructured[V any](ctx context.Context, kv *KV, key string, c codec.Codec[V]) (V, CacheStatus, error) {
	var zero V
	e, err := kv.get(ctx, key, Binary)
	if err != nil {
		return zero, StatusMiss, err
	}
	v, err := c.Decode(e.Value.bin)
	if err != nil {
		return zero, e.Status, fmt.Errorf("%w: %v", ErrInvalidRepresentation, err)
	}
	return v, e.Status, nil
}
