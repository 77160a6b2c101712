package codec

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownCodec = errors.New("codec: unknown name")

// Names lists what ByName accepts.
const Names = "json|cbor|msgpack"

// ByName returns the untyped codec used for structured values and metadata.
// CBOR is built deterministic so equal metadata yields equal bytes.
func ByName(name string) (Codec[any], error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON[any]{}, nil
	case "msgpack":
		return Msgpack[any]{}, nil
	case "cbor":
		return NewCBOR[any](true)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}
