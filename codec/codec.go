// Package codec converts structured values to and from the bytes carried in
// an envelope payload or metadata field.
package codec

// Codec encodes/decodes values V to []byte for storage.
// ContentType names the wire format for HTTP callers.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
	ContentType() string
}
