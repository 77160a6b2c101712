package codec

import "google.golang.org/protobuf/proto"

// Protobuf stores typed messages read back with edgekv.GetStructured.
// newMsg must return a fresh non-nil message on every call.
type Protobuf[T proto.Message] struct {
	newMsg func() T
}

func NewProtobuf[T proto.Message](newMsg func() T) Protobuf[T] {
	return Protobuf[T]{newMsg: newMsg}
}

// Encode is deterministic so identical messages frame to identical payloads.
func (Protobuf[T]) Encode(msg T) ([]byte, error) {
	return proto.MarshalOptions{Deterministic: true}.Marshal(msg)
}

func (p Protobuf[T]) Decode(b []byte) (T, error) {
	msg := p.newMsg()
	if err := proto.Unmarshal(b, msg); err != nil {
		var zero T
		return zero, err
	}
	return msg, nil
}

func (Protobuf[T]) ContentType() string { return "application/x-protobuf" }
