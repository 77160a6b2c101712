package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version byte = 1

	// KindSingle frames a point-lookup record.
	KindSingle byte = 1
	// KindList frames a serialized list page.
	KindList byte = 2

	hdrLen = 4 + 1 + 1 + 8 + 4
)

var (
	ErrCorrupt = errors.New("edgekv: corrupt envelope")
	magic4     = [...]byte{'E', 'D', 'K', 'V'}
)

// Envelope is the unit stored in the edge cache.
// CreatedAt is the moment the envelope was produced from (or written to) the
// origin. A zero CreatedAt means the age is unknown.
type Envelope struct {
	Kind      byte
	CreatedAt time.Time
	Meta      []byte
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Encode frames an envelope:
//
//	magic(4) | ver(1) | kind(1) | createdAt(i64 unix ms, be) | mlen(u32 be) | meta(mlen) | plen(u32 be) | payload(plen)
func Encode(e Envelope) []byte {
	var buf bytes.Buffer
	buf.Grow(hdrLen + len(e.Meta) + 4 + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(e.Kind)

	var u8 [8]byte
	var u4 [4]byte

	var ms int64
	if !e.CreatedAt.IsZero() {
		ms = e.CreatedAt.UnixMilli()
	}
	binary.BigEndian.PutUint64(u8[:], uint64(ms))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Meta)))
	buf.Write(u4[:])
	buf.Write(e.Meta)

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])
	buf.Write(e.Payload)

	return buf.Bytes()
}

// Decode parses a framed envelope. Meta and Payload alias b.
// A non-positive timestamp is not an error; it yields a zero CreatedAt.
func Decode(b []byte) (Envelope, error) {
	if len(b) < hdrLen || !hasMagic(b) || b[4] != version {
		return Envelope{}, ErrCorrupt
	}
	kind := b[5]
	if kind != KindSingle && kind != KindList {
		return Envelope{}, ErrCorrupt
	}
	off := 6

	ms := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	mlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if mlen < 0 || mlen > len(b)-off {
		return Envelope{}, ErrCorrupt
	}
	meta := b[off : off+mlen]
	off += mlen

	if off+4 > len(b) {
		return Envelope{}, ErrCorrupt
	}
	plen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if plen < 0 || plen != len(b)-off {
		return Envelope{}, ErrCorrupt
	}

	e := Envelope{Kind: kind, Payload: b[off : off+plen]}
	if mlen > 0 {
		e.Meta = meta
	}
	if ms > 0 {
		e.CreatedAt = time.UnixMilli(ms)
	}
	return e, nil
}
