package edgekv

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/edgekv/internal/wire"
	"github.com/unkn0wn-root/edgekv/origin"
)

var (
	// ErrNotFound reports a key absent from the origin.
	ErrNotFound = origin.ErrNotFound
	// ErrInvalidRepresentation reports a value or payload that does not fit the
	// requested representation.
	ErrInvalidRepresentation = errors.New("edgekv: invalid representation")
	ErrInvalidListQuery      = errors.New("edgekv: invalid list query")
	ErrInvalidKey            = errors.New("edgekv: invalid key")
	ErrInvalidConfig         = errors.New("edgekv: invalid config")
	// ErrMalformedEnvelope is reported through hooks; readers never see it
	// because corrupt entries are deleted and re-read from the origin.
	ErrMalformedEnvelope = wire.ErrCorrupt
)

// OriginError wraps an origin store failure other than not-found.
type OriginError struct {
	Op  string // get | put | delete | list
	Key string
	Err error
}

func (e *OriginError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("edgekv: origin %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("edgekv: origin %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OriginError) Unwrap() error { return e.Err }

// originErr passes ErrNotFound through and wraps everything else.
func originErr(op, key string, err error) error {
	if err == nil || errors.Is(err, origin.ErrNotFound) {
		return err
	}
	return &OriginError{Op: op, Key: key, Err: err}
}

// IsOriginUnavailable reports whether err came from a failing origin store.
func IsOriginUnavailable(err error) bool {
	var oe *OriginError
	return errors.As(err, &oe)
}
