// Package codec converts typed records to and from their wire bytes.
package codec

import (
	"fmt"

	"github.com/loipv/hubcore/triage"
)

// Codec encodes and decodes values of one record type
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

// Op names the direction of a failed conversion
type Op string

const (
	OpEncode Op = "encode"
	OpDecode Op = "decode"
)

// Error is returned when a value cannot be converted. Malformed data never
// becomes valid on retry, so every codec error is Permanent.
type Error struct {
	Op     Op
	Format string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Format, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Severity implements triage.Triager
func (e *Error) Severity() triage.Severity { return triage.Permanent }
