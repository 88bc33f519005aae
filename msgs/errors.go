package msgs

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrUnknownType is the cause of every UnknownTypeError.
	ErrUnknownType = errors.New("unknown message type")
	// ErrMalformed is the cause of every wire decoding failure.
	ErrMalformed = errors.New("malformed message")
	// ErrUnsupportedPixelFormat is returned when an image cannot be
	// converted to BGRA.
	ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")
)

type UnknownTypeError struct {
	TypeName string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnknownType, e.TypeName)
}

// Cause lets errors.Cause unwrap to ErrUnknownType.
func (e *UnknownTypeError) Cause() error {
	return ErrUnknownType
}

func (e *UnknownTypeError) Unwrap() error {
	return ErrUnknownType
}

func malformed(err error, what string) error {
	if errors.Cause(err) == ErrMalformed {
		return errors.Wrap(err, what)
	}
	return errors.Wrapf(ErrMalformed, "%s: %v", what, err)
}
