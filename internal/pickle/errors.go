package pickle

import (
	"errors"
	"fmt"
)

var (
	ErrTruncated           = errors.New("truncated operand")
	ErrMissingNewline      = errors.New("missing newline")
	ErrBadLiteral          = errors.New("malformed literal")
	ErrIntTooLong          = errors.New("integer literal exceeds digit limit")
	ErrNegativeLength      = errors.New("negative length")
	ErrOversize            = errors.New("declared length exceeds limit")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrNoStop              = errors.New("stream ended without STOP")
	ErrUnknownOpcode       = errors.New("unknown opcode")
)

// DecodeError reports a framing problem at a byte offset.
type DecodeError struct {
	Offset int64
	Code   Opcode
	Err    error
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("offset %d (%s): %s: %s", e.Offset, e.Code, e.Err, e.Detail)
	}
	return fmt.Sprintf("offset %d (%s): %s", e.Offset, e.Code, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError checks if an error is a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
