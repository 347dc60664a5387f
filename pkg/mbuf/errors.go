package mbuf

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrCapacityExceeded is returned when a buffer can not grow within its backing capacity
	ErrCapacityExceeded = errors.New("Buffer capacity exceeded")

	// ErrRangeInvalid is returned when an offset/length pair lies outside of the occupied bytes
	ErrRangeInvalid = errors.New("Buffer range invalid")
)

// OutOfBufferError signals that a header needs more bytes than the buffer holds
type OutOfBufferError struct {
	Required  int
	Available int
}

func (e *OutOfBufferError) Error() string {
	return fmt.Sprintf("Out of buffer: %d bytes required, %d available", e.Required, e.Available)
}

// IsOutOfBuffer checks if err is or wraps an *OutOfBufferError
func IsOutOfBuffer(err error) bool {
	var oob *OutOfBufferError
	return errors.As(err, &oob)
}

func rangeInvalid(offset, n, dataLen int) error {
	return errors.Wrapf(ErrRangeInvalid, "offset %d length %d with %d bytes of data", offset, n, dataLen)
}
