package transfer

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when a single-use source or sink is used a second time.
	ErrAlreadyStarted = errors.New("transfer already started")
	// ErrNegativeTotal is returned when a download is requested with a negative expected size.
	ErrNegativeTotal = errors.New("expected total bytes must not be negative")
	// ErrNotDirectory is the cause of a DestinationError when the target folder is not a directory.
	ErrNotDirectory = errors.New("not a directory")
	// ErrTargetIsDirectory is the cause of a DestinationError when a directory occupies the destination file path.
	ErrTargetIsDirectory = errors.New("destination is a directory")
	// ErrUnsafeName is the cause of a DestinationError when the file name would escape the target folder.
	ErrUnsafeName = errors.New("file name is empty or contains a path separator")
)

// TransferError is an I/O failure while streaming content. The progress callback
// has already been notified when it is returned.
type TransferError struct {
	Op          string
	Path        string
	Transferred int64
	Err         error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s failed after %d bytes: %s", e.Op, e.Path, e.Transferred, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// DestinationError is a local path or permission problem found before any byte was
// transferred. The progress callback is never notified of it.
type DestinationError struct {
	Path string
	Err  error
}

func (e *DestinationError) Error() string {
	return fmt.Sprintf("invalid download destination %s: %s", e.Path, e.Err)
}

func (e *DestinationError) Unwrap() error {
	return e.Err
}
