package transfer

import (
	"errors"
	"io"
	"os"
	"sync/atomic"

	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/log"
)

var errBodyTooLong = errors.New("response body is longer than the expected size")

// DownloadSink streams a response body into a destination file. It is single-use.
type DownloadSink struct {
	path      string
	chunkSize int
	callback  *Chain
	osProxy   internal.OsProxy
	logger    log.Logger

	state int32
}

// NewDownloadSink creates a sink writing to path, which is expected to be resolved
// with a Resolver.
func NewDownloadSink(path string, callback Callback, cfg Config, opts ...Option) (*DownloadSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &DownloadSink{
		path:      path,
		chunkSize: cfg.ChunkSize,
		callback:  asChain(callback, o.logger),
		osProxy:   o.osProxy,
		logger:    o.logger,
	}, nil
}

// Write streams exactly expectedTotal bytes from src into the destination file.
//
// A negative expectedTotal returns ErrNegativeTotal without any I/O. A destination
// that cannot be created returns a DestinationError without notifying the callback.
// Failures while streaming notify the callback, remove the partial file and return a
// TransferError.
func (s *DownloadSink) Write(src io.Reader, expectedTotal int64) (int64, error) {
	if expectedTotal < 0 {
		return 0, ErrNegativeTotal
	}
	if !atomic.CompareAndSwapInt32(&s.state, stateNotStarted, stateStreaming) {
		return 0, ErrAlreadyStarted
	}

	f, err := s.osProxy.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		atomic.StoreInt32(&s.state, stateFailed)
		return 0, &DestinationError{Path: s.path, Err: err}
	}

	n, err := s.stream(f, src, expectedTotal)
	if err != nil {
		closeWithWarning(f, "download destination", s.logger)
		return n, s.fail(n, err)
	}
	if err := f.Close(); err != nil {
		return n, s.fail(n, err)
	}

	atomic.StoreInt32(&s.state, stateCompleted)
	s.callback.OnComplete(n)
	return n, nil
}

func (s *DownloadSink) stream(f internal.File, src io.Reader, expectedTotal int64) (int64, error) {
	n, err := streamChunks(f, src, expectedTotal, s.chunkSize, s.callback)
	if err != nil {
		return n, err
	}

	var extra [1]byte
	m, err := io.ReadFull(src, extra[:])
	if m > 0 {
		return n, errBodyTooLong
	}
	if err != nil && err != io.EOF {
		return n, err
	}

	return n, f.Sync()
}

func (s *DownloadSink) fail(transferred int64, cause error) error {
	atomic.StoreInt32(&s.state, stateFailed)
	if err := s.osProxy.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warnf("Failed to remove partial download %s: %s", s.path, err)
	}
	s.callback.OnFailure(cause)
	return &TransferError{Op: "download", Path: s.path, Transferred: transferred, Err: cause}
}
