package transfer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	stateNotStarted int32 = iota
	stateStreaming
	stateCompleted
	stateFailed
)

type flusher interface {
	Flush() error
}

// UploadSource streams a local file into an outbound request body.
//
// It is single-use: NOT_STARTED -> STREAMING -> COMPLETED or FAILED.
type UploadSource struct {
	path      string
	size      int64
	chunkSize int
	callback  *Chain
	osProxy   internal.OsProxy
	logger    log.Logger

	state int32
	done  chan struct{}
	err   error
}

// NewUploadSource samples the size of the file at path once. That size is the
// declared content length and the total reported to callback, even if the file
// changes before streaming starts.
func NewUploadSource(path string, callback Callback, cfg Config, opts ...Option) (*UploadSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)

	info, err := o.osProxy.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat upload source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("upload source %s is not a regular file", path)
	}

	return &UploadSource{
		path:      path,
		size:      info.Size(),
		chunkSize: cfg.ChunkSize,
		callback:  asChain(callback, o.logger),
		osProxy:   o.osProxy,
		logger:    o.logger,
		state:     stateNotStarted,
		done:      make(chan struct{}),
	}, nil
}

// ContentLength is the file size sampled when the source was created.
func (s *UploadSource) ContentLength() int64 {
	return s.size
}

// WriteTo streams the file into w. The file handle is released on every path.
func (s *UploadSource) WriteTo(w io.Writer) (int64, error) {
	if !atomic.CompareAndSwapInt32(&s.state, stateNotStarted, stateStreaming) {
		return 0, ErrAlreadyStarted
	}
	defer close(s.done)

	f, err := s.osProxy.Open(s.path)
	if err != nil {
		return 0, s.fail(0, err)
	}
	defer closeWithWarning(f, "upload source", s.logger)

	n, err := streamChunks(w, f, s.size, s.chunkSize, s.callback)
	if err != nil {
		return n, s.fail(n, err)
	}
	if fl, ok := w.(flusher); ok {
		if err := fl.Flush(); err != nil {
			return n, s.fail(n, err)
		}
	}

	atomic.StoreInt32(&s.state, stateCompleted)
	s.callback.OnComplete(n)
	return n, nil
}

func (s *UploadSource) fail(transferred int64, cause error) error {
	s.err = &TransferError{Op: "upload", Path: s.path, Transferred: transferred, Err: cause}
	atomic.StoreInt32(&s.state, stateFailed)
	s.callback.OnFailure(cause)
	return s.err
}

// Abort fails a source that never started streaming, for example because the request
// could not be sent. It reports false if streaming had already started.
func (s *UploadSource) Abort(cause error) bool {
	if !atomic.CompareAndSwapInt32(&s.state, stateNotStarted, stateFailed) {
		return false
	}
	if cause == nil {
		cause = errors.New("upload body was never read")
	}
	s.err = &TransferError{Op: "upload", Path: s.path, Err: cause}
	s.callback.OnFailure(cause)
	close(s.done)
	return true
}

// Wait blocks until the source reached COMPLETED or FAILED and returns the
// transfer error, if any.
func (s *UploadSource) Wait() error {
	<-s.done
	return s.err
}

// BodyReader exposes the source as a request body. The returned reader func may be
// called more than once, but streaming starts only on the first Read and the file is
// only streamed once.
func (s *UploadSource) BodyReader() retryablehttp.ReaderFunc {
	return func() (io.Reader, error) {
		return &lazyPipe{source: s}, nil
	}
}

type lazyPipe struct {
	source *UploadSource

	once   sync.Once
	reader *io.PipeReader
	closed bool
}

func (p *lazyPipe) Read(b []byte) (int, error) {
	p.once.Do(func() {
		pr, pw := io.Pipe()
		p.reader = pr
		go func() {
			_, err := p.source.WriteTo(pw)
			_ = pw.CloseWithError(err)
		}()
	})
	if p.reader == nil {
		return 0, io.ErrClosedPipe
	}
	return p.reader.Read(b)
}

// Close before the first Read leaves the source untouched.
func (p *lazyPipe) Close() error {
	p.once.Do(func() {
		p.closed = true
	})
	if p.closed {
		return nil
	}
	return p.reader.Close()
}
