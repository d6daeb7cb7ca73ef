package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-driveclient/connection"
	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/log"
)

// FragmentSizeUnit is the granularity upload session fragments should be a multiple of.
const FragmentSizeUnit = 320 * 1024

// ErrEmptySession is returned for empty files, which upload sessions can't carry.
var ErrEmptySession = errors.New("upload sessions require a non-empty file, use UploadFile instead")

// SessionConfig holds configuration for resumable upload sessions.
type SessionConfig struct {
	// FragmentSize is the number of bytes sent per request. Servers usually require
	// a multiple of FragmentSizeUnit.
	// Default: 10 MiB
	FragmentSize int64

	// MaxAttemptsPerFragment is how many times a fragment is sent before the session
	// fails. Only throttling, server and transport failures are retried.
	// Default: 1
	MaxAttemptsPerFragment int

	// RetryBackoff is multiplied by the attempt number to get the wait before a retry,
	// unless the server sent a Retry-After hint.
	// Default: 2 seconds
	RetryBackoff time.Duration

	// HungThreshold cancels a fragment request that takes this much longer than the
	// average fragment so far. Zero disables hung detection.
	// Default: 30 seconds
	HungThreshold time.Duration

	// ProgressLogInterval is the minimum time between two logged progress lines.
	// Default: 1 second
	ProgressLogInterval time.Duration
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FragmentSize:           32 * FragmentSizeUnit,
		MaxAttemptsPerFragment: 1,
		RetryBackoff:           2 * time.Second,
		HungThreshold:          30 * time.Second,
		ProgressLogInterval:    time.Second,
	}
}

// Validate ...
func (c SessionConfig) Validate() error {
	if c.FragmentSize <= 0 {
		return fmt.Errorf("fragment size must be positive, got %d", c.FragmentSize)
	}
	if c.MaxAttemptsPerFragment < 1 {
		return fmt.Errorf("max attempts per fragment must be at least 1, got %d", c.MaxAttemptsPerFragment)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff)
	}
	if c.HungThreshold < 0 {
		return fmt.Errorf("hung threshold must not be negative, got %s", c.HungThreshold)
	}
	if c.ProgressLogInterval < 0 {
		return fmt.Errorf("progress log interval must not be negative, got %s", c.ProgressLogInterval)
	}
	return nil
}

// UploadSession sends the file at path to a previously created upload session in
// consecutive Content-Range fragments and parses the response to the last one.
// uploadURL is pre-authenticated, so no Authorization header is sent.
//
// Progress is reported after every fragment. On failure the callback is notified
// once and a TransferError carrying the bytes acknowledged so far is returned, the
// session can be resumed from there by the caller.
func UploadSession[T any](ctx context.Context, client *connection.Client, factory *connection.RequestFactory, uploadURL, path string, callback Callback, cfg SessionConfig, parse connection.Parser[T], opts ...Option) (T, error) {
	var zero T
	if err := cfg.Validate(); err != nil {
		return zero, err
	}
	o := newOptions(opts)

	info, err := o.osProxy.Stat(path)
	if err != nil {
		return zero, fmt.Errorf("stat upload source: %w", err)
	}
	if info.Size() == 0 {
		return zero, ErrEmptySession
	}

	s := &session[T]{
		client:   client,
		factory:  factory,
		url:      uploadURL,
		path:     path,
		size:     info.Size(),
		cfg:      cfg,
		parse:    parse,
		callback: withProgressLog(callback, filepath.Base(path), cfg.ProgressLogInterval, o.logger),
		logger:   o.logger,
		stats:    &stats{},
	}
	return s.run(ctx, o.osProxy)
}

type session[T any] struct {
	client   *connection.Client
	factory  *connection.RequestFactory
	url      string
	path     string
	size     int64
	cfg      SessionConfig
	parse    connection.Parser[T]
	callback *Chain
	logger   log.Logger
	stats    *stats
}

func (s *session[T]) run(ctx context.Context, osProxy internal.OsProxy) (T, error) {
	var zero T
	f, err := osProxy.Open(s.path)
	if err != nil {
		return zero, s.fail(0, err)
	}
	defer closeWithWarning(f, "upload source", s.logger)

	numFragments := int((s.size + s.cfg.FragmentSize - 1) / s.cfg.FragmentSize)
	var value T
	for index := 0; index < numFragments; index++ {
		start := int64(index) * s.cfg.FragmentSize
		end := start + s.cfg.FragmentSize
		if end > s.size {
			end = s.size
		}

		data := make([]byte, end-start)
		if n, err := f.ReadAt(data, start); n < len(data) {
			if err == nil || err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return zero, s.fail(start, fmt.Errorf("read fragment %d: %w", index+1, err))
		}

		last := index == numFragments-1
		err := s.sendWithRetry(ctx, index, numFragments, func(ctx context.Context, req *connection.PreparedRequest) error {
			if !last {
				_, err := connection.ExecuteStatus(ctx, s.client, req)
				return err
			}
			v, err := connection.Execute(ctx, s.client, req, s.parse)
			value = v
			return err
		}, data, start)
		if err != nil {
			return zero, s.fail(start, err)
		}
		s.callback.OnUpdate(end, s.size)
	}

	s.callback.OnComplete(s.size)
	return value, nil
}

func (s *session[T]) sendWithRetry(ctx context.Context, index, numFragments int, send func(context.Context, *connection.PreparedRequest) error, data []byte, start int64) error {
	req, err := s.factory.NewStreamRequest(http.MethodPut, s.url, func() (io.Reader, error) {
		return bytes.NewReader(data), nil
	}, int64(len(data)), "")
	if err != nil {
		return err
	}
	contentRange := fmt.Sprintf("bytes %d-%d/%d", start, start+int64(len(data))-1, s.size)
	req = req.WithHeader("Content-Range", contentRange).WithHeader("Authorization", "")

	var sendErr error
	for attempt := 0; attempt < s.cfg.MaxAttemptsPerFragment; attempt++ {
		if ctx.Err() != nil {
			return fmt.Errorf("fragment %d upload cancelled: %w", index+1, ctx.Err())
		}
		s.logger.Debugf("Uploading fragment %d/%d (%s) (attempt %d/%d) [avg=%v]",
			index+1, numFragments, contentRange, attempt+1, s.cfg.MaxAttemptsPerFragment, s.stats.average().Round(time.Second))

		started := time.Now()
		fragmentCtx, cancelFragment := context.WithCancel(ctx)
		if attempt < s.cfg.MaxAttemptsPerFragment-1 && s.cfg.HungThreshold > 0 {
			go s.detectHungFragment(fragmentCtx, cancelFragment, started, index)
		}
		sendErr = send(fragmentCtx, req)
		hung := fragmentCtx.Err() != nil && ctx.Err() == nil
		cancelFragment()

		if sendErr == nil {
			s.stats.update(time.Since(started))
			return nil
		}
		if attempt == s.cfg.MaxAttemptsPerFragment-1 {
			break
		}

		wait, retry := s.retryDelay(sendErr, attempt, hung)
		if !retry {
			return sendErr
		}
		s.logger.Warnf("Fragment %d attempt %d failed, retrying after %s: %s", index+1, attempt+1, wait, sendErr)
		select {
		case <-ctx.Done():
			return fmt.Errorf("fragment %d upload cancelled: %w", index+1, ctx.Err())
		case <-time.After(wait):
		}
	}

	return sendErr
}

func (s *session[T]) retryDelay(err error, attempt int, hung bool) (time.Duration, bool) {
	backoff := time.Duration(attempt+1) * s.cfg.RetryBackoff
	if hung {
		return backoff, true
	}

	var throttlingErr *connection.ThrottlingError
	var serverErr *connection.ServerError
	var transportErr *connection.TransportError
	switch {
	case errors.As(err, &throttlingErr):
		if hint, ok := throttlingErr.RetryAfter(); ok {
			return hint, true
		}
		return backoff, true
	case errors.As(err, &serverErr), errors.As(err, &transportErr):
		return backoff, true
	}
	return 0, false
}

func (s *session[T]) detectHungFragment(ctx context.Context, cancel context.CancelFunc, started time.Time, index int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.stats.finishedCount() == 0 {
				continue
			}
			elapsed := time.Since(started)
			avg := s.stats.average()
			if elapsed-avg > s.cfg.HungThreshold {
				s.logger.Warnf("Found hung fragment upload (fragment %d); canceling request after %s (avg: %s)",
					index+1, elapsed.Round(time.Second), avg.Round(time.Second))
				cancel()
				return
			}
		}
	}
}

func (s *session[T]) fail(acknowledged int64, cause error) error {
	s.callback.OnFailure(cause)
	return &TransferError{Op: "upload session", Path: s.path, Transferred: acknowledged, Err: cause}
}
