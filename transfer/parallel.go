package transfer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/bitrise-io/go-driveclient/auth"
	"github.com/bitrise-io/go-driveclient/connection"
	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/melbahja/got"
)

// ParallelDownloader downloads large files with concurrent range requests.
// Progress is reported once the whole file is on disk, as a single update followed
// by the terminal event.
type ParallelDownloader struct {
	client   *http.Client
	resolver *Resolver
	osProxy  internal.OsProxy
	logger   log.Logger
	cfg      Config
}

// NewParallelDownloader shares the retry behaviour of transport. When manager is
// not nil every range request is authenticated, pre-authenticated download URLs
// need no manager.
func NewParallelDownloader(transport *connection.RetryableTransport, manager auth.Manager, cfg Config, opts ...Option) (*ParallelDownloader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	client := transport.StandardClient()
	if manager != nil {
		client.Transport = &authRoundTripper{manager: manager, next: client.Transport}
	}
	return &ParallelDownloader{
		client:   client,
		resolver: NewResolver(o.osProxy, o.pathModifier),
		osProxy:  o.osProxy,
		logger:   o.logger,
		cfg:      cfg,
	}, nil
}

// Download fetches url into name inside folder and returns the destination path and its size.
//
// Responses are classified like every other call: a failed status is returned as the
// matching connection error and a failed round trip as a connection.TransportError.
// Neither is reported to the callback. Failures while writing the file are.
func (d *ParallelDownloader) Download(ctx context.Context, url, folder, name string, callback Callback) (string, int64, error) {
	dest, err := d.resolver.Resolve(folder, name)
	if err != nil {
		return "", 0, err
	}
	cb := withProgressLog(callback, name, d.cfg.ProgressLogInterval, d.logger)

	classifier := &classifyingRoundTripper{next: d.client.Transport, logger: d.logger}
	client := *d.client
	client.Transport = classifier

	downloader := got.New()
	downloader.Client = &client
	download := got.NewDownload(ctx, url, dest)

	d.logger.Debugf("Parallel download of %s to %s", url, dest)
	if err := downloader.Do(download); err != nil {
		d.removePartial(dest)
		if requestErr := classifier.failure(); requestErr != nil {
			return "", 0, requestErr
		}
		cb.OnFailure(err)
		return "", 0, &TransferError{Op: "download", Path: dest, Err: err}
	}

	info, err := d.osProxy.Stat(dest)
	if err != nil {
		cb.OnFailure(err)
		return "", 0, &TransferError{Op: "download", Path: dest, Err: err}
	}
	total := info.Size()
	cb.OnUpdate(total, total)
	cb.OnComplete(total)
	return dest, total, nil
}

func (d *ParallelDownloader) removePartial(dest string) {
	if err := d.osProxy.Remove(dest); err != nil && !os.IsNotExist(err) {
		d.logger.Warnf("Failed to remove partial download %s: %s", dest, err)
	}
}

type authRoundTripper struct {
	manager auth.Manager
	next    http.RoundTripper
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if err := auth.AddAuthentication(clone.Header, t.manager); err != nil {
		return nil, fmt.Errorf("authenticate range request: %w", err)
	}
	return t.next.RoundTrip(clone)
}

// classifyingRoundTripper runs every response of one download through connection.Classify
// and keeps the first failure.
type classifyingRoundTripper struct {
	next   http.RoundTripper
	logger log.Logger

	mu    sync.Mutex
	first error
}

func (t *classifyingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, t.record(&connection.TransportError{Method: req.Method, URL: req.URL.String(), Err: err})
	}
	if err := connection.Classify(resp, connection.ExpectSuccess); err != nil {
		closeWithWarning(resp.Body, "response body", t.logger)
		return nil, t.record(err)
	}
	return resp, nil
}

func (t *classifyingRoundTripper) record(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.first == nil {
		t.first = err
	}
	return err
}

func (t *classifyingRoundTripper) failure() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.first
}
