package transfer

import (
	"context"
	"io"
	"net/http"
	"path/filepath"

	"github.com/bitrise-io/go-driveclient/connection"
)

// UploadParams describes a single request upload of a local file.
type UploadParams struct {
	// Method defaults to PUT.
	Method string
	// Target is an endpoint relative path or an absolute upload URL.
	Target string
	Path   string
	// ContentType defaults to application/octet-stream.
	ContentType string
	Callback    Callback
}

// UploadFile streams the file at params.Path as the body of one request and parses
// the response. It returns once the callback has received its terminal event.
// Progress is logged next to params.Callback.
//
// The callback tracks the request body only. When the server reads the whole body and
// then fails, the last event is OnComplete and the classified error is returned. When
// the server answers with a success before reading the whole body, the parsed value is
// dropped and the TransferError of the interrupted body is returned.
func UploadFile[T any](ctx context.Context, client *connection.Client, factory *connection.RequestFactory, params UploadParams, parse connection.Parser[T], cfg Config, opts ...Option) (T, error) {
	var zero T
	if err := cfg.Validate(); err != nil {
		return zero, err
	}
	o := newOptions(opts)
	method := params.Method
	if method == "" {
		method = http.MethodPut
	}

	callback := withProgressLog(params.Callback, filepath.Base(params.Path), cfg.ProgressLogInterval, o.logger)
	source, err := NewUploadSource(params.Path, callback, cfg, opts...)
	if err != nil {
		return zero, err
	}
	req, err := factory.NewStreamRequest(method, params.Target, source.BodyReader(), source.ContentLength(), params.ContentType)
	if err != nil {
		source.Abort(err)
		return zero, err
	}

	value, err := connection.Execute(ctx, client, req, parse)
	if err != nil {
		if !source.Abort(err) {
			_ = source.Wait()
		}
		return zero, err
	}

	if source.ContentLength() == 0 {
		// the transport may skip reading an empty body
		_, _ = source.WriteTo(io.Discard)
	}
	source.Abort(nil)
	if err := source.Wait(); err != nil {
		return zero, err
	}
	return value, nil
}

// DownloadParams describes a single request download into a local folder.
type DownloadParams struct {
	// Target is an endpoint relative path (e.g. ".../content") or an absolute download URL.
	Target string
	Folder string
	Name   string
	// ExpectedSize is the exact number of bytes the response body carries.
	ExpectedSize int64
	Callback     Callback
}

// DownloadFile resolves the destination, requests the content and streams it to
// disk. Destination and request failures are returned before any byte is written and
// are not reported to the callback. Progress is logged next to params.Callback.
func DownloadFile(ctx context.Context, client *connection.Client, factory *connection.RequestFactory, params DownloadParams, cfg Config, opts ...Option) (string, int64, error) {
	if params.ExpectedSize < 0 {
		return "", 0, ErrNegativeTotal
	}
	if err := cfg.Validate(); err != nil {
		return "", 0, err
	}
	o := newOptions(opts)

	dest, err := NewResolver(o.osProxy, o.pathModifier).Resolve(params.Folder, params.Name)
	if err != nil {
		return "", 0, err
	}
	callback := withProgressLog(params.Callback, params.Name, cfg.ProgressLogInterval, o.logger)
	sink, err := NewDownloadSink(dest, callback, cfg, opts...)
	if err != nil {
		return "", 0, err
	}

	req, err := factory.NewRequest(http.MethodGet, params.Target)
	if err != nil {
		return "", 0, err
	}
	stream, err := connection.OpenStream(ctx, client, req)
	if err != nil {
		return "", 0, err
	}
	defer closeWithWarning(stream.Body, "response body", o.logger)

	n, err := sink.Write(stream.Body, params.ExpectedSize)
	if err != nil {
		return "", n, err
	}
	return dest, n, nil
}
