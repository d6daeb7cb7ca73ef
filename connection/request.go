package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bitrise-io/go-driveclient/auth"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	jsonContentType   = "application/json; charset=utf-8"
	binaryContentType = "application/octet-stream"
)

// PreparedRequest is an immutable description of one outbound call.
// A fresh transport request is materialized from it for every execution.
type PreparedRequest struct {
	method        string
	url           string
	header        http.Header
	body          []byte
	bodyFunc      retryablehttp.ReaderFunc
	contentLength int64
}

// Method ...
func (r *PreparedRequest) Method() string {
	return r.method
}

// URL ...
func (r *PreparedRequest) URL() string {
	return r.url
}

// Header returns a copy of the request headers.
func (r *PreparedRequest) Header() http.Header {
	return r.header.Clone()
}

// Body returns a copy of the buffered body, nil for bodyless and streaming requests.
func (r *PreparedRequest) Body() []byte {
	if r.body == nil {
		return nil
	}
	return append([]byte(nil), r.body...)
}

// WithHeader returns a copy of the request with key set to value. An empty value
// removes the header, e.g. Authorization for pre-authenticated upload URLs.
func (r *PreparedRequest) WithHeader(key, value string) *PreparedRequest {
	clone := *r
	clone.header = r.header.Clone()
	if value == "" {
		clone.header.Del(key)
	} else {
		clone.header.Set(key, value)
	}
	return &clone
}

func (r *PreparedRequest) build(ctx context.Context) (*retryablehttp.Request, error) {
	var rawBody interface{}
	switch {
	case r.bodyFunc != nil:
		rawBody = r.bodyFunc
	case r.body != nil:
		rawBody = r.body
	}

	req, err := retryablehttp.NewRequest(r.method, r.url, rawBody)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	for k, v := range r.header {
		req.Header[k] = append([]string(nil), v...)
	}
	if r.bodyFunc != nil {
		// retryablehttp can't tell the length of a streaming body, set it manually
		req.ContentLength = r.contentLength
	}

	return req, nil
}

// RequestFactory builds PreparedRequests carrying the headers every call needs.
// No network I/O happens here; only the credential supplier may block.
type RequestFactory struct {
	manager auth.Manager
	gzip    bool
}

// NewRequestFactory ...
func NewRequestFactory(manager auth.Manager, cfg Config) *RequestFactory {
	return &RequestFactory{
		manager: manager,
		gzip:    cfg.GzipEnabled,
	}
}

// NewRequest builds a bodyless request. target is either a path relative to the
// authenticated endpoint or an absolute URL (upload and monitor URLs).
func (f *RequestFactory) NewRequest(method, target string) (*PreparedRequest, error) {
	return f.newRequest(method, target, "")
}

// NewJSONRequest builds a request with payload marshalled as its JSON body.
func (f *RequestFactory) NewJSONRequest(method, target string, payload interface{}) (*PreparedRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	req, err := f.newRequest(method, target, jsonContentType)
	if err != nil {
		return nil, err
	}
	req.body = body
	return req, nil
}

// NewStreamRequest builds a request whose body is produced by open for every attempt.
// open is also called once while the transport request is built, to inspect the body
// length, so it must not start any work before the returned reader is read.
// An empty contentType defaults to application/octet-stream.
func (f *RequestFactory) NewStreamRequest(method, target string, open retryablehttp.ReaderFunc, size int64, contentType string) (*PreparedRequest, error) {
	if open == nil {
		return nil, errors.New("stream body is nil")
	}
	if size < 0 {
		return nil, fmt.Errorf("invalid stream size: %d", size)
	}
	if contentType == "" {
		contentType = binaryContentType
	}

	req, err := f.newRequest(method, target, contentType)
	if err != nil {
		return nil, err
	}
	req.bodyFunc = open
	req.contentLength = size
	return req, nil
}

func (f *RequestFactory) newRequest(method, target, contentType string) (*PreparedRequest, error) {
	u, err := f.resolve(target)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if err := auth.AddAuthentication(header, f.manager); err != nil {
		return nil, err
	}
	if f.gzip {
		header.Set("Accept-Encoding", "gzip")
	}
	header.Set("Accept", jsonContentType)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	return &PreparedRequest{
		method:        method,
		url:           u,
		header:        header,
		contentLength: -1,
	}, nil
}

func (f *RequestFactory) resolve(target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parse request target: %w", err)
	}
	if parsed.IsAbs() {
		return target, nil
	}

	endpoint := strings.TrimRight(f.manager.AuthenticatedEndpoint(), "/")
	if endpoint == "" {
		return "", auth.ErrEmptyEndpoint
	}
	return endpoint + "/" + strings.TrimLeft(target, "/"), nil
}
