// Package connection turns prepared requests into authenticated HTTP exchanges and
// classifies their outcome. The synchronous and asynchronous pipelines share one
// classify, decode and parse sequence, so their failure semantics are identical.
package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bitrise-io/go-utils/v2/log"
)

// Parser decodes a successful response body into T. The body is already
// gzip-decoded and is closed by the engine once the parser returns.
type Parser[T any] func(body io.Reader) (T, error)

// JSONParser returns a Parser decoding a JSON document into T.
func JSONParser[T any]() Parser[T] {
	return func(body io.Reader) (T, error) {
		var v T
		err := json.NewDecoder(body).Decode(&v)
		return v, err
	}
}

// Client executes PreparedRequests over a Transport.
type Client struct {
	transport Transport
	logger    log.Logger
	dump      bool
}

// NewClient ...
func NewClient(transport Transport, cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Client{
		transport: transport,
		logger:    logger,
		dump:      cfg.DebugDump,
	}
}

// NewDefaultClient validates cfg and creates a Client over a retryablehttp transport.
func NewDefaultClient(cfg Config, logger log.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid connection config: %w", err)
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return NewClient(NewTransport(cfg, logger), cfg, logger), nil
}

// Execute runs req on the calling goroutine and parses the successful response with parse.
func Execute[T any](ctx context.Context, c *Client, req *PreparedRequest, parse Parser[T]) (T, error) {
	var zero T
	if parse == nil {
		return zero, errors.New("parser is nil")
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return zero, err
	}
	return processResponse(c, resp, parse)
}

// ExecuteStatus runs a call without a response payload (delete, restore) and returns its status code.
func ExecuteStatus(ctx context.Context, c *Client, req *PreparedRequest) (int, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return 0, err
	}
	defer c.closeBody(resp.Body)

	if err := Classify(resp, ExpectSuccess); err != nil {
		return 0, err
	}
	return resp.StatusCode, nil
}

// Stream is a classified, decoded response body handed to a streaming consumer.
type Stream struct {
	StatusCode int
	Header     http.Header
	// ContentLength is the decoded body length, -1 when unknown or when the body is decompressed on the fly.
	ContentLength int64
	Body          io.ReadCloser
}

// OpenStream runs req and returns the decoded body of a successful response.
// The caller owns the Stream and must close its Body.
func OpenStream(ctx context.Context, c *Client, req *PreparedRequest) (*Stream, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := Classify(resp, ExpectSuccess); err != nil {
		c.closeBody(resp.Body)
		return nil, err
	}
	body, err := DecodeBody(resp)
	if err != nil {
		c.closeBody(resp.Body)
		return nil, err
	}

	contentLength := resp.ContentLength
	if body != resp.Body {
		contentLength = -1
	}
	return &Stream{
		StatusCode:    resp.StatusCode,
		Header:        resp.Header,
		ContentLength: contentLength,
		Body:          body,
	}, nil
}

func (c *Client) do(ctx context.Context, req *PreparedRequest) (*http.Response, error) {
	r, err := req.build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.dumpRequest(r.Request)

	resp, err := c.transport.Execute(r)
	if err != nil {
		return nil, &TransportError{Method: req.Method(), URL: req.URL(), Err: err}
	}
	c.dumpResponse(resp)

	return resp, nil
}

// processResponse is the classify, decode and parse sequence shared by both pipelines.
// It always closes the response body.
func processResponse[T any](c *Client, resp *http.Response, parse Parser[T]) (T, error) {
	var zero T
	defer c.closeBody(resp.Body)

	if err := Classify(resp, ExpectSuccess); err != nil {
		return zero, err
	}
	body, err := DecodeBody(resp)
	if err != nil {
		return zero, err
	}
	defer c.closeBody(body)

	return runParser(body, parse)
}

func runParser[T any](body io.Reader, parse Parser[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, &ParseError{Err: fmt.Errorf("parser panicked: %v", r)}
		}
	}()

	v, err := parse(body)
	if err != nil {
		var zero T
		return zero, &ParseError{Err: err}
	}
	return v, nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	if err := body.Close(); err != nil {
		c.logger.Warnf("failed to close response body: %s", err)
	}
}
