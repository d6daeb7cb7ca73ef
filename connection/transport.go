package connection

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// ResponseCallback receives the outcome of an enqueued request. Exactly one method is
// invoked, once, on a transport owned goroutine.
type ResponseCallback interface {
	OnResponse(resp *http.Response)
	OnFailure(err error)
}

// Transport executes fully built requests, either blocking or callback driven.
type Transport interface {
	Execute(req *retryablehttp.Request) (*http.Response, error)
	Enqueue(req *retryablehttp.Request, callback ResponseCallback)
}

// RetryableTransport is the default Transport, backed by a retryablehttp client.
type RetryableTransport struct {
	client *retryablehttp.Client
}

// NewTransport creates a transport from cfg. cfg is expected to be validated.
func NewTransport(cfg Config, logger log.Logger) *RetryableTransport {
	client := retryhttp.NewClient(logger)
	if cfg.HTTPClient != nil {
		client.HTTPClient = cfg.HTTPClient
	} else {
		client.HTTPClient = newHTTPClient(cfg)
	}
	client.RetryMax = cfg.TransportRetries
	client.CheckRetry = createCheckRetry(logger)
	// Hand the last response or error back instead of a "giving up" error, so it can be classified.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &RetryableTransport{client: client}
}

// Execute ...
func (t *RetryableTransport) Execute(req *retryablehttp.Request) (*http.Response, error) {
	return t.client.Do(req)
}

// Enqueue runs the request on its own goroutine and reports through callback.
func (t *RetryableTransport) Enqueue(req *retryablehttp.Request, callback ResponseCallback) {
	go func() {
		resp, err := t.client.Do(req)
		if err != nil {
			callback.OnFailure(err)
			return
		}
		callback.OnResponse(resp)
	}()
}

// StandardClient returns an *http.Client sharing this transport's retry behaviour.
func (t *RetryableTransport) StandardClient() *http.Client {
	return t.client.StandardClient()
}

func createCheckRetry(logger log.Logger) retryablehttp.CheckRetry {
	return func(ctx context.Context, resp *http.Response, doErr error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		// Every response, 429 and 5xx included, goes to the classifier.
		if doErr == nil {
			return false, nil
		}
		retry, err := retryablehttp.DefaultRetryPolicy(ctx, resp, doErr)
		logger.Debugf("CheckRetry: retry=%v ; err=%+v ; doErr=%+v", retry, err, doErr)
		return retry, err
	}
}

func newHTTPClient(cfg Config) *http.Client {
	return &http.Client{
		// No overall timeout, large transfers rely on the per-phase timeouts below
		Timeout: 0,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   cfg.ConnectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
			ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
			MaxIdleConns:          50,
			MaxConnsPerHost:       20,
			IdleConnTimeout:       10 * time.Second,
			// gzip is negotiated by RequestFactory and decoded by DecodeBody
			DisableCompression: true,
		},
	}
}
