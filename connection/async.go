package connection

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// Future is the pending result of ExecuteAsync. It resolves exactly once.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the future has resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking. ok is false while the future is pending.
func (f *Future[T]) Result() (value T, ok bool, err error) {
	select {
	case <-f.done:
		return f.value, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}

// Get blocks until the future resolves or ctx is done. Giving up on ctx does not
// cancel the underlying request.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ExecuteAsync enqueues req on the transport and returns immediately. Classification,
// decoding and parsing run on the transport's callback goroutine, with the same
// semantics as Execute.
func ExecuteAsync[T any](ctx context.Context, c *Client, req *PreparedRequest, parse Parser[T]) *Future[T] {
	future := newFuture[T]()
	if parse == nil {
		var zero T
		future.resolve(zero, fmt.Errorf("parser is nil"))
		return future
	}

	r, err := req.build(ctx)
	if err != nil {
		var zero T
		future.resolve(zero, fmt.Errorf("build request: %w", err))
		return future
	}
	c.dumpRequest(r.Request)

	c.transport.Enqueue(r, &futureCallback[T]{
		client: c,
		method: req.Method(),
		url:    req.URL(),
		parse:  parse,
		future: future,
	})
	return future
}

type futureCallback[T any] struct {
	client *Client
	method string
	url    string
	parse  Parser[T]
	future *Future[T]
}

func (cb *futureCallback[T]) OnResponse(resp *http.Response) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			cb.future.resolve(zero, &ParseError{Err: fmt.Errorf("process response: %v", r)})
		}
	}()

	cb.client.dumpResponse(resp)
	value, err := processResponse(cb.client, resp, cb.parse)
	cb.future.resolve(value, err)
}

func (cb *futureCallback[T]) OnFailure(err error) {
	var zero T
	cb.future.resolve(zero, &TransportError{Method: cb.method, URL: cb.url, Err: err})
}
