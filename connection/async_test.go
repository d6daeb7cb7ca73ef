package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteAsync_EquivalentToExecute(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		header  http.Header
		body    string
		respErr error
	}{
		{name: "200 parsed", status: 200, body: `{"id":"01ABC","name":"a.txt"}`},
		{name: "200 syntax error", status: 200, body: `{"id":`},
		{name: "403", status: 403, body: "accessDenied"},
		{name: "429 with hint", status: 429, header: http.Header{"Retry-After": {"60"}}},
		{name: "429 without hint", status: 429},
		{name: "503", status: 503},
		{name: "302", status: 302},
		{name: "transport failure", respErr: errors.New("connection reset by peer")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &fakeTransport{respond: func(*retryablehttp.Request) (*http.Response, error) {
				if tt.respErr != nil {
					return nil, tt.respErr
				}
				resp, _ := newResponse(tt.status, tt.header.Clone(), tt.body)
				return resp, nil
			}}
			client := newTestClient(transport)
			req, err := newTestFactory(t, "https://graph.example.com").NewRequest(http.MethodGet, "/me/drive/items/01ABC")
			require.NoError(t, err)

			syncValue, syncErr := Execute(context.Background(), client, req, JSONParser[item]())
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			asyncValue, asyncErr := ExecuteAsync(ctx, client, req, JSONParser[item]()).Get(ctx)

			assert.Equal(t, syncValue, asyncValue)
			assert.Equal(t, reflect.TypeOf(syncErr), reflect.TypeOf(asyncErr))
			if syncErr != nil {
				assert.Equal(t, syncErr.Error(), asyncErr.Error())
			}
			syncHint, syncOK := RetryAfter(syncErr)
			asyncHint, asyncOK := RetryAfter(asyncErr)
			assert.Equal(t, syncOK, asyncOK)
			assert.Equal(t, syncHint, asyncHint)
		})
	}
}

type blockingTransport struct {
	release chan struct{}
}

func (b *blockingTransport) Execute(*retryablehttp.Request) (*http.Response, error) {
	return nil, errors.New("not supported")
}

func (b *blockingTransport) Enqueue(_ *retryablehttp.Request, callback ResponseCallback) {
	go func() {
		<-b.release
		resp, _ := newResponse(http.StatusOK, nil, `{"id":"late"}`)
		callback.OnResponse(resp)
	}()
}

func TestExecuteAsync_DoesNotBlockCaller(t *testing.T) {
	transport := &blockingTransport{release: make(chan struct{})}
	req, err := newTestFactory(t, "https://graph.example.com").NewRequest(http.MethodGet, "/me")
	require.NoError(t, err)

	future := ExecuteAsync(context.Background(), newTestClient(transport), req, JSONParser[item]())

	select {
	case <-future.Done():
		t.Fatal("future resolved before the transport responded")
	default:
	}

	close(transport.release)
	got, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "late", got.ID)
}

type silentTransport struct{}

func (silentTransport) Execute(*retryablehttp.Request) (*http.Response, error) {
	return nil, errors.New("not supported")
}

func (silentTransport) Enqueue(*retryablehttp.Request, ResponseCallback) {}

func TestFuture_GetHonoursContext(t *testing.T) {
	req, err := newTestFactory(t, "https://graph.example.com").NewRequest(http.MethodGet, "/me")
	require.NoError(t, err)
	future := ExecuteAsync(context.Background(), newTestClient(silentTransport{}), req, JSONParser[item]())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = future.Get(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	select {
	case <-future.Done():
		t.Fatal("future must stay pending while the transport is silent")
	default:
	}
}

func TestFuture_ResolvesOnce(t *testing.T) {
	future := newFuture[int]()
	future.resolve(1, nil)
	future.resolve(2, errors.New("late"))

	got, err := future.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestExecuteAsync_PanicInParserCompletesExceptionally(t *testing.T) {
	transport := &fakeTransport{respond: func(*retryablehttp.Request) (*http.Response, error) {
		resp, _ := newResponse(http.StatusOK, nil, "{}")
		return resp, nil
	}}
	req, err := newTestFactory(t, "https://graph.example.com").NewRequest(http.MethodGet, "/me")
	require.NoError(t, err)

	_, err = ExecuteAsync(context.Background(), newTestClient(transport), req, func(io.Reader) (item, error) {
		panic("nil map")
	}).Get(context.Background())

	var parseErr *ParseError
	assert.True(t, errors.As(err, &parseErr))
}

func TestExecuteAsync_RealTransport(t *testing.T) {
	svr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"id":"%s"}`, r.URL.Path)
	}))
	defer svr.Close()

	client := newServerClient(t, DefaultConfig())
	factory := newTestFactory(t, svr.URL)

	futures := make([]*Future[item], 0, 5)
	for i := 0; i < 5; i++ {
		req, err := factory.NewRequest(http.MethodGet, fmt.Sprintf("/items/%d", i))
		require.NoError(t, err)
		futures = append(futures, ExecuteAsync(context.Background(), client, req, JSONParser[item]()))
	}

	for i, future := range futures {
		got, err := future.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("/items/%d", i), got.ID)
	}
}

func TestFuture_Result(t *testing.T) {
	future := newFuture[string]()

	_, ok, err := future.Result()
	assert.False(t, ok)
	assert.NoError(t, err)

	future.resolve("value", nil)
	got, ok, err := future.Result()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, "value", got)
}
