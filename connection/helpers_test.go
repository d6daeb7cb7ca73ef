package connection

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bitrise-io/go-driveclient/auth"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed int32
}

func (b *trackingBody) Close() error {
	atomic.AddInt32(&b.closed, 1)
	return nil
}

func (b *trackingBody) isClosed() bool {
	return atomic.LoadInt32(&b.closed) > 0
}

func newResponse(status int, header http.Header, body string) (*http.Response, *trackingBody) {
	if header == nil {
		header = http.Header{}
	}
	tb := &trackingBody{Reader: strings.NewReader(body)}
	return &http.Response{
		StatusCode:    status,
		Header:        header,
		Body:          tb,
		ContentLength: int64(len(body)),
	}, tb
}

type fakeTransport struct {
	respond func(req *retryablehttp.Request) (*http.Response, error)

	mu       sync.Mutex
	requests []*retryablehttp.Request
}

func (f *fakeTransport) record(req *retryablehttp.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeTransport) Execute(req *retryablehttp.Request) (*http.Response, error) {
	f.record(req)
	return f.respond(req)
}

func (f *fakeTransport) Enqueue(req *retryablehttp.Request, callback ResponseCallback) {
	f.record(req)
	go func() {
		resp, err := f.respond(req)
		if err != nil {
			callback.OnFailure(err)
			return
		}
		callback.OnResponse(resp)
	}()
}

type countingManager struct {
	endpoint string
	err      error
	calls    int32
}

func (m *countingManager) Token() (string, error) {
	n := atomic.AddInt32(&m.calls, 1)
	if m.err != nil {
		return "", m.err
	}
	return fmt.Sprintf("Bearer token-%d", n), nil
}

func (m *countingManager) AuthenticatedEndpoint() string {
	return m.endpoint
}

type recordingLogger struct {
	log.Logger
	mu    sync.Mutex
	debug []string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{Logger: log.NewLogger()}
}

func (l *recordingLogger) Debugf(format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) debugLines() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.debug, "\n")
}

func newTestFactory(t *testing.T, endpoint string) *RequestFactory {
	t.Helper()
	manager, err := auth.NewStaticManager(endpoint, "secret-token")
	require.NoError(t, err)
	return NewRequestFactory(manager, DefaultConfig())
}

func newTestClient(transport Transport) *Client {
	return NewClient(transport, DefaultConfig(), log.NewLogger())
}

type item struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
