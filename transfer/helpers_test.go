package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bitrise-io/go-driveclient/internal"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind    string
	current int64
	total   int64
	err     error
}

type recordingCallback struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingCallback) OnUpdate(current, total int64) {
	r.record(event{kind: "update", current: current, total: total})
}

func (r *recordingCallback) OnComplete(transferred int64) {
	r.record(event{kind: "complete", current: transferred})
}

func (r *recordingCallback) OnFailure(err error) {
	r.record(event{kind: "failure", err: err})
}

func (r *recordingCallback) record(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingCallback) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recordingCallback) count(kind string) int {
	n := 0
	for _, e := range r.all() {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (r *recordingCallback) last() event {
	events := r.all()
	if len(events) == 0 {
		return event{}
	}
	return events[len(events)-1]
}

// requireOrderedUpdates checks that updates never go backwards, never exceed the
// total and that exactly one terminal event comes last.
func requireOrderedUpdates(t *testing.T, events []event) {
	t.Helper()
	require.NotEmpty(t, events)
	var previous int64
	for i, e := range events {
		if i == len(events)-1 {
			require.Contains(t, []string{"complete", "failure"}, e.kind)
			return
		}
		require.Equal(t, "update", e.kind, "event %d", i)
		require.GreaterOrEqual(t, e.current, previous)
		require.LessOrEqual(t, e.current, e.total)
		previous = e.current
	}
}

type fakeOS struct {
	internal.RealOS
	mkdirErr    error
	openFileErr error
	removeErr   error
	open        func(name string) (internal.File, error)

	mu      sync.Mutex
	removed []string
}

func (f *fakeOS) MkdirAll(path string, perm os.FileMode) error {
	if f.mkdirErr != nil {
		return f.mkdirErr
	}
	return f.RealOS.MkdirAll(path, perm)
}

func (f *fakeOS) Open(name string) (internal.File, error) {
	if f.open != nil {
		return f.open(name)
	}
	return f.RealOS.Open(name)
}

func (f *fakeOS) OpenFile(name string, flag int, perm os.FileMode) (internal.File, error) {
	if f.openFileErr != nil {
		return nil, f.openFileErr
	}
	return f.RealOS.OpenFile(name, flag, perm)
}

func (f *fakeOS) Remove(name string) error {
	f.mu.Lock()
	f.removed = append(f.removed, name)
	f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.RealOS.Remove(name)
}

// flakyFile fails every read after the first failAfter ones.
type flakyFile struct {
	internal.File
	failAfter int
	err       error

	reads  int
	closed bool
}

func (f *flakyFile) Read(p []byte) (int, error) {
	if f.reads >= f.failAfter {
		return 0, f.err
	}
	f.reads++
	return f.File.Read(p)
}

func (f *flakyFile) Close() error {
	f.closed = true
	return f.File.Close()
}

type recordingLogger struct {
	log.Logger

	mu    sync.Mutex
	lines []string
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{Logger: log.NewLogger()}
}

func (l *recordingLogger) Printf(format string, v ...interface{}) { l.record("print", format, v) }
func (l *recordingLogger) Donef(format string, v ...interface{})  { l.record("done", format, v) }
func (l *recordingLogger) Errorf(format string, v ...interface{}) { l.record("error", format, v) }
func (l *recordingLogger) Warnf(format string, v ...interface{})  { l.record("warn", format, v) }

func (l *recordingLogger) record(level, format string, v []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+": "+fmt.Sprintf(format, v...))
}

func (l *recordingLogger) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func payload(size int) []byte {
	b := make([]byte, size)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func smallChunks(size int) Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = size
	return cfg
}
