package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker-svr/internal/pipeline"
	"tracker-svr/internal/utilities"
)

type recordingProcessor struct {
	mu     sync.Mutex
	frames []string
	closed int
}

func (r *recordingProcessor) Process(_ context.Context, _ *pipeline.Session, frame string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *recordingProcessor) Close(*pipeline.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
}

func (r *recordingProcessor) snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.frames...), r.closed
}

func TestScanFrames(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("(A1)(B2)\r\n(C3"))
	sc.Split(scanFrames)

	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"(A1)", "(B2)", "\r\n(C3"}, got)
}

func TestServerProcessesFramesInOrder(t *testing.T) {
	proc := &recordingProcessor{}
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New("127.0.0.1:0", proc, utilities.NewRawLog(""), time.Minute, lg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("(027044702512BP00000027044702512HSO)\n(0270447"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("02512BP05X)"))
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		_, closed := proc.snapshot()
		return closed == 1
	}, 2*time.Second, 10*time.Millisecond)

	frames, _ := proc.snapshot()
	assert.Equal(t, []string{"(027044702512BP00000027044702512HSO)", "(027044702512BP05X)"}, frames)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestShutdownClosesOpenConnections(t *testing.T) {
	proc := &recordingProcessor{}
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New("127.0.0.1:0", proc, nil, time.Minute, lg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("(X)"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		frames, _ := proc.snapshot()
		return len(frames) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
	_, closed := proc.snapshot()
	assert.Equal(t, 1, closed)
}
