package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"tracker-svr/internal/observability"
	"tracker-svr/internal/pipeline"
	"tracker-svr/internal/utilities"
)

const (
	DefaultIdleTimeout = 10 * time.Minute
	maxFrameSize       = 64 * 1024
	rawLogPrefix       = "ALLTRACKINGS"
)

type FrameProcessor interface {
	Process(ctx context.Context, s *pipeline.Session, frame string)
	Close(s *pipeline.Session)
}

type TcpServer struct {
	addr        string
	processor   FrameProcessor
	rawLog      *utilities.RawLog
	idleTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

func New(addr string, processor FrameProcessor, rawLog *utilities.RawLog, idleTimeout time.Duration, lg *slog.Logger) *TcpServer {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &TcpServer{
		addr:        addr,
		processor:   processor,
		rawLog:      rawLog,
		idleTimeout: idleTimeout,
		logger:      lg.With("component", "tcp"),
		conns:       map[net.Conn]struct{}{},
	}
}

// Addr devuelve la dirección real de escucha (útil con puerto 0).
func (srv *TcpServer) Addr() net.Addr {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// ListenAndServe acepta conexiones hasta que ctx se cancele; luego cierra las
// conexiones abiertas y espera a sus goroutines.
func (srv *TcpServer) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return fmt.Errorf("error starting TCP server: %w", err)
	}
	srv.mu.Lock()
	srv.listener = listener
	srv.mu.Unlock()

	srv.logger.Info("TCP server listening", "addr", listener.Addr().String())

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				srv.shutdown()
				return nil
			}
			srv.logger.Error("accept error", "err", err)
			continue
		}
		if !srv.track(conn) {
			_ = conn.Close()
			continue
		}

		srv.wg.Add(1)
		go func(c net.Conn) {
			defer srv.wg.Done()
			defer srv.untrack(c)
			srv.HandleConnection(ctx, c)
		}(conn)
	}
}

func (srv *TcpServer) track(c net.Conn) bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.conns == nil {
		return false
	}
	srv.conns[c] = struct{}{}
	return true
}

func (srv *TcpServer) untrack(c net.Conn) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.conns, c)
}

func (srv *TcpServer) shutdown() {
	srv.mu.Lock()
	for c := range srv.conns {
		_ = c.Close()
	}
	srv.conns = nil
	srv.mu.Unlock()
	srv.wg.Wait()
	srv.logger.Info("TCP server stopped")
}

// HandleConnection lee frames delimitados por ')' y los procesa en orden.
func (srv *TcpServer) HandleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	observability.TCPConnections.Inc()
	observability.ActiveConnections.Inc()
	defer observability.ActiveConnections.Dec()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	remote := conn.RemoteAddr()
	session := pipeline.NewSession(conn, remote)
	defer srv.processor.Close(session)
	srv.logger.Debug("connection opened", "remote", remote.String())

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 2048), maxFrameSize)
	scanner.Split(scanFrames)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(srv.idleTimeout))
		if !scanner.Scan() {
			break
		}
		frame := strings.TrimSpace(scanner.Text())
		if frame == "" {
			continue
		}
		if err := srv.rawLog.Write(rawLogPrefix, frame); err != nil {
			srv.logger.Warn("raw log write failed", "err", err)
		}
		srv.processor.Process(ctx, session, frame)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			srv.logger.Info("connection idle, closing", "remote", remote.String())
		} else {
			srv.logger.Warn("read error", "remote", remote.String(), "err", err)
		}
	}
	srv.logger.Debug("connection closed", "remote", remote.String())
}

// scanFrames corta el stream en ')' (incluido). Al EOF, lo que quede es un frame.
func scanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, ')'); i >= 0 {
		return i + 1, data[:i+1], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
