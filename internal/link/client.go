package link

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"tracker-svr/internal/dispatcher"
)

var ErrNotConnected = errors.New("link: not connected")

// Client mantiene el enlace TCP hacia socket-tcp-proxy y le envía NDJSON.
type Client struct {
	addr   string
	logger *slog.Logger

	dialRetry time.Duration
	reconnect time.Duration

	mu   sync.Mutex
	conn net.Conn
}

func NewClient(addr string, lg *slog.Logger) *Client {
	return &Client{
		addr:      addr,
		logger:    lg.With("component", "link"),
		dialRetry: 5 * time.Second,
		reconnect: 2 * time.Second,
	}
}

// -------------------------------------------------------------------
//                        LOOP DE CONEXIÓN
// -------------------------------------------------------------------

// Run conecta y reconecta hasta que ctx se cancele.
func (l *Client) Run(ctx context.Context) {
	var d net.Dialer
	for {
		c, err := d.DialContext(ctx, "tcp", l.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Error("dial failed", "addr", l.addr, "err", err)
			if !sleep(ctx, l.dialRetry) {
				return
			}
			continue
		}

		l.setConn(c)
		l.logger.Info("connected", "remote", c.RemoteAddr().String())

		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		// leer en este hilo hasta que se caiga
		l.readLoop(c)
		stop()

		l.clearConn(c)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("connection closed, reconnecting...")
		if !sleep(ctx, l.reconnect) {
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Client) setConn(c net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = c
}

func (l *Client) clearConn(c net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == c {
		_ = l.conn.Close()
		l.conn = nil
	}
}

// Connected indica si hay un enlace activo.
func (l *Client) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// -------------------------------------------------------------------
//                           LECTURA
// -------------------------------------------------------------------

func (l *Client) readLoop(c net.Conn) {
	r := bufio.NewScanner(c)
	for r.Scan() {
		// por ahora el proxy no envía comandos; solo se registran
		l.logger.Info("incoming line", "line", r.Text())
	}
	if err := r.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		l.logger.Warn("read error", "err", err)
	}
}

// -------------------------------------------------------------------
//                          ENVÍO NDJSON
// -------------------------------------------------------------------

func (l *Client) sendNDJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	// el lock serializa las escrituras: una línea nunca se intercala con otra
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return ErrNotConnected
	}
	_, err = l.conn.Write(b)
	return err
}

type deviceConnectPayload struct {
	DeviceConnect bool   `json:"device_connect"`
	IMEI          string `json:"imei"`
	DeviceID      int64  `json:"device_id"`
	Protocol      string `json:"protocol,omitempty"`
	RemoteIP      string `json:"remote_ip,omitempty"`
	RemotePort    int    `json:"remote_port,omitempty"`
}

type deviceDisconnectPayload struct {
	DeviceDisconnect bool   `json:"device_disconnect"`
	IMEI             string `json:"imei"`
	DeviceID         int64  `json:"device_id"`
}

// -------------------------------------------------------------------
//                 FUNCIONES PÚBLICAS PARA EL RESTO
// -------------------------------------------------------------------

// NotifyDevice envía device_connect o device_disconnect según info.State.
func (l *Client) NotifyDevice(info DeviceInfo) {
	var pl any
	switch info.State {
	case DeviceStateConnect:
		pl = deviceConnectPayload{
			DeviceConnect: true,
			IMEI:          info.IMEI,
			DeviceID:      info.DeviceID,
			Protocol:      info.Protocol,
			RemoteIP:      info.RemoteIP,
			RemotePort:    info.RemotePort,
		}
	case DeviceStateDisconnect:
		pl = deviceDisconnectPayload{DeviceDisconnect: true, IMEI: info.IMEI, DeviceID: info.DeviceID}
	default:
		return
	}
	if err := l.sendNDJSON(pl); err != nil {
		l.logger.Warn("send device event failed", "state", info.State.String(), "imei", info.IMEI, "err", err)
	}
}

func (l *Client) Name() string { return "link" }

// Deliver envía la posición como registro de tracking.
func (l *Client) Deliver(_ context.Context, d dispatcher.Delivery) error {
	if err := l.sendNDJSON(NewTracking(d)); err != nil {
		return fmt.Errorf("send tracking %s: %w", d.Device.IMEI, err)
	}
	return nil
}
