// Package pipeline orquesta, por frame, decode → filtro → dispatch.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"

	"tracker-svr/internal/codec"
	"tracker-svr/internal/dispatcher"
	"tracker-svr/internal/filter"
	"tracker-svr/internal/link"
	"tracker-svr/internal/model"
	"tracker-svr/internal/observability"
)

type DeviceResolver interface {
	ResolveByID(id int64) (model.Device, bool)
}

type PositionFilter interface {
	Decide(p *model.Position) filter.Decision
}

type Dispatcher interface {
	Dispatch(d dispatcher.Delivery)
}

// SessionObserver recibe los eventos de sesión (dispositivo visto / desconectado).
type SessionObserver interface {
	NotifyDevice(info link.DeviceInfo)
}

type Processor struct {
	decoder  codec.Decoder
	devices  DeviceResolver
	filter   PositionFilter
	out      Dispatcher
	observer SessionObserver
	logger   *slog.Logger
}

type Option func(*Processor)

func WithSessionObserver(o SessionObserver) Option {
	return func(p *Processor) { p.observer = o }
}

func New(dec codec.Decoder, devices DeviceResolver, f PositionFilter, out Dispatcher, lg *slog.Logger, opts ...Option) *Processor {
	p := &Processor{
		decoder: dec,
		devices: devices,
		filter:  f,
		out:     out,
		logger:  lg.With("component", "pipeline", "protocol", dec.Protocol()),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Session es el estado de una conexión. No es seguro para uso concurrente:
// los frames de una conexión se procesan en orden, en una sola goroutine.
type Session struct {
	conn       io.Writer
	remoteIP   string
	remotePort int
	devices    map[int64]model.Device
}

func NewSession(conn io.Writer, remote net.Addr) *Session {
	s := &Session{conn: conn, devices: map[int64]model.Device{}}
	if tcp, ok := remote.(*net.TCPAddr); ok {
		s.remoteIP, s.remotePort = tcp.IP.String(), tcp.Port
	}
	return s
}

// Process decodifica, filtra y despacha un frame. Nunca devuelve error: los
// frames inválidos se registran y se descartan.
func (p *Processor) Process(ctx context.Context, s *Session, frame string) {
	start := time.Now()
	protocol := p.decoder.Protocol()
	observability.FramesRecv.WithLabelValues(protocol).Inc()

	pos, err := p.decoder.Decode(ctx, s.conn, frame)
	kind := codec.Kind(err)
	observability.DecodeResults.WithLabelValues(protocol, kind).Inc()
	if err != nil {
		p.logDecodeError(kind, frame, err)
		return
	}
	if pos == nil {
		return
	}

	dev, ok := p.devices.ResolveByID(pos.DeviceID)
	if !ok {
		dev = model.Device{ID: pos.DeviceID}
	}
	p.observe(s, dev)

	decision := p.filter.Decide(pos)
	observability.ObserveDecodeLatency(start)
	if !decision.Forwarded() {
		return
	}

	p.out.Dispatch(dispatcher.Delivery{Position: *pos, Device: dev, Outcome: decision.Outcome})
}

func (p *Processor) logDecodeError(kind, frame string, err error) {
	switch kind {
	case "unrecognized", "invalid_field":
		p.logger.Warn("frame dropped", "kind", kind, "frame", frame, "err", err)
	case "unknown_device":
		p.logger.Warn("frame dropped", "kind", kind, "err", err)
	default:
		p.logger.Error("frame dropped", "kind", kind, "frame", frame, "err", err)
	}
}

func (p *Processor) observe(s *Session, dev model.Device) {
	if _, seen := s.devices[dev.ID]; seen {
		return
	}
	s.devices[dev.ID] = dev
	p.logger.Info("device online", "device_id", dev.ID, "imei", dev.IMEI, "remote_ip", s.remoteIP)
	if p.observer != nil {
		p.observer.NotifyDevice(link.DeviceInfo{
			IMEI:       dev.IMEI,
			DeviceID:   dev.ID,
			Protocol:   p.decoder.Protocol(),
			RemoteIP:   s.remoteIP,
			RemotePort: s.remotePort,
			State:      link.DeviceStateConnect,
		})
	}
}

// Close cierra la sesión y avisa la desconexión de los dispositivos vistos.
func (p *Processor) Close(s *Session) {
	for _, dev := range s.devices {
		p.logger.Info("device offline", "device_id", dev.ID, "imei", dev.IMEI)
		if p.observer != nil {
			p.observer.NotifyDevice(link.DeviceInfo{IMEI: dev.IMEI, DeviceID: dev.ID, State: link.DeviceStateDisconnect})
		}
	}
	clear(s.devices)
}
