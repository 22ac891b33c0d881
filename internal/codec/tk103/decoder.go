// Package tk103 decodifica la familia de trackers TK103 (frames de texto
// entre paréntesis con varios sub-mensajes multiplexados).
package tk103

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tracker-svr/internal/codec"
	"tracker-svr/internal/model"
	"tracker-svr/internal/observability"
	"tracker-svr/internal/pattern"
)

const (
	Protocol = "tk103"

	speedFactor = 0.539957

	idLength      = 12
	commandLength = 4
)

// Comandos que solo requieren ack y nunca traen posición.
var ackOnlyCommands = map[string]bool{
	"BP00": true,
	"BP05": true,
}

// message es el resultado puro de un sub-mensaje: un fix propio o solo telemetría.
type message struct {
	fix    bool
	time   time.Time // en mensajes sin fix, cero = reloj de pared
	valid  bool
	lat    float64
	lon    float64
	speed  float64
	course float64
}

type subMessage struct {
	name    string
	pattern *pattern.Pattern
	decode  func(d *Decoder, p *pattern.Parser, sentence string, info *model.ExtendedInfo) (message, error)
}

// Orden de prueba: gana el primero que coincide.
var subMessages = []subMessage{
	{"battery", batteryPattern, (*Decoder).decodeBattery},
	{"network", networkPattern, (*Decoder).decodeNetwork},
	{"alarm", alarmPattern, (*Decoder).decodeAlarm},
	{"obd", obdPattern, (*Decoder).decodeOBD},
	{"location", locationPattern, (*Decoder).decodeLocation},
}

type Decoder struct {
	devices codec.DeviceLookup
	fixes   codec.FixStore
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Decoder)

// WithClock reemplaza el reloj de pared (tests).
func WithClock(now func() time.Time) Option {
	return func(d *Decoder) { d.now = now }
}

func New(devices codec.DeviceLookup, fixes codec.FixStore, lg *slog.Logger, opts ...Option) *Decoder {
	d := &Decoder{
		devices: devices,
		fixes:   fixes,
		logger:  lg.With("protocol", Protocol),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Decoder) Protocol() string { return Protocol }

func (d *Decoder) Decode(ctx context.Context, conn io.Writer, frame string) (*model.Position, error) {
	sentence := strings.TrimSpace(frame)
	if begin := strings.IndexByte(sentence, '('); begin != -1 {
		sentence = sentence[begin+1:]
	}
	sentence = strings.TrimSuffix(sentence, ")")

	var command string
	if len(sentence) >= idLength+commandLength {
		id := sentence[:idLength]
		command = sentence[idLength : idLength+commandLength]
		if conn != nil {
			d.acknowledge(conn, id, command, sentence)
		}
	}

	for _, sm := range subMessages {
		p, ok := sm.pattern.Match(sentence)
		if !ok {
			continue
		}
		return d.decodeMessage(ctx, sm, p, sentence)
	}

	if ackOnlyCommands[command] {
		return nil, nil
	}
	return nil, fmt.Errorf("tk103: %w: %q", codec.ErrUnrecognizedFrame, frame)
}

// acknowledge responde heartbeats y logins aunque el frame no traiga posición.
func (d *Decoder) acknowledge(conn io.Writer, id, command, sentence string) {
	var ack string
	switch command {
	case "BP00":
		ack = "(" + id + "AP01" + sentence[len(sentence)-3:] + ")"
	case "BP05":
		ack = "(" + id + "AP05)"
	default:
		return
	}
	if _, err := conn.Write([]byte(ack)); err != nil {
		d.logger.Warn("ack write failed", "id", id, "command", command, "err", err)
		return
	}
	observability.AcksWritten.WithLabelValues(Protocol, command).Inc()
}

func (d *Decoder) decodeMessage(ctx context.Context, sm subMessage, p *pattern.Parser, sentence string) (*model.Position, error) {
	imei := p.NextString()
	device, ok := d.devices.Lookup(ctx, imei)
	if !ok {
		return nil, fmt.Errorf("tk103: imei %s: %w", imei, codec.ErrUnknownDevice)
	}

	info := model.NewExtendedInfo(Protocol)
	msg, err := sm.decode(d, p, sentence, info)
	if err == nil {
		err = p.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("tk103 %s: %w: %v (frame %q)", sm.name, codec.ErrInvalidField, err, sentence)
	}

	position := &model.Position{DeviceID: device.ID, Protocol: Protocol}
	if msg.fix {
		position.Time = msg.time
		position.StartTime = msg.time
		position.Valid = msg.valid
		position.Latitude = msg.lat
		position.Longitude = msg.lon
		position.Speed = msg.speed
		position.Course = msg.course
	} else {
		d.carryForward(position, msg.time)
	}
	position.ExtendedInfo = info.String()
	return position, nil
}

// carryForward completa un mensaje sin GPS con el último fix aceptado del dispositivo.
func (d *Decoder) carryForward(position *model.Position, deviceTime time.Time) {
	if last, ok := d.fixes.LastKnownFix(position.DeviceID); ok {
		position.CopyFix(last)
	} else {
		position.Valid = true
		position.Time = model.Epoch
		position.StartTime = model.Epoch
	}
	if !deviceTime.IsZero() {
		position.Time = deviceTime
	} else {
		position.Time = d.now().UTC()
	}
}

/* =======================================================================
                          SUB-MESSAGE HANDLERS
======================================================================= */

func (d *Decoder) decodeBattery(p *pattern.Parser, _ string, info *model.ExtendedInfo) (message, error) {
	date := new(codec.DateBuilder).
		SetDateReverse(p.NextInt(), p.NextInt(), p.NextInt()).
		SetTime(p.NextInt(), p.NextInt(), p.NextInt())

	// 65535 = no reportado
	if level := p.NextInt(); level != 65535 {
		info.Set("batteryLevel", level)
	}
	if battery := p.NextInt(); battery != 65535 {
		info.Set("battery", battery)
	}
	if power := p.NextInt(); power != 65535 {
		info.Set("power", power)
	}
	return message{time: date.Date()}, nil
}

func (d *Decoder) decodeNetwork(p *pattern.Parser, _ string, info *model.ExtendedInfo) (message, error) {
	info.Set("mcc", p.NextInt())
	info.Set("mnc", p.NextInt())
	info.Set("lac", p.NextIntBase(16))
	info.Set("cid", p.NextIntBase(16))
	return message{}, nil
}

func (d *Decoder) decodeAlarm(p *pattern.Parser, _ string, info *model.ExtendedInfo) (message, error) {
	info.Set("alarm", AlarmFrameType(p.NextInt()))

	date := new(codec.DateBuilder).
		SetDateReverse(p.NextInt(), p.NextInt(), p.NextInt()).
		SetTime(p.NextInt(), p.NextInt(), p.NextInt())

	msg := message{fix: true, time: date.Date()}
	msg.valid = p.NextString() == "A"
	msg.lat = p.NextCoordinate()
	msg.lon = p.NextCoordinate()
	msg.speed = p.NextDouble() * speedFactor
	msg.course = p.NextDouble()

	if status, ok := p.Next(); ok {
		if err := setStatusBits(info, status); err != nil {
			return message{}, err
		}
	}
	return msg, nil
}

func (d *Decoder) decodeOBD(p *pattern.Parser, _ string, info *model.ExtendedInfo) (message, error) {
	date := new(codec.DateBuilder).
		SetDateReverse(p.NextInt(), p.NextInt(), p.NextInt()).
		SetTime(p.NextInt(), p.NextInt(), p.NextInt())

	payload := p.NextString()
	if err := decodeOBD(payload, info); err != nil {
		// solo se aborta el sub-decode OBD; el frame sigue siendo válido
		d.logger.Warn("obd decode aborted", "err", err)
	}
	return message{time: date.Date()}, nil
}

func (d *Decoder) decodeLocation(p *pattern.Parser, sentence string, info *model.ExtendedInfo) (message, error) {
	if alarm := strings.Index(sentence, "BO01"); alarm != -1 && alarm+5 <= len(sentence) {
		if code, err := strconv.Atoi(sentence[alarm+4 : alarm+5]); err == nil {
			info.Set("alarm", MarkerAlarmType(code))
		}
	}

	date := new(codec.DateBuilder)
	if _, reverse := p.Next(); reverse {
		date.SetDateReverse(p.NextInt(), p.NextInt(), p.NextInt())
	} else {
		date.SetDate(p.NextInt(), p.NextInt(), p.NextInt())
	}

	msg := message{fix: true}
	msg.valid = p.NextString() == "A"
	msg.lat = p.NextCoordinate()
	msg.lon = p.NextCoordinate()
	msg.speed = p.NextDouble() * speedFactor

	date.SetTime(p.NextInt(), p.NextInt(), p.NextInt())
	msg.time = date.Date()

	msg.course = p.NextDouble()

	if status, ok := p.Next(); ok {
		if err := setStatusBits(info, status); err != nil {
			return message{}, err
		}
	}
	if status, ok := p.Next(); ok {
		info.Set("status", status)
	}

	if p.HasNext() {
		info.Set("odometer", p.NextLongBase(16))
	}
	return msg, nil
}

// setStatusBits: bit 0 invertido = cargando, bit 1 = ignición.
func setStatusBits(info *model.ExtendedInfo, status string) error {
	word, err := statusWord(status)
	if err != nil {
		return fmt.Errorf("status %q: %w", status, err)
	}
	info.Set("status", status)
	info.Set("charging", !bit(word, 0))
	info.Set("ignition", bit(word, 1))
	return nil
}
