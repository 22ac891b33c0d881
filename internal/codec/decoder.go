// Package codec define el contrato común de los decoders de protocolo y la
// taxonomía de errores de un frame.
package codec

import (
	"context"
	"errors"
	"io"

	"tracker-svr/internal/model"
)

var (
	// ErrUnrecognizedFrame: ningún sub-mensaje coincidió y el comando no es de solo-ack.
	ErrUnrecognizedFrame = errors.New("unrecognized frame")
	// ErrUnknownDevice: el identificador no existe en el directorio (ni con prefijo de compatibilidad).
	ErrUnknownDevice = errors.New("unknown device")
	// ErrInvalidField: un token capturado no pasó su conversión tipada.
	ErrInvalidField = errors.New("invalid field")
)

// Decoder convierte un frame ya delimitado en una posición canónica.
// Devuelve (nil, nil) cuando el frame no produce posición y no es un error
// (p.ej. heartbeats de solo-ack). Los acks se escriben en conn.
type Decoder interface {
	Protocol() string
	Decode(ctx context.Context, conn io.Writer, frame string) (*model.Position, error)
}

// DeviceLookup resuelve el identificador del protocolo a un dispositivo.
type DeviceLookup interface {
	Lookup(ctx context.Context, imei string) (model.Device, bool)
}

// FixStore expone, solo lectura, el último fix aceptado por dispositivo.
type FixStore interface {
	LastKnownFix(deviceID int64) (model.Position, bool)
}

// Kind clasifica el error de decode para logs y métricas.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnrecognizedFrame):
		return "unrecognized"
	case errors.Is(err, ErrUnknownDevice):
		return "unknown_device"
	case errors.Is(err, ErrInvalidField):
		return "invalid_field"
	default:
		return "error"
	}
}
