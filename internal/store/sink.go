package store

import (
	"context"
	"errors"
	"time"

	"tracker-svr/internal/dispatcher"
	"tracker-svr/internal/model"
)

// PersistRecorder recibe la identidad asignada a un intervalo recién insertado.
type PersistRecorder interface {
	RecordPersisted(deviceID int64, startTime time.Time, databaseID int64)
}

// History guarda el historial de intervalos.
type History interface {
	Insert(ctx context.Context, p model.Position) (int64, error)
	Update(ctx context.Context, id int64, p model.Position) error
}

// Latest guarda la última posición conocida por dispositivo.
type Latest interface {
	Save(ctx context.Context, p model.Position, dev model.Device) error
}

// Sink es el colaborador de almacenamiento del dispatcher: inserta fixes nuevos,
// actualiza el registro previo en los merges y refresca la última posición.
type Sink struct {
	history  History
	latest   Latest
	recorder PersistRecorder
}

func NewSink(h History, l Latest, recorder PersistRecorder) *Sink {
	return &Sink{history: h, latest: l, recorder: recorder}
}

func (s *Sink) Name() string { return "store" }

func (s *Sink) Deliver(ctx context.Context, d dispatcher.Delivery) error {
	p := d.Position
	var errs []error

	if s.history != nil {
		if d.Merged() {
			id := p.DatabaseID
			if id == 0 {
				id = RecordID(p)
			}
			errs = append(errs, s.history.Update(ctx, id, p))
		} else {
			id, err := s.history.Insert(ctx, p)
			if err == nil && s.recorder != nil {
				s.recorder.RecordPersisted(p.DeviceID, p.StartTime, id)
			}
			errs = append(errs, err)
		}
	}
	if s.latest != nil {
		errs = append(errs, s.latest.Save(ctx, p, d.Device))
	}
	return errors.Join(errs...)
}
