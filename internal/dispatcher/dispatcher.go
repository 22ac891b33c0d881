// Package dispatcher reparte las posiciones aceptadas a los sinks de forma
// asíncrona. Cada sink tiene su propia cola y goroutine: un sink lento o caído
// no frena a los demás ni al pipeline.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tracker-svr/internal/filter"
	"tracker-svr/internal/model"
	"tracker-svr/internal/observability"
)

const (
	DefaultQueueSize = 1024
	deliverTimeout   = 5 * time.Second
)

// Delivery es una posición ya filtrada junto con su dispositivo.
type Delivery struct {
	Position model.Position
	Device   model.Device
	Outcome  filter.Outcome
}

// Merged indica que la posición extiende un registro ya persistido.
func (d Delivery) Merged() bool { return d.Outcome == filter.Merged }

type Sink interface {
	Name() string
	Deliver(ctx context.Context, d Delivery) error
}

type worker struct {
	sink  Sink
	queue chan Delivery
}

type Dispatcher struct {
	logger  *slog.Logger
	workers []*worker

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(lg *slog.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	d := &Dispatcher{logger: lg.With("component", "dispatcher")}
	for _, s := range sinks {
		d.workers = append(d.workers, &worker{sink: s, queue: make(chan Delivery, queueSize)})
	}
	return d
}

// Start arranca una goroutine por sink. ctx acota cada entrega.
func (d *Dispatcher) Start(ctx context.Context) {
	for _, w := range d.workers {
		d.wg.Add(1)
		go d.run(ctx, w)
		d.logger.Info("sink started", "sink", w.sink.Name())
	}
}

// Dispatch encola la entrega en cada sink sin bloquear. Si una cola está llena
// la entrega a ese sink se descarta.
func (d *Dispatcher) Dispatch(del Delivery) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	for _, w := range d.workers {
		select {
		case w.queue <- del:
		default:
			observability.DeliveriesDropped.WithLabelValues(w.sink.Name()).Inc()
			d.logger.Warn("sink queue full, delivery dropped",
				"sink", w.sink.Name(), "device_id", del.Position.DeviceID)
		}
	}
}

// Close deja de aceptar entregas y espera a que las colas se vacíen.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, w := range d.workers {
		close(w.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, w *worker) {
	defer d.wg.Done()
	name := w.sink.Name()
	for del := range w.queue {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
		err := w.sink.Deliver(dctx, del)
		cancel()
		if err != nil {
			observability.DeliveryErrors.WithLabelValues(name).Inc()
			d.logger.Warn("delivery failed", "sink", name, "device_id", del.Position.DeviceID, "err", err)
			continue
		}
		observability.DeliveriesSent.WithLabelValues(name).Inc()
	}
}
