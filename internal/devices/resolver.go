// Package devices resuelve el identificador que envía el tracker a un
// dispositivo conocido, con un cache en memoria coherente entre procesos.
package devices

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tracker-svr/internal/model"
	"tracker-svr/internal/observability"
)

const (
	DefaultTTL = 300 * time.Second

	// prefijo de compatibilidad para identificadores cortos heredados
	legacyPrefix = "000"
)

// Directory entrega el listado completo de dispositivos para (re)poblar el cache.
type Directory interface {
	Devices(ctx context.Context) ([]model.Device, error)
}

// Generation es el marcador de generación del cache. Lo avanza la señal de
// invalidación; cualquier snapshot cargado antes de esa marca queda viejo.
type Generation struct {
	nanos atomic.Int64
}

// Bump avanza la generación a t. Nunca retrocede.
func (g *Generation) Bump(t time.Time) {
	n := t.UnixNano()
	for {
		cur := g.nanos.Load()
		if n <= cur || g.nanos.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (g *Generation) Load() time.Time {
	n := g.nanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// snapshot es inmutable una vez publicado.
type snapshot struct {
	byIMEI   map[string]model.Device
	byID     map[int64]model.Device
	loadedAt time.Time
}

var emptySnapshot = &snapshot{
	byIMEI: map[string]model.Device{},
	byID:   map[int64]model.Device{},
}

type Resolver struct {
	dir    Directory
	gen    *Generation
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	current  atomic.Pointer[snapshot]
	reloadMu sync.Mutex
}

type Option func(*Resolver)

func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(dir Directory, gen *Generation, lg *slog.Logger, opts ...Option) *Resolver {
	if gen == nil {
		gen = &Generation{}
	}
	r := &Resolver{
		dir:    dir,
		gen:    gen,
		ttl:    DefaultTTL,
		logger: lg.With("component", "devices"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.current.Store(emptySnapshot)
	return r
}

// Generation devuelve el marcador compartido con el listener de invalidación.
func (r *Resolver) Generation() *Generation { return r.gen }

// Lookup resuelve el identificador tal cual y, si no existe, con el prefijo "000".
// Un identificador desconocido nunca se registra.
func (r *Resolver) Lookup(ctx context.Context, imei string) (model.Device, bool) {
	snap := r.fresh(ctx, imei, legacyPrefix+imei)
	if d, ok := snap.byIMEI[imei]; ok {
		return d, true
	}
	d, ok := snap.byIMEI[legacyPrefix+imei]
	return d, ok
}

// ResolveByIMEI resuelve solo la forma exacta del identificador.
func (r *Resolver) ResolveByIMEI(ctx context.Context, imei string) (model.Device, bool) {
	d, ok := r.fresh(ctx, imei).byIMEI[imei]
	return d, ok
}

// ResolveByID consulta solo el snapshot vigente; nunca dispara recarga.
func (r *Resolver) ResolveByID(id int64) (model.Device, bool) {
	d, ok := r.current.Load().byID[id]
	return d, ok
}

// Reload fuerza una recarga completa del directorio.
func (r *Resolver) Reload(ctx context.Context) error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()
	_, err := r.reloadLocked(ctx)
	return err
}

// Len es el número de dispositivos del snapshot vigente.
func (r *Resolver) Len() int { return len(r.current.Load().byIMEI) }

// fresh devuelve un snapshot apto para responder por alguno de los identificadores.
func (r *Resolver) fresh(ctx context.Context, imeis ...string) *snapshot {
	seen := r.current.Load()
	if !r.stale(seen, imeis) {
		return seen
	}

	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	// otra goroutine recargó mientras esperábamos el lock
	if cur := r.current.Load(); cur != seen {
		return cur
	}
	snap, err := r.reloadLocked(ctx)
	if err != nil {
		return seen
	}
	return snap
}

func (r *Resolver) stale(snap *snapshot, imeis []string) bool {
	if r.gen.Load().After(snap.loadedAt) {
		return true
	}
	if r.now().Sub(snap.loadedAt) > r.ttl {
		return true
	}
	for _, imei := range imeis {
		if _, ok := snap.byIMEI[imei]; ok {
			return false
		}
	}
	return true
}

func (r *Resolver) reloadLocked(ctx context.Context) (*snapshot, error) {
	// la marca se toma antes de leer: una invalidación durante la lectura fuerza otra recarga
	loadedAt := r.now()

	list, err := r.dir.Devices(ctx)
	if err != nil {
		observability.DirectoryReloads.WithLabelValues("error").Inc()
		r.logger.Error("device directory reload failed, serving previous snapshot",
			"err", err, "devices", len(r.current.Load().byIMEI))
		return nil, err
	}

	snap := &snapshot{
		byIMEI:   make(map[string]model.Device, len(list)),
		byID:     make(map[int64]model.Device, len(list)),
		loadedAt: loadedAt,
	}
	for _, d := range list {
		snap.byIMEI[d.IMEI] = d
		snap.byID[d.ID] = d
	}
	r.current.Store(snap)

	observability.DirectoryReloads.WithLabelValues("ok").Inc()
	observability.DirectoryDevices.Set(float64(len(snap.byIMEI)))
	r.logger.Debug("device directory reloaded", "devices", len(snap.byIMEI))
	return snap, nil
}
