// Package filter decide por dispositivo si una posición es un fix nuevo, una
// extensión del último fix aceptado o ruido que se descarta.
package filter

import (
	"log/slog"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"tracker-svr/internal/model"
	"tracker-svr/internal/observability"
)

type Config struct {
	Invalid   bool          // descarta valid=false
	Zero      bool          // descarta (0,0)
	Duplicate bool          // descarta mismo tiempo + mismo extended info
	Distance  float64       // metros; 0 = sin compuerta de movimiento
	Limit     time.Duration // 0 = sin aceptación forzada por tiempo
}

type Outcome int

const (
	Rejected Outcome = iota
	Accepted
	Merged
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	case Merged:
		return "merged"
	default:
		return "unknown"
	}
}

// Decision es el resultado del filtro para una posición.
type Decision struct {
	Outcome Outcome
	Reason  string
}

// Forwarded indica si la posición debe llegar a los sinks.
func (d Decision) Forwarded() bool { return d.Outcome != Rejected }

const (
	ReasonInvalid     = "invalid"
	ReasonZero        = "zero"
	ReasonDuplicate   = "duplicate"
	ReasonFirst       = "first"
	ReasonTimeLimit   = "time_limit"
	ReasonMoved       = "moved"
	ReasonInfoChanged = "info_changed"
	ReasonStationary  = "stationary"
)

// Engine guarda el último fix aceptado por dispositivo. Las actualizaciones se
// serializan por shard, nunca globalmente.
type Engine struct {
	cfg    Config
	last   cmap.ConcurrentMap[int64, model.Position]
	logger *slog.Logger
}

func shardOf(id int64) uint32 {
	// FNV-1a sobre el id
	h := uint32(2166136261)
	for i := 0; i < 8; i++ {
		h ^= uint32(byte(id >> (8 * i)))
		h *= 16777619
	}
	return h
}

func New(cfg Config, lg *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		last:   cmap.NewWithCustomShardingFunction[int64, model.Position](shardOf),
		logger: lg.With("component", "filter"),
	}
}

// Decide evalúa p contra el último fix del dispositivo. En un Merged, p recibe
// StartTime y DatabaseID del fix previo; un Accepted con historia abre un
// intervalo nuevo (StartTime = Time, sin DatabaseID). Accepted y Merged
// reemplazan el último fix por p; Rejected no lo toca.
func (e *Engine) Decide(p *model.Position) Decision {
	if reason, ok := e.hardReject(p); ok {
		return e.record(p, Decision{Outcome: Rejected, Reason: reason})
	}

	var decision Decision
	e.last.Upsert(p.DeviceID, model.Position{}, func(exist bool, last, _ model.Position) model.Position {
		if exist && e.cfg.Duplicate && isDuplicate(p, &last) {
			decision = Decision{Outcome: Rejected, Reason: ReasonDuplicate}
			return last
		}
		decision = e.classify(p, &last, exist)
		switch {
		case decision.Outcome == Merged:
			p.StartTime = last.StartTime
			p.DatabaseID = last.DatabaseID
		case exist:
			// fix nuevo: abre su propio intervalo aunque venga de un carry-forward
			p.StartTime = p.Time
			p.DatabaseID = 0
		}
		return *p
	})
	return e.record(p, decision)
}

func (e *Engine) hardReject(p *model.Position) (string, bool) {
	switch {
	case e.cfg.Invalid && !p.Valid:
		return ReasonInvalid, true
	case e.cfg.Zero && p.Latitude == 0 && p.Longitude == 0:
		return ReasonZero, true
	}
	return "", false
}

func (e *Engine) classify(p, last *model.Position, exist bool) Decision {
	if !exist {
		return Decision{Outcome: Accepted, Reason: ReasonFirst}
	}
	if e.cfg.Limit > 0 && p.Time.Sub(last.Time) > e.cfg.Limit {
		return Decision{Outcome: Accepted, Reason: ReasonTimeLimit}
	}
	if e.cfg.Distance == 0 ||
		Distance(p.Latitude, p.Longitude, last.Latitude, last.Longitude) >= e.cfg.Distance {
		return Decision{Outcome: Accepted, Reason: ReasonMoved}
	}
	if infoChanged(last.ExtendedInfo, p.ExtendedInfo) {
		return Decision{Outcome: Accepted, Reason: ReasonInfoChanged}
	}
	return Decision{Outcome: Merged, Reason: ReasonStationary}
}

func (e *Engine) record(p *model.Position, d Decision) Decision {
	observability.FilterDecisions.WithLabelValues(d.Outcome.String(), d.Reason).Inc()
	if d.Outcome == Rejected {
		e.logger.Debug("position filtered", "device_id", p.DeviceID, "reason", d.Reason, "time", p.Time)
	}
	return d
}

// isDuplicate: mismo tiempo y extended info ausente o igual sin distinguir mayúsculas.
func isDuplicate(p, last *model.Position) bool {
	if !p.Time.Equal(last.Time) {
		return false
	}
	return p.ExtendedInfo == "" || strings.EqualFold(p.ExtendedInfo, last.ExtendedInfo)
}

func infoChanged(last, current string) bool {
	if last == "" && current == "" {
		return false
	}
	return last == "" || !strings.EqualFold(last, current)
}

// LastKnownFix devuelve una copia del último fix aceptado o extendido.
func (e *Engine) LastKnownFix(deviceID int64) (model.Position, bool) {
	return e.last.Get(deviceID)
}

// RecordPersisted asocia el id de almacenamiento al último fix si sigue siendo
// el mismo intervalo (mismo StartTime). Las entradas nunca se eliminan, así que
// el Has previo evita insertar un fix vacío.
func (e *Engine) RecordPersisted(deviceID int64, startTime time.Time, databaseID int64) {
	if !e.last.Has(deviceID) {
		return
	}
	e.last.Upsert(deviceID, model.Position{}, func(exist bool, last, _ model.Position) model.Position {
		if exist && last.StartTime.Equal(startTime) && last.DatabaseID == 0 {
			last.DatabaseID = databaseID
		}
		return last
	})
}

// Len es el número de dispositivos con fix registrado.
func (e *Engine) Len() int { return e.last.Count() }

func (d Decision) String() string {
	return d.Outcome.String() + "(" + d.Reason + ")"
}
