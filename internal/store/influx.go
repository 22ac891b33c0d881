// Package store persiste las posiciones aceptadas: historial en InfluxDB y
// última posición por dispositivo en Redis.
package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"tracker-svr/internal/model"
)

const DefaultMeasurement = "positions"

type InfluxConfig struct {
	URL         string
	Token       string
	Org         string
	Bucket      string
	Measurement string
}

type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// Influx guarda un punto por intervalo. El timestamp del punto es el inicio del
// intervalo, así que reescribirlo (Update) reemplaza el registro.
type Influx struct {
	client      influxdb2.Client
	writer      pointWriter
	measurement string
}

func NewInflux(cfg InfluxConfig) *Influx {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Influx{
		client:      client,
		writer:      client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		measurement: firstNonEmpty(cfg.Measurement, DefaultMeasurement),
	}
}

func (db *Influx) Close() {
	if db != nil && db.client != nil {
		db.client.Close()
	}
}

// Ping verifica que el servidor responda.
func (db *Influx) Ping(ctx context.Context) error {
	ok, err := db.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influx ping: %w", err)
	}
	if !ok {
		return fmt.Errorf("influx ping: server not ready")
	}
	return nil
}

// Insert crea el registro del intervalo y devuelve su identidad.
func (db *Influx) Insert(ctx context.Context, p model.Position) (int64, error) {
	at := intervalStart(p)
	if err := db.writer.WritePoint(ctx, db.point(p, at)); err != nil {
		return 0, fmt.Errorf("influx insert device %d: %w", p.DeviceID, err)
	}
	return at.UnixMilli(), nil
}

// Update reescribe el registro identificado por id con los datos de p.
func (db *Influx) Update(ctx context.Context, id int64, p model.Position) error {
	if err := db.writer.WritePoint(ctx, db.point(p, time.UnixMilli(id).UTC())); err != nil {
		return fmt.Errorf("influx update device %d record %d: %w", p.DeviceID, id, err)
	}
	return nil
}

// RecordID es la identidad que Insert asignaría a p.
func RecordID(p model.Position) int64 {
	return intervalStart(p).UnixMilli()
}

// intervalStart: un fix heredado sin historial trae StartTime = Epoch; en ese
// caso el registro se ancla a Time.
func intervalStart(p model.Position) time.Time {
	if p.StartTime.IsZero() || p.StartTime.Equal(model.Epoch) {
		return p.Time.UTC()
	}
	return p.StartTime.UTC()
}

func (db *Influx) point(p model.Position, at time.Time) *write.Point {
	tags := map[string]string{
		"device_id": strconv.FormatInt(p.DeviceID, 10),
		"protocol":  p.Protocol,
	}
	fields := map[string]interface{}{
		"lat":        p.Latitude,
		"lon":        p.Longitude,
		"alt":        p.Altitude,
		"speed":      p.Speed,
		"course":     p.Course,
		"valid":      p.Valid,
		"updated_at": p.Time.UTC().Format(time.RFC3339Nano),
	}
	if p.ExtendedInfo != "" {
		fields["extended_info"] = p.ExtendedInfo
	}
	if p.Address != "" {
		fields["address"] = p.Address
	}
	return write.NewPoint(db.measurement, tags, fields, at)
}
