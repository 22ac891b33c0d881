package link

import (
	"time"

	"tracker-svr/internal/dispatcher"
)

// Tracking es el registro NDJSON de una posición aceptada.
type Tracking struct {
	IMEI     string `json:"imei"`
	DeviceID int64  `json:"device_id"`
	Protocol string `json:"protocol"`
	Datetime string `json:"dt"`
	Start    string `json:"start_dt"`

	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Alt   float64 `json:"alt"`
	Spd   float64 `json:"spd"`
	Crs   float64 `json:"crs"`
	Valid bool    `json:"valid"`

	ExtendedInfo string `json:"ext,omitempty"`

	MsgType int  `json:"msg_type"` // 1=nuevo intervalo, 0=extensión
	Merged  bool `json:"merged"`
}

func NewTracking(d dispatcher.Delivery) *Tracking {
	p := d.Position
	tr := &Tracking{
		IMEI:         d.Device.IMEI,
		DeviceID:     p.DeviceID,
		Protocol:     p.Protocol,
		Datetime:     p.Time.UTC().Format(time.RFC3339),
		Start:        p.StartTime.UTC().Format(time.RFC3339),
		Lat:          p.Latitude,
		Lon:          p.Longitude,
		Alt:          p.Altitude,
		Spd:          p.Speed,
		Crs:          p.Course,
		Valid:        p.Valid,
		ExtendedInfo: p.ExtendedInfo,
		MsgType:      1,
		Merged:       d.Merged(),
	}
	if tr.Merged {
		tr.MsgType = 0
	}
	return tr
}
