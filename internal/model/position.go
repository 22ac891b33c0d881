package model

import "time"

// Position es una observación GPS/telemetría ya decodificada y con dispositivo resuelto.
type Position struct {
	DeviceID  int64     `json:"device_id"`
	Protocol  string    `json:"protocol"`
	Time      time.Time `json:"time"`
	StartTime time.Time `json:"start_time"`
	Valid     bool      `json:"valid"`

	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
	Speed     float64 `json:"spd"`
	Course    float64 `json:"crs"`

	// Address lo llena un geocoder externo; aquí nunca se produce.
	Address string `json:"address,omitempty"`

	// ExtendedInfo es el bag de telemetría ya serializado (ver ExtendedInfo.String).
	ExtendedInfo string `json:"extended_info,omitempty"`

	// DatabaseID = 0 mientras el registro no ha sido persistido.
	DatabaseID int64 `json:"database_id,omitempty"`
}

// Epoch es el tiempo centinela usado cuando no existe un fix previo.
var Epoch = time.Unix(0, 0).UTC()

// IsFresh indica si la posición representa un intervalo nuevo (no extendido).
func (p *Position) IsFresh() bool {
	return p.StartTime.Equal(p.Time)
}

// CopyFix copia los campos posicionales de last sobre p (carry-forward).
func (p *Position) CopyFix(last Position) {
	p.Time = last.Time
	p.StartTime = last.StartTime
	p.Valid = last.Valid
	p.Latitude = last.Latitude
	p.Longitude = last.Longitude
	p.Altitude = last.Altitude
	p.Speed = last.Speed
	p.Course = last.Course
}
