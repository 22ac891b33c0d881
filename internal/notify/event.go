// Package notify publica las posiciones aceptadas hacia consumidores externos:
// un topic MQTT por dispositivo y un stream de eventos en Kafka.
package notify

import (
	"time"

	"github.com/google/uuid"

	"tracker-svr/internal/dispatcher"
)

const provider = "gps_tracker"

// Event es el payload JSON común a MQTT y Kafka.
type Event struct {
	EventID      string    `json:"eventId"`
	Provider     string    `json:"provider"`
	DeviceID     string    `json:"deviceId"` // imei
	ExternalID   string    `json:"externalId,omitempty"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Altitude     float64   `json:"altitude"`
	Speed        float64   `json:"speed"`
	Course       float64   `json:"course"`
	Valid        bool      `json:"valid"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	ExtendedInfo string    `json:"extendedInfo,omitempty"`
	Merged       bool      `json:"merged"`
}

func NewEvent(d dispatcher.Delivery) Event {
	p := d.Position
	return Event{
		EventID:      uuid.NewString(),
		Provider:     provider,
		DeviceID:     d.Device.IMEI,
		ExternalID:   d.Device.ExternalID,
		Latitude:     p.Latitude,
		Longitude:    p.Longitude,
		Altitude:     p.Altitude,
		Speed:        p.Speed,
		Course:       p.Course,
		Valid:        p.Valid,
		CreatedAt:    p.StartTime.UTC(),
		UpdatedAt:    p.Time.UTC(),
		ExtendedInfo: p.ExtendedInfo,
		Merged:       d.Merged(),
	}
}
