package model

// Device es un tracker registrado, tal como lo entrega el directorio de dispositivos.
type Device struct {
	ID         int64  `json:"id" yaml:"id"`
	IMEI       string `json:"imei" yaml:"imei"`
	UniqueID   string `json:"uid,omitempty" yaml:"uid"`
	Topic      string `json:"topic,omitempty" yaml:"topic"`
	ExternalID string `json:"external_id,omitempty" yaml:"external_id"`
}
