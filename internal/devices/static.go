package devices

import (
	"context"

	"tracker-svr/internal/model"
)

// StaticDirectory es un directorio fijo (lista del archivo de configuración).
type StaticDirectory []model.Device

func (s StaticDirectory) Devices(context.Context) ([]model.Device, error) {
	out := make([]model.Device, len(s))
	copy(out, s)
	return out, nil
}
