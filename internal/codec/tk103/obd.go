package tk103

import (
	"encoding/hex"
	"fmt"
	"strings"

	"tracker-svr/internal/model"
)

type obdPID struct {
	name   string
	size   int // bytes
	decode func(b []byte) any
}

func word(b []byte) int { return int(b[0])<<8 | int(b[1]) }

var obdPIDs = map[string]obdPID{
	"00": {"PID_SUPPORT_1", 4, func(b []byte) any { return hex.EncodeToString(b) }},
	"05": {"COOLANT_TEMP", 1, func(b []byte) any { return int(b[0]) - 40 }},
	"07": {"LONG_FUEL_TRIM_1", 1, func(b []byte) any { return float64(b[0])/1.28 - 100 }},
	"0b": {"INTAKE_ABS_PRESS", 1, func(b []byte) any { return int(b[0]) }},
	"0c": {"RPM", 2, func(b []byte) any { return float64(word(b)) / 4 }},
	"0d": {"SPEED", 1, func(b []byte) any { return int(b[0]) }},
	"0e": {"TIMING_ADV", 1, func(b []byte) any { return float64(b[0])/2 - 64 }},
	"0f": {"INTAKE_AIR_TEMP", 1, func(b []byte) any { return int(b[0]) - 40 }},
	"11": {"THROTTLE", 1, func(b []byte) any { return float64(b[0]) * 100 / 255 }},
	"42": {"VOLTAGE", 2, func(b []byte) any { return float64(word(b)) / 1000 }},
}

// decodeOBD recorre el payload PID por PID. Ante un PID desconocido o un payload
// truncado se detiene y devuelve error; lo ya decodificado queda en info.
func decodeOBD(payload string, info *model.ExtendedInfo) error {
	payload = strings.ToLower(payload)
	for cursor := 0; cursor < len(payload); {
		if cursor+2 > len(payload) {
			return fmt.Errorf("obd: truncated pid at %d in %s", cursor, payload)
		}
		id := payload[cursor : cursor+2]
		pid, ok := obdPIDs[id]
		if !ok {
			return fmt.Errorf("obd: unrecognized pid %s in %s", id, payload)
		}
		end := cursor + 2 + pid.size*2
		if end > len(payload) {
			return fmt.Errorf("obd: truncated data for pid %s in %s", id, payload)
		}
		data, err := hex.DecodeString(payload[cursor+2 : end])
		if err != nil {
			return fmt.Errorf("obd: pid %s: %w", id, err)
		}
		info.Set(pid.name, pid.decode(data))
		cursor = end
	}
	return nil
}
