package tk103

import "strconv"

// Alarmas del frame ZC11.
var alarmFrameTypes = map[int]string{
	0: "LOW_BATTERY",
	1: "OVER_SPEED",
	2: "IDLING",
	3: "FAST_ACCELERATION",
	4: "SHARP_DECELERATION",
	5: "HIGH_TEMPERATURE",
}

// Alarmas del marcador BO01 embebido en el reporte genérico. Es otra enumeración.
var markerAlarmTypes = map[int]string{
	0: "POWER_OFF",
	1: "ACCIDENT",
	2: "SOS",
	3: "ANTI_THEFT",
	4: "LOW_SPEED",
	5: "OVER_SPEED",
	6: "GEOFENCE",
	7: "VIBRATION",
	8: "LOW_POWER",
}

// AlarmFrameType mapea el código de un frame de alarma.
func AlarmFrameType(code int) string {
	return alarmName(alarmFrameTypes, code)
}

// MarkerAlarmType mapea el dígito que sigue a BO01 en un reporte genérico.
func MarkerAlarmType(code int) string {
	return alarmName(markerAlarmTypes, code)
}

func alarmName(table map[int]string, code int) string {
	if name, ok := table[code]; ok {
		return name
	}
	return strconv.Itoa(code)
}
