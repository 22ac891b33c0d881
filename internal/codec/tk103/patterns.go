package tk103

import "tracker-svr/internal/pattern"

// Batería: <id>,ZC20,<ddmmyy>,<hhmmss>,<nivel>,<batería mV>,<alimentación mV>,<instalado>
var batteryPattern = pattern.NewBuilder().
	Number("(d+),"). // device id
	Text("ZC20,").
	Number("(dd)(dd)(dd),"). // fecha (ddmmyy)
	Number("(dd)(dd)(dd),"). // hora
	Number("(d+),").         // nivel de batería
	Number("(d+),").         // voltaje batería
	Number("(d+),").         // voltaje alimentación
	Number("d+").            // instalado
	Compile()

// Celda de red: <id>BZ00,<mcc>,<mnc>,<lac>,<cid>,...
var networkPattern = pattern.NewBuilder().
	Number("(d{12})"). // device id
	Text("BZ00,").
	Number("(d+),"). // mcc
	Number("(d+),"). // mnc
	Number("(x+),"). // lac
	Number("(x+),"). // cid
	Any().
	Compile()

// Alarma: <id>,ZC11,<código>,<ddmmyy>,<hhmmss>,<A|V>,<lat>,<lon>,<velocidad>,<rumbo>[,<estado>]
var alarmPattern = pattern.NewBuilder().
	Number("(d+),"). // device id
	Text("ZC11,").
	Number("(d+),").         // tipo de alarma
	Number("(dd)(dd)(dd),"). // fecha (ddmmyy)
	Number("(dd)(dd)(dd),"). // hora
	Expression("([AV]),").   // validez
	Coordinate(pattern.Latitude).Text(",").
	Coordinate(pattern.Longitude).Text(",").
	Number("(d+.?d*),"). // velocidad
	Number("(d+.?d*)").  // rumbo
	GroupBegin().
	Text(",").
	Number("([01]{8})"). // estado binario
	GroupEnd("?").
	Any().
	Compile()

// OBD: <id>,ZC12,<ddmmyy>,<hhmmss>,<payload hex de PIDs>
var obdPattern = pattern.NewBuilder().
	Number("(d+),"). // device id
	Text("ZC12,").
	Number("(dd)(dd)(dd),"). // fecha (ddmmyy)
	Number("(dd)(dd)(dd),"). // hora
	Number("(x+)").          // payload OBD
	Any().
	Compile()

// Reporte periódico de ubicación (formato genérico con variantes).
var locationPattern = pattern.NewBuilder().
	Number("(d+)(,)?"). // device id + marcador de fecha invertida
	Expression(".{4},?"). // comando
	Number("d*").         // imei?
	Number("(dd)(dd)(dd),?").
	Expression("([AV]),?"). // validez
	Coordinate(pattern.Latitude).Expression(",?").
	Coordinate(pattern.Longitude).Expression(",?").
	Number("(d+.d)(?:d*,)?"). // velocidad
	Number("(dd)(dd)(dd),?"). // hora
	Number("(d+.?d{1,2}),?"). // rumbo
	GroupBegin().
	Number("([01]{8})"). // estado binario
	Or().
	Number("(x{8})"). // estado hex
	GroupEnd("?").
	Expression(",?").
	GroupBegin().
	Text("L").
	Number("(x+)"). // odómetro
	GroupEnd("?").
	Any().
	Text(")").Optional().
	Compile()
