package model

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

type infoEntry struct {
	key   string
	value string
}

// ExtendedInfo es un mapa ordenado clave→valor de telemetría específica del protocolo.
// Se serializa como <info><clave>valor</clave>...</info>, siempre empezando por el protocolo.
type ExtendedInfo struct {
	entries []infoEntry
}

func NewExtendedInfo(protocol string) *ExtendedInfo {
	info := &ExtendedInfo{}
	info.Set("protocol", protocol)
	return info
}

// Set agrega o reemplaza una clave conservando su posición original.
// Un valor nil no se registra.
func (e *ExtendedInfo) Set(key string, value any) {
	if value == nil {
		return
	}
	s := formatValue(value)
	for i := range e.entries {
		if e.entries[i].key == key {
			e.entries[i].value = s
			return
		}
	}
	e.entries = append(e.entries, infoEntry{key: key, value: s})
}

// Get devuelve el valor serializado de la clave.
func (e *ExtendedInfo) Get(key string) (string, bool) {
	for _, it := range e.entries {
		if it.key == key {
			return it.value, true
		}
	}
	return "", false
}

func (e *ExtendedInfo) Len() int { return len(e.entries) }

func (e *ExtendedInfo) String() string {
	var sb strings.Builder
	sb.WriteString("<info>")
	for _, it := range e.entries {
		sb.WriteString("<" + it.key + ">")
		_ = xml.EscapeText(&sb, []byte(it.value))
		sb.WriteString("</" + it.key + ">")
	}
	sb.WriteString("</info>")
	return sb.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
