package pattern

import (
	"fmt"
	"strconv"
)

type field struct {
	value   string
	present bool
}

// Parser es el cursor de un frame que ya coincidió con un Pattern.
// Los campos se consumen estrictamente en el orden de declaración.
//
// El primer error de conversión queda registrado y se consulta con Err;
// los valores devueltos después de un error son cero.
type Parser struct {
	fields []field
	pos    int
	err    error
}

func (p *Parser) take() field {
	if p.pos >= len(p.fields) {
		panic(fmt.Sprintf("pattern: field %d pulled, only %d captured", p.pos+1, len(p.fields)))
	}
	f := p.fields[p.pos]
	p.pos++
	return f
}

func (p *Parser) fail(f field, kind string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("pattern: field %d %q is not a valid %s: %w", p.pos, f.value, kind, err)
	}
}

// Err devuelve el primer error de conversión del frame, si lo hubo.
func (p *Parser) Err() error { return p.err }

// Remaining indica cuántos campos faltan por consumir.
func (p *Parser) Remaining() int { return len(p.fields) - p.pos }

// HasNext indica si el siguiente campo fue capturado. Si no lo fue, lo salta.
func (p *Parser) HasNext() bool {
	if p.pos >= len(p.fields) {
		return false
	}
	if p.fields[p.pos].present {
		return true
	}
	p.pos++
	return false
}

// Next devuelve el siguiente campo como texto; ok=false si el grupo opcional no participó.
func (p *Parser) Next() (string, bool) {
	f := p.take()
	return f.value, f.present
}

// NextString es Next sin la bandera de presencia.
func (p *Parser) NextString() string {
	s, _ := p.Next()
	return s
}

func (p *Parser) NextInt() int {
	return p.NextIntBase(10)
}

func (p *Parser) NextIntBase(base int) int {
	f := p.take()
	if !f.present || p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(f.value, base, 0)
	if err != nil {
		p.fail(f, "integer", err)
		return 0
	}
	return int(v)
}

func (p *Parser) NextLong() int64 {
	return p.NextLongBase(10)
}

func (p *Parser) NextLongBase(base int) int64 {
	f := p.take()
	if !f.present || p.err != nil {
		return 0
	}
	v, err := strconv.ParseInt(f.value, base, 64)
	if err != nil {
		p.fail(f, "long", err)
		return 0
	}
	return v
}

func (p *Parser) NextDouble() float64 {
	f := p.take()
	if !f.present || p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(f.value, 64)
	if err != nil {
		p.fail(f, "double", err)
		return 0
	}
	return v
}

// NextCoordinate consume grados, minutos y hemisferio y devuelve grados decimales con signo.
func (p *Parser) NextCoordinate() float64 {
	deg := p.NextDouble()
	mins := p.NextDouble()
	hemi := p.NextString()
	v := deg + mins/60
	if hemi == "S" || hemi == "W" {
		v = -v
	}
	return v
}
