// Package pattern compila gramáticas declarativas de frames de texto y expone
// un cursor tipado sobre los campos capturados.
package pattern

import (
	"regexp"
	"strings"
)

// Hemisphere selecciona la forma de un placeholder de coordenada.
type Hemisphere int

const (
	Latitude  Hemisphere = iota // ddmm.mmmm + N|S
	Longitude                   // dddmm.mmmm + E|W
)

// numberReplacer traduce la notación compacta de números:
// d = dígito decimal, x = dígito hexadecimal, '.' literal.
var numberReplacer = strings.NewReplacer(
	"d", `\d`,
	"x", `[0-9a-fA-F]`,
	".", `\.`,
)

// Builder arma un Pattern a partir de una lista ordenada de elementos.
type Builder struct {
	parts []string
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Text agrega texto literal.
func (b *Builder) Text(s string) *Builder {
	b.parts = append(b.parts, regexp.QuoteMeta(s))
	return b
}

// Number agrega un placeholder numérico en notación compacta, p.ej. "(d+)," o "(x{8})".
// Los grupos entre paréntesis son campos capturados.
func (b *Builder) Number(s string) *Builder {
	b.parts = append(b.parts, numberReplacer.Replace(s))
	return b
}

// Expression agrega una expresión regular cruda.
func (b *Builder) Expression(s string) *Builder {
	b.parts = append(b.parts, s)
	return b
}

// Coordinate agrega grados + minutos decimales + letra de hemisferio.
// Captura tres campos que se consumen juntos con Parser.NextCoordinate.
func (b *Builder) Coordinate(h Hemisphere) *Builder {
	if h == Longitude {
		return b.Expression(`(\d{3})(\d{2}\.\d+)([EW])`)
	}
	return b.Expression(`(\d{2})(\d{2}\.\d+)([NS])`)
}

// Optional vuelve opcional el último elemento agregado.
func (b *Builder) Optional() *Builder {
	if n := len(b.parts); n > 0 {
		b.parts[n-1] = "(?:" + b.parts[n-1] + ")?"
	}
	return b
}

// GroupBegin abre un grupo no capturante; se cierra con GroupEnd.
func (b *Builder) GroupBegin() *Builder {
	b.parts = append(b.parts, "(?:")
	return b
}

// Or separa alternativas dentro de un grupo.
func (b *Builder) Or() *Builder {
	b.parts = append(b.parts, "|")
	return b
}

// GroupEnd cierra el grupo abierto; quantifier puede ser "", "?", "*" o "+".
func (b *Builder) GroupEnd(quantifier string) *Builder {
	b.parts = append(b.parts, ")"+quantifier)
	return b
}

// Any acepta cualquier texto restante.
func (b *Builder) Any() *Builder {
	b.parts = append(b.parts, `.*`)
	return b
}

// Compile compila el patrón anclado al frame completo. Un patrón mal formado es
// un error de programación, por eso entra en pánico como regexp.MustCompile.
func (b *Builder) Compile() *Pattern {
	expr := "^(?:" + strings.Join(b.parts, "") + ")$"
	return &Pattern{re: regexp.MustCompile(expr)}
}

// Pattern es una gramática compilada, reutilizable y segura para uso concurrente.
type Pattern struct {
	re *regexp.Regexp
}

// Match intenta el patrón completo contra el frame. No hay coincidencias parciales.
func (p *Pattern) Match(frame string) (*Parser, bool) {
	idx := p.re.FindStringSubmatchIndex(frame)
	if idx == nil {
		return nil, false
	}
	n := len(idx)/2 - 1
	fields := make([]field, n)
	for i := 0; i < n; i++ {
		start, end := idx[2*(i+1)], idx[2*(i+1)+1]
		if start >= 0 {
			fields[i] = field{value: frame[start:end], present: true}
		}
	}
	return &Parser{fields: fields}, true
}

// String devuelve la expresión compilada (útil en logs y tests).
func (p *Pattern) String() string {
	return p.re.String()
}
