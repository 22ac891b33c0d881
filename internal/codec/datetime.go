package codec

import "time"

// DateBuilder arma la fecha de un frame con años de dos dígitos (20yy), en UTC.
type DateBuilder struct {
	year, month, day     int
	hour, minute, second int
}

// SetDate recibe el orden yy mm dd.
func (b *DateBuilder) SetDate(year, month, day int) *DateBuilder {
	b.year, b.month, b.day = year, month, day
	return b
}

// SetDateReverse recibe el orden dd mm yy.
func (b *DateBuilder) SetDateReverse(day, month, year int) *DateBuilder {
	return b.SetDate(year, month, day)
}

func (b *DateBuilder) SetTime(hour, minute, second int) *DateBuilder {
	b.hour, b.minute, b.second = hour, minute, second
	return b
}

func (b *DateBuilder) Date() time.Time {
	year := b.year
	if year < 100 {
		year += 2000
	}
	return time.Date(year, time.Month(b.month), b.day, b.hour, b.minute, b.second, 0, time.UTC)
}
