package codec

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateBuilderOrders(t *testing.T) {
	forward := new(DateBuilder).SetDate(17, 10, 16).SetTime(8, 30, 5).Date()
	reverse := new(DateBuilder).SetDateReverse(16, 10, 17).SetTime(8, 30, 5).Date()

	want := time.Date(2017, time.October, 16, 8, 30, 5, 0, time.UTC)
	assert.Equal(t, want, forward)
	assert.Equal(t, want, reverse)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "ok", Kind(nil))
	assert.Equal(t, "unknown_device", Kind(fmt.Errorf("imei 1: %w", ErrUnknownDevice)))
	assert.Equal(t, "invalid_field", Kind(fmt.Errorf("x: %w", ErrInvalidField)))
	assert.Equal(t, "unrecognized", Kind(ErrUnrecognizedFrame))
	assert.Equal(t, "error", Kind(errors.New("boom")))
}
