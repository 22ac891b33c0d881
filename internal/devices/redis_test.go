package devices

import (
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDevices(t *testing.T) {
	list, skipped := decodeDevices(map[string]string{
		"027044702512": `{"id":7,"imei":"027044702512","topic":"fleet/7","external_id":"ext-7"}`,
		"123456789012": `{"id":9}`,
		"broken":       `{"id":`,
		"noid":         `{"imei":"noid"}`,
	})

	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	require.Len(t, list, 2)
	assert.Equal(t, "fleet/7", list[0].Topic)
	assert.Equal(t, "ext-7", list[0].ExternalID)
	assert.Equal(t, "123456789012", list[1].IMEI, "field name fills a missing imei")

	assert.Contains(t, skipped, "broken")
	assert.Equal(t, "missing id", skipped["noid"])
}

func TestInvalidatorBumpsGeneration(t *testing.T) {
	gen := &Generation{}
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	inv := NewRedisInvalidator(nil, "", gen, lg)
	at := time.Unix(1_700_000_000, 0)
	inv.now = func() time.Time { return at }

	inv.handle("devices changed")

	assert.True(t, gen.Load().Equal(at))
	assert.Equal(t, DefaultInvalidateChannel, inv.channel)
}
