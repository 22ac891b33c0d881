package tk103

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker-svr/internal/codec"
	"tracker-svr/internal/model"
)

type fakeDevices map[string]model.Device

func (f fakeDevices) Lookup(_ context.Context, imei string) (model.Device, bool) {
	d, ok := f[imei]
	return d, ok
}

type fakeFixes map[int64]model.Position

func (f fakeFixes) LastKnownFix(id int64) (model.Position, bool) {
	p, ok := f[id]
	return p, ok
}

var wallClock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestDecoder(fixes fakeFixes) *Decoder {
	devices := fakeDevices{
		"027044702512": {ID: 7, IMEI: "027044702512"},
		"123456789012": {ID: 9, IMEI: "123456789012"},
	}
	if fixes == nil {
		fixes = fakeFixes{}
	}
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(devices, fixes, lg, WithClock(func() time.Time { return wallClock }))
}

func extInfo(t *testing.T, p *model.Position, key string) string {
	t.Helper()
	_, rest, ok := strings.Cut(p.ExtendedInfo, "<"+key+">")
	require.True(t, ok, "missing %s in %s", key, p.ExtendedInfo)
	value, _, ok := strings.Cut(rest, "</"+key+">")
	require.True(t, ok)
	return value
}

func TestHeartbeatIsAckedWithoutPosition(t *testing.T) {
	d := newTestDecoder(nil)
	var conn bytes.Buffer

	pos, err := d.Decode(context.Background(), &conn, "(027044702512BP00000027044702512HSO)")

	require.NoError(t, err)
	assert.Nil(t, pos)
	assert.Equal(t, "(027044702512AP01HSO)", conn.String())
}

func TestLoginFrameAckAndFix(t *testing.T) {
	d := newTestDecoder(nil)
	var conn bytes.Buffer

	pos, err := d.Decode(context.Background(), &conn,
		"(027044702512BP05000027044702512080524A2232.9806N11404.9355E000.1101241323.8700000000L000450AC)")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "(027044702512AP05)", conn.String())

	assert.Equal(t, int64(7), pos.DeviceID)
	assert.Equal(t, "tk103", pos.Protocol)
	assert.Equal(t, time.Date(2008, 5, 24, 10, 12, 41, 0, time.UTC), pos.Time)
	assert.True(t, pos.IsFresh())
	assert.True(t, pos.Valid)
	assert.InDelta(t, 22.54968, pos.Latitude, 1e-5)
	assert.InDelta(t, 114.08226, pos.Longitude, 1e-5)
	assert.InDelta(t, 0.1*speedFactor, pos.Speed, 1e-9)
	assert.InDelta(t, 323.87, pos.Course, 1e-9)
	assert.Equal(t, "282796", extInfo(t, pos, "odometer"))
	assert.Equal(t, "tk103", extInfo(t, pos, "protocol"))
}

func TestReverseDateLocationWithStatus(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil,
		"(123456789012,BR00,161017,A,2825.4034N,07702.3111E,045.5,083005,090.0,11000000,L1F4)")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, time.Date(2017, 10, 16, 8, 30, 5, 0, time.UTC), pos.Time)
	assert.InDelta(t, 28.423390, pos.Latitude, 1e-5)
	assert.InDelta(t, 77.038518, pos.Longitude, 1e-5)
	assert.InDelta(t, 45.5*speedFactor, pos.Speed, 1e-9)
	assert.InDelta(t, 90.0, pos.Course, 1e-9)
	assert.Equal(t, "11000000", extInfo(t, pos, "status"))
	assert.Equal(t, "false", extInfo(t, pos, "charging"))
	assert.Equal(t, "true", extInfo(t, pos, "ignition"))
	assert.Equal(t, "500", extInfo(t, pos, "odometer"))
}

func TestMarkerAlarmUsesMarkerTable(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil,
		"(123456789012BO011161017A2825.4034N07702.3111E000.0083005000.0000000000L0)")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "ACCIDENT", extInfo(t, pos, "alarm"))
	assert.Equal(t, time.Date(2016, 10, 17, 8, 30, 5, 0, time.UTC), pos.Time)
}

func TestAlarmFrameUsesFrameTable(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil,
		"123456789012,ZC11,1,161017,083005,A,2825.4034N,07702.3111E,045.5,090.0,11000000")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "OVER_SPEED", extInfo(t, pos, "alarm"))
	assert.True(t, pos.Valid)
	assert.Equal(t, time.Date(2017, 10, 16, 8, 30, 5, 0, time.UTC), pos.Time)
	assert.InDelta(t, 45.5*speedFactor, pos.Speed, 1e-9)
}

func TestAlarmTablesAreDistinct(t *testing.T) {
	assert.Equal(t, "OVER_SPEED", AlarmFrameType(1))
	assert.Equal(t, "ACCIDENT", MarkerAlarmType(1))
	assert.NotEqual(t, AlarmFrameType(0), MarkerAlarmType(0))
	assert.Equal(t, "42", AlarmFrameType(42))
	assert.Equal(t, "42", MarkerAlarmType(42))
}

func TestBatteryCarriesForwardLastFix(t *testing.T) {
	last := model.Position{
		DeviceID:  9,
		Time:      time.Date(2017, 10, 16, 8, 0, 0, 0, time.UTC),
		StartTime: time.Date(2017, 10, 16, 7, 0, 0, 0, time.UTC),
		Valid:     true,
		Latitude:  28.4,
		Longitude: 77.0,
		Altitude:  210,
		Speed:     3.5,
		Course:    120,
	}
	d := newTestDecoder(fakeFixes{9: last})

	pos, err := d.Decode(context.Background(), nil, "123456789012,ZC20,161017,083005,100,3900,65535,1")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, time.Date(2017, 10, 16, 8, 30, 5, 0, time.UTC), pos.Time)
	assert.Equal(t, last.StartTime, pos.StartTime)
	assert.Equal(t, last.Latitude, pos.Latitude)
	assert.Equal(t, last.Longitude, pos.Longitude)
	assert.Equal(t, last.Altitude, pos.Altitude)
	assert.Equal(t, last.Speed, pos.Speed)
	assert.Equal(t, last.Course, pos.Course)
	assert.Equal(t, last.Valid, pos.Valid)

	assert.Equal(t, "100", extInfo(t, pos, "batteryLevel"))
	assert.Equal(t, "3900", extInfo(t, pos, "battery"))
	assert.NotContains(t, pos.ExtendedInfo, "<power>")
}

func TestNetworkWithoutPriorFixUsesEpochAndWallClock(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil, "123456789012BZ00,460,0,25FC,4D92,")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.True(t, pos.Valid)
	assert.Equal(t, model.Epoch, pos.StartTime)
	assert.Equal(t, wallClock, pos.Time)
	assert.Zero(t, pos.Latitude)
	assert.Equal(t, "460", extInfo(t, pos, "mcc"))
	assert.Equal(t, "0", extInfo(t, pos, "mnc"))
	assert.Equal(t, "9724", extInfo(t, pos, "lac"))
	assert.Equal(t, "19858", extInfo(t, pos, "cid"))
}

func TestOBDFrame(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil, "123456789012,ZC12,161017,083005,0c1af80d3c1164")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "1726", extInfo(t, pos, "RPM"))
	assert.Equal(t, "60", extInfo(t, pos, "SPEED"))
	assert.Contains(t, extInfo(t, pos, "THROTTLE"), "39.21")
}

func TestOBDUnknownPIDKeepsPosition(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil, "123456789012,ZC12,161017,083005,0c1af8ff01")

	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, "1726", extInfo(t, pos, "RPM"))
}

func TestDecodeErrors(t *testing.T) {
	d := newTestDecoder(nil)
	ctx := context.Background()

	_, err := d.Decode(ctx, nil, "(999999999999BP05000027044702512080524A2232.9806N11404.9355E000.1101241323.8700000000L000450AC)")
	assert.ErrorIs(t, err, codec.ErrUnknownDevice)

	_, err = d.Decode(ctx, nil, "(027044702512XX99hello)")
	assert.ErrorIs(t, err, codec.ErrUnrecognizedFrame)

	_, err = d.Decode(ctx, nil, "123456789012,ZC20,161017,083005,99999999999999999999999,3900,65535,1")
	assert.ErrorIs(t, err, codec.ErrInvalidField)
}

func TestAckWithoutConnIsSkipped(t *testing.T) {
	d := newTestDecoder(nil)

	pos, err := d.Decode(context.Background(), nil, "(027044702512BP00000027044702512HSO)")

	require.NoError(t, err)
	assert.Nil(t, pos)
}
