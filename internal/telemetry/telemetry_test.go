package telemetry

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/samdemo/samrelay/hardware/sensor"
	"github.com/samdemo/samrelay/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLine(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		rec    Record
		expect string
	}{
		{"simple", Record{24.4, 60.1, 1013.2, false, 12},
			`{"type":"sensor","temp":24.4,"humidity":60.1,"pressure":1013.2,"heater":false,"ts":12}`},
		{"round-down", Record{24.44, 60.14, 1013.24, true, 0},
			`{"type":"sensor","temp":24.4,"humidity":60.1,"pressure":1013.2,"heater":true,"ts":0}`},
		{"round-up", Record{24.46, 59.96, 999.99, false, 1},
			`{"type":"sensor","temp":24.5,"humidity":60.0,"pressure":1000.0,"heater":false,"ts":1}`},
		{"negative", Record{-5.24, 0, 850, false, 3600},
			`{"type":"sensor","temp":-5.2,"humidity":0.0,"pressure":850.0,"heater":false,"ts":3600}`},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, c.expect, c.rec.Line())
		})
	}
}

func TestNewRecordNaN(t *testing.T) {
	t.Parallel()

	_, ok := NewRecord(sensor.Sample{Temperature: math.NaN(), Humidity: 1, Pressure: 2}, false, 0)
	assert.False(t, ok)
	r, ok := NewRecord(sensor.Sample{Temperature: 1, Humidity: 2, Pressure: 3}, true, 7)
	require.True(t, ok)
	assert.Equal(t, Record{1, 2, 3, true, 7}, r)
}

func TestEncoderInterval(t *testing.T) {
	t.Parallel()

	s := &sensor.Static{S: sensor.Sample{Temperature: 24.4, Humidity: 60.1, Pressure: 1013.2}}
	e := NewEncoder(log2.NewTest(t, log2.LDebug), s, time.Second)

	_, ok := e.Tick(0, false)
	assert.False(t, ok)
	_, ok = e.Tick(999*time.Millisecond, false)
	assert.False(t, ok)
	line1, ok := e.Tick(1000*time.Millisecond, false)
	require.True(t, ok)
	_, ok = e.Tick(1500*time.Millisecond, false)
	assert.False(t, ok)
	line2, ok := e.Tick(2700*time.Millisecond, false)
	require.True(t, ok)
	assert.Equal(t, uint32(2), e.Packets())

	// identical samples, lines differ only in timestamp
	assert.Equal(t, `{"type":"sensor","temp":24.4,"humidity":60.1,"pressure":1013.2,"heater":false,"ts":1}`, line1)
	assert.Equal(t, `{"type":"sensor","temp":24.4,"humidity":60.1,"pressure":1013.2,"heater":false,"ts":2}`, line2)
	prefix1 := line1[:strings.LastIndex(line1, `"ts":`)]
	prefix2 := line2[:strings.LastIndex(line2, `"ts":`)]
	assert.Equal(t, prefix1, prefix2)
}

func TestEncoderSkipsNaN(t *testing.T) {
	t.Parallel()

	s := &sensor.Static{S: sensor.Failed()}
	e := NewEncoder(log2.NewTest(t, log2.LDebug), s, time.Second)
	_, ok := e.Tick(time.Second, false)
	assert.False(t, ok)
	assert.Equal(t, uint32(0), e.Packets())
	assert.Equal(t, uint32(1), e.Failures())

	// failed tick consumed the interval
	s.S = sensor.Sample{Temperature: 20, Humidity: 50, Pressure: 1000}
	_, ok = e.Tick(1500*time.Millisecond, true)
	assert.False(t, ok)
	line, ok := e.Tick(2*time.Second, true)
	require.True(t, ok)
	assert.Equal(t, `{"type":"sensor","temp":20.0,"humidity":50.0,"pressure":1000.0,"heater":true,"ts":2}`, line)
	assert.Equal(t, uint32(1), e.Packets())
}
