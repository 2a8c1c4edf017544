// Package telemetry turns sensor samples into JSON lines.
// Field order and one decimal precision are wire contract with downstream consumers.
package telemetry

import (
	"strconv"
	"time"

	"github.com/samdemo/samrelay/hardware/sensor"
	"github.com/samdemo/samrelay/log2"
)

const DefaultInterval = 1 * time.Second

type Record struct {
	Temperature float64 // Celsius
	Humidity    float64 // %RH
	Pressure    float64 // hPa
	Heater      bool
	Timestamp   uint64 // seconds since start
}

// NewRecord returns ok=false for sample with NaN component, such record must not exist.
func NewRecord(s sensor.Sample, heater bool, ts uint64) (Record, bool) {
	if !s.Valid() {
		return Record{}, false
	}
	return Record{
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Pressure:    s.Pressure,
		Heater:      heater,
		Timestamp:   ts,
	}, true
}

// AppendLine appends serialized record without trailing newline.
// {"type":"sensor","temp":24.4,"humidity":60.1,"pressure":1013.2,"heater":false,"ts":12}
func (r Record) AppendLine(b []byte) []byte {
	b = append(b, `{"type":"sensor","temp":`...)
	b = strconv.AppendFloat(b, r.Temperature, 'f', 1, 64)
	b = append(b, `,"humidity":`...)
	b = strconv.AppendFloat(b, r.Humidity, 'f', 1, 64)
	b = append(b, `,"pressure":`...)
	b = strconv.AppendFloat(b, r.Pressure, 'f', 1, 64)
	b = append(b, `,"heater":`...)
	b = strconv.AppendBool(b, r.Heater)
	b = append(b, `,"ts":`...)
	b = strconv.AppendUint(b, r.Timestamp, 10)
	b = append(b, '}')
	return b
}

func (r Record) Line() string { return string(r.AppendLine(make([]byte, 0, 96))) }

// Encoder samples sensor when interval elapsed since last fire.
// Time is passed in by caller, Encoder never sleeps.
type Encoder struct {
	Log      *log2.Log
	Sensor   sensor.Sensor
	Interval time.Duration

	last     time.Duration
	packets  uint32
	failures uint32
	buf      []byte
}

func NewEncoder(log *log2.Log, s sensor.Sensor, interval time.Duration) *Encoder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Encoder{Log: log, Sensor: s, Interval: interval}
}

// Due reports whether interval elapsed at monotonic time now.
func (self *Encoder) Due(now time.Duration) bool { return now-self.last >= self.Interval }

// Tick fires if interval elapsed. Returns serialized record, ok=false when not due
// or sample failed. Failed sample still consumes the tick, retry is next interval.
func (self *Encoder) Tick(now time.Duration, heater bool) (string, bool) {
	if !self.Due(now) {
		return "", false
	}
	self.last = now

	sample := self.Sensor.Sense()
	rec, ok := NewRecord(sample, heater, uint64(now/time.Second))
	if !ok {
		self.failures++
		self.Log.Warningf("sensor read failed temp=%v humidity=%v pressure=%v, check wiring",
			sample.Temperature, sample.Humidity, sample.Pressure)
		return "", false
	}
	self.packets++
	self.buf = rec.AppendLine(self.buf[:0])
	return string(self.buf), true
}

// Packets is count of records produced.
func (self *Encoder) Packets() uint32  { return self.packets }
func (self *Encoder) Failures() uint32 { return self.failures }
