// Package sensor provides environment readings: temperature, humidity, pressure.
// Any failed reading is reported as NaN, never as error.
package sensor

import "math"

type Sample struct {
	Temperature float64 // Celsius
	Humidity    float64 // %RH
	Pressure    float64 // hPa
}

// Valid is false if any component is NaN.
func (s Sample) Valid() bool {
	return !(math.IsNaN(s.Temperature) || math.IsNaN(s.Humidity) || math.IsNaN(s.Pressure))
}

func Failed() Sample {
	nan := math.NaN()
	return Sample{Temperature: nan, Humidity: nan, Pressure: nan}
}

type Sensor interface {
	Sense() Sample
}

// Static always returns the same sample. Used in tests and dry runs.
type Static struct{ S Sample }

func (self *Static) Sense() Sample { return self.S }

// Func adapts plain function to Sensor.
type Func func() Sample

func (f Func) Sense() Sample { return f() }
