package sensor

import (
	"math"
	"math/rand"
)

// Demo generates plausible readings without hardware:
// slow sine waves with gaussian noise around room conditions.
type Demo struct {
	rng *rand.Rand
	t   float64
}

func NewDemo(seed int64) *Demo { return &Demo{rng: rand.New(rand.NewSource(seed))} }

func (self *Demo) Sense() Sample {
	t := self.t
	self.t++
	return Sample{
		Temperature: 25.0 + 5.0*math.Sin(t*0.1) + self.rng.NormFloat64()*0.3,
		Humidity:    60.0 + 10.0*math.Cos(t*0.07) + self.rng.NormFloat64()*0.5,
		Pressure:    1013.25 + 2.0*math.Sin(t*0.03) + self.rng.NormFloat64()*0.1,
	}
}
