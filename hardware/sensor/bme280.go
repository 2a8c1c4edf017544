package sensor

import (
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/log2"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/devices/bmxx80"
	"periph.io/x/periph/host"
)

// Bus addresses tried in this order, SDO to GND then SDO to VCC.
var DefaultAddresses = []uint16{0x76, 0x77}

const DefaultDetectRetry = 2 * time.Second

// Opener probes single bus address. Error means no chip answered.
type Opener func(addr uint16) (Sensor, error)

type BME280 struct {
	log  *log2.Log
	dev  *bmxx80.Dev
	addr uint16
}

func (self *BME280) Addr() uint16 { return self.addr }

func (self *BME280) Sense() Sample {
	var env physic.Env
	if err := self.dev.Sense(&env); err != nil {
		self.log.Errorf("bme280 addr=%#02x sense err=%v", self.addr, err)
		return Failed()
	}
	return Sample{
		Temperature: float64(env.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
		Pressure:    float64(env.Pressure) / float64(100*physic.Pascal),
	}
}

func (self *BME280) Close() error { return self.dev.Halt() }

// BusOpener opens named I2C bus ("" = first available) and returns Opener for BME280 on it.
func BusOpener(log *log2.Log, busName string) (Opener, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, errors.Annotate(err, "periph/init")
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "i2c open bus=%s", busName)
	}
	open := func(addr uint16) (Sensor, error) {
		dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
		if err != nil {
			return nil, errors.Annotatef(err, "bme280 addr=%#02x", addr)
		}
		return &BME280{log: log, dev: dev, addr: addr}, nil
	}
	return open, bus, nil
}

// Detect tries addresses in order, first that answers wins.
func Detect(open Opener, addrs []uint16) (Sensor, uint16, error) {
	errs := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		s, err := open(addr)
		if err == nil {
			return s, addr, nil
		}
		errs = append(errs, err.Error())
	}
	return nil, 0, errors.NotFoundf("sensor at addresses=%s (%v)", formatAddrs(addrs), errs)
}

// WaitDetect blocks until Detect succeeds, retrying every delay.
// There is no degraded mode: without sensor startup does not proceed.
// stop may be nil; closed stop aborts waiting with error.
func WaitDetect(log *log2.Log, open Opener, addrs []uint16, delay time.Duration, stop <-chan struct{}) (Sensor, uint16, error) {
	if delay <= 0 {
		delay = DefaultDetectRetry
	}
	s, addr, err := Detect(open, addrs)
	if err == nil {
		log.Infof("sensor detected addr=%#02x", addr)
		return s, addr, nil
	}
	log.Errorf("sensor not found addr=%s, check wiring SDA/SCL/VCC 3.3V/GND", formatAddrs(addrs))
	tmr := time.NewTimer(delay)
	defer tmr.Stop()
	for {
		select {
		case <-tmr.C:
		case <-stop:
			return nil, 0, errors.Errorf("sensor detect interrupted")
		}
		log.Infof("waiting for sensor...")
		if s, addr, err = Detect(open, addrs); err == nil {
			log.Infof("sensor detected addr=%#02x", addr)
			return s, addr, nil
		}
		log.Debugf("sensor detect err=%v", err)
		tmr.Reset(delay)
	}
}

func formatAddrs(addrs []uint16) string {
	s := ""
	for i, a := range addrs {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%#02x", a)
	}
	return s
}
