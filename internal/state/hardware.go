package state

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/hardware/heater"
	"github.com/samdemo/samrelay/hardware/sensor"
	"github.com/samdemo/samrelay/hardware/uart"
	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/transport"
	"periph.io/x/periph/conn/i2c"
)

// Fields set before first getter call replace real devices, used by tests.
type hardware struct {
	Heater struct {
		once
		Output heater.Output
		h      *heater.Heater
	}
	Sensor struct {
		once
		Sensor sensor.Sensor
		Addr   uint16
		bus    i2c.BusCloser
	}
	Node struct {
		once
		Port uart.Porter
	}
	Sink struct {
		once
		Sink transport.Sink
	}
	metrics *http.Server
}

func (g *Global) Heater() (*heater.Heater, error) {
	x := &g.Hardware.Heater // short alias
	_ = x.do(func() error {
		cfg := &g.Config.Heater
		if x.Output == nil {
			if cfg.PinChip == "" {
				g.Log.Infof("heater: no pin_chip, using in-memory output")
				x.Output = &heater.Memory{}
			} else {
				out, err := heater.OpenGPIO(cfg.PinChip, cfg.Pin, cfg.ActiveLow)
				if err != nil {
					return errors.Annotatef(err, "heater chip=%s pin=%s", cfg.PinChip, cfg.Pin)
				}
				x.Output = out
			}
		}
		x.h = heater.New(g.Log, x.Output)
		return nil
	})
	return x.h, x.err
}

// Sensor blocks until sensor is detected or Alive is stopped.
func (g *Global) Sensor() (sensor.Sensor, error) {
	x := &g.Hardware.Sensor // short alias
	_ = x.do(func() error {
		if x.Sensor != nil {
			return nil
		}
		cfg := &g.Config.Sensor
		switch cfg.Driver {
		case config.SensorDemo:
			x.Sensor = sensor.NewDemo(time.Now().UnixNano())
			return nil

		case config.SensorBME280:
			open, bus, err := sensor.BusOpener(g.Log, cfg.I2cBus)
			if err != nil {
				return errors.Annotate(err, "sensor")
			}
			x.bus = bus
			x.Sensor, x.Addr, err = sensor.WaitDetect(g.Log, open, g.Config.SensorAddresses(), g.Config.SensorDetectRetry(), g.Alive.StopChan())
			return errors.Annotate(err, "sensor")
		}
		return errors.NotSupportedf("sensor.driver=%s", cfg.Driver)
	})
	return x.Sensor, x.err
}

// Node returns nil port without error when node.device is not configured.
func (g *Global) Node() (uart.Porter, error) {
	x := &g.Hardware.Node // short alias
	_ = x.do(func() error {
		if x.Port != nil || g.Config.Node.Device == "" {
			return nil
		}
		port, err := uart.Open(g.Config.Node.Device, g.Config.Node.Baud)
		if err != nil {
			return errors.Annotate(err, "node")
		}
		x.Port = port
		return nil
	})
	return x.Port, x.err
}

func (g *Global) Sink() (transport.Sink, error) {
	x := &g.Hardware.Sink // short alias
	_ = x.do(func() error {
		if x.Sink != nil {
			return nil
		}
		var err error
		x.Sink, err = transport.Open(g.Config, transport.Options{
			Log:      g.Log,
			Stat:     g.Stat,
			Clock:    g.Clock,
			DeviceId: g.Config.DeviceId,
			LineMax:  g.Config.Node.LineMax,
		})
		return errors.Annotate(err, "transport")
	})
	return x.Sink, x.err
}

// CloseHardware turns heater off and releases devices that were opened.
func (g *Global) CloseHardware() error {
	errs := make([]error, 0, 4)
	hw := &g.Hardware
	if hw.Heater.h != nil {
		errs = append(errs, errors.Annotate(hw.Heater.h.Close(), "heater"))
	}
	if hw.Sink.Sink != nil {
		errs = append(errs, errors.Annotate(hw.Sink.Sink.Close(), "transport"))
	}
	if hw.Node.Port != nil {
		errs = append(errs, errors.Annotate(hw.Node.Port.Close(), "node"))
	}
	if hw.Sensor.bus != nil {
		errs = append(errs, errors.Annotate(hw.Sensor.bus.Close(), "sensor bus"))
	}
	if hw.metrics != nil {
		errs = append(errs, errors.Annotate(hw.metrics.Close(), "metrics"))
	}
	return helpers.FoldErrors(errs)
}

type once struct {
	sync.Mutex
	called uint32 // atomic bool
	err    error
}

func (o *once) done() bool {
	return atomic.LoadUint32(&o.called) == 1
}

func (o *once) do(f func() error) error {
	if o.done() { // fast path
		return o.err
	}
	o.Lock()
	defer o.Unlock()
	if o.done() {
		return o.err
	}
	o.err = f()
	atomic.StoreUint32(&o.called, 1)
	return o.err
}
