// Package heater owns the single binary output driving heater element.
package heater

import (
	"strconv"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/log2"
	gpio "github.com/temoto/gpio-cdev-go"
)

const consumerLabel = "samrelay-heater"

// Output is physical pin abstraction.
type Output interface {
	Write(high bool) error
	Close() error
}

// Heater mirrors Output level in state. Set never fails from caller view,
// write errors are logged since stuck pin can not be detected here anyway.
type Heater struct {
	log   *log2.Log
	out   Output
	state uint32 // atomic, read by metrics
}

// New forces output low before returning, so no command can act on unknown level.
func New(log *log2.Log, out Output) *Heater {
	self := &Heater{log: log, out: out}
	self.Set(false)
	return self
}

func (self *Heater) Set(on bool) {
	if err := self.out.Write(on); err != nil {
		self.log.Errorf("heater write on=%t err=%v", on, err)
	}
	v := uint32(0)
	if on {
		v = 1
	}
	atomic.StoreUint32(&self.state, v)
	self.log.Debugf("heater on=%t", on)
}

func (self *Heater) On() bool { return atomic.LoadUint32(&self.state) == 1 }

func (self *Heater) Close() error {
	self.Set(false)
	return self.out.Close()
}

// Memory output keeps level in memory, for runs without GPIO and tests.
type Memory struct{ level uint32 }

func (self *Memory) Write(high bool) error {
	v := uint32(0)
	if high {
		v = 1
	}
	atomic.StoreUint32(&self.level, v)
	return nil
}
func (self *Memory) High() bool   { return atomic.LoadUint32(&self.level) == 1 }
func (self *Memory) Close() error { return nil }

type gpioOutput struct {
	chip  gpio.Chiper
	lines gpio.Lineser
	set   gpio.LineSetFunc
}

// OpenGPIO requests single output line on chip, e.g. "/dev/gpiochip0", "17".
func OpenGPIO(chipName string, pinName string, activeLow bool) (Output, error) {
	line, err := strconv.ParseUint(pinName, 10, 32)
	if err != nil {
		return nil, errors.Annotatef(err, "heater pin=%s must be line number", pinName)
	}
	chip, err := gpio.Open(chipName, consumerLabel)
	if err != nil {
		return nil, errors.Annotatef(err, "heater pin open chip=%s", chipName)
	}
	out, err := NewGPIOOutput(chip, uint32(line), activeLow)
	if err != nil {
		chip.Close()
		return nil, err
	}
	return out, nil
}

func NewGPIOOutput(chip gpio.Chiper, line uint32, activeLow bool) (Output, error) {
	flag := gpio.GPIOHANDLE_REQUEST_OUTPUT
	if activeLow {
		flag |= gpio.GPIOHANDLE_REQUEST_ACTIVE_LOW
	}
	lines, err := chip.OpenLines(flag, consumerLabel, line)
	if err != nil {
		return nil, errors.Annotatef(err, "heater OpenLines line=%d", line)
	}
	return &gpioOutput{chip: chip, lines: lines, set: lines.SetFunc(line)}, nil
}

func (self *gpioOutput) Write(high bool) error {
	var b byte
	if high {
		b = 1
	}
	self.set(b)
	return errors.Trace(self.lines.Flush())
}

func (self *gpioOutput) Close() error {
	err1 := self.lines.Close()
	err2 := self.chip.Close()
	if err1 != nil {
		return errors.Trace(err1)
	}
	return errors.Trace(err2)
}
