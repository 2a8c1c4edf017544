// Package command interprets inbound text lines as heater directives.
package command

import (
	"strings"

	"github.com/samdemo/samrelay/log2"
)

const (
	HeaterOn  = "HEATER_ON"
	HeaterOff = "HEATER_OFF"

	AckOn  = `{"type":"heater","state":"on"}`
	AckOff = `{"type":"heater","state":"off"}`
)

// Parse matches trimmed line against closed case sensitive vocabulary.
func Parse(line string) (on bool, ok bool) {
	switch strings.TrimSpace(line) {
	case HeaterOn:
		return true, true
	case HeaterOff:
		return false, true
	}
	return false, false
}

// State is "on" or "off", as used in acknowledgment.
func State(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

func Ack(on bool) string {
	if on {
		return AckOn
	}
	return AckOff
}

type Actuator interface {
	Set(on bool)
}

type Sender interface {
	SendLine(line string) bool
}

type Interpreter struct {
	log      *log2.Log
	actuator Actuator
	sinks    []Sender
	handled  uint32

	// OnCommand is called after actuator is set, before acknowledgment.
	OnCommand func(on bool)
}

// New sinks receive every acknowledgment, regardless of which channel the command came from.
func New(log *log2.Log, actuator Actuator, sinks ...Sender) *Interpreter {
	return &Interpreter{log: log, actuator: actuator, sinks: sinks}
}

// Handle applies line if it is a command. Unknown content is ignored silently.
func (self *Interpreter) Handle(source string, line string) bool {
	on, ok := Parse(line)
	if !ok {
		return false
	}
	self.handled++
	self.actuator.Set(on)
	if self.OnCommand != nil {
		self.OnCommand(on)
	}
	self.log.Infof("command from=%s heater on=%t", source, on)
	ack := Ack(on)
	for _, s := range self.sinks {
		s.SendLine(ack)
	}
	return true
}

func (self *Interpreter) Handled() uint32 { return self.handled }
