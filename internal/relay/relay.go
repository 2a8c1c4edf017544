// Package relay is the single cooperative run loop tying node link,
// sensor telemetry, commands and the active transport together.
package relay

import (
	"context"
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/hardware/heater"
	"github.com/samdemo/samrelay/hardware/uart"
	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/internal/command"
	"github.com/samdemo/samrelay/internal/line"
	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/internal/telemetry"
	"github.com/samdemo/samrelay/internal/transport"
	"github.com/samdemo/samrelay/log2"
)

const DefaultIdle = 5 * time.Millisecond

// node bytes consumed per step, rest waits for next iteration
const nodeReadMax = 4096

type Config struct {
	Idle    time.Duration
	LineMax int
	LogRx   bool
}

type Loop struct {
	log         *log2.Log
	stat        *metrics.Stat
	clock       helpers.Clock
	node        uart.Porter
	sink        transport.Sink
	encoder     *telemetry.Encoder
	heater      *heater.Heater
	interpreter *command.Interpreter
	framer      *line.Framer
	conf        Config

	rbuf       [256]byte
	lines      []string
	steps      uint64
	failures   uint32
	nodeErrors uint32
	nodeBroken bool
}

// New node may be nil when relay runs without measurement node.
func New(log *log2.Log, stat *metrics.Stat, clock helpers.Clock, conf Config,
	node uart.Porter, sink transport.Sink, enc *telemetry.Encoder, h *heater.Heater) *Loop {
	if conf.Idle <= 0 {
		conf.Idle = DefaultIdle
	}
	self := &Loop{
		log:     log,
		stat:    stat,
		clock:   clock,
		node:    node,
		sink:    sink,
		encoder: enc,
		heater:  h,
		framer:  line.NewFramer(conf.LineMax, log, "node"),
		conf:    conf,
	}
	self.framer.OnOverflow = stat.Overflows.WithLabelValues("node").Inc
	self.interpreter = command.New(log, h, sink)
	self.interpreter.OnCommand = func(on bool) {
		self.stat.Commands.WithLabelValues(command.State(on)).Inc()
		self.stat.Heater.Set(boolFloat(self.heater.On()))
	}
	self.stat.Heater.Set(boolFloat(h.On()))
	return self
}

func (self *Loop) Interpreter() *command.Interpreter { return self.interpreter }
func (self *Loop) Steps() uint64                     { return self.steps }

// Step is one iteration, order is fixed: transport pump, node lines,
// transport inbound lines, telemetry. Never blocks.
func (self *Loop) Step() {
	self.steps++
	now := self.clock.Now()

	if p, ok := self.sink.(transport.Pumper); ok {
		p.Pump(now)
	}

	self.drainNode()

	for {
		s, ok := self.sink.PollInbound()
		if !ok {
			break
		}
		self.interpreter.Handle(self.sink.Name(), s)
	}

	if s, ok := self.encoder.Tick(now, self.heater.On()); ok {
		self.stat.Telemetry.Inc()
		self.sink.SendLine(s)
	}
	if f := self.encoder.Failures(); f != self.failures {
		self.stat.SensorFailures.Add(float64(f - self.failures))
		self.failures = f
	}
}

// Run repeats Step until ctx is done.
func (self *Loop) Run(ctx context.Context) error {
	idle := time.NewTicker(self.conf.Idle)
	defer idle.Stop()
	for {
		self.Step()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
		}
	}
}

// NodeErrors counts iterations where node link read failed.
func (self *Loop) NodeErrors() uint32 { return self.nodeErrors }

// drainNode reads error is logged once per failure streak, iteration continues without node input.
func (self *Loop) drainNode() {
	if self.node == nil {
		return
	}
	for total := 0; total < nodeReadMax; {
		n, err := self.node.ReadAvailable(self.rbuf[:])
		if n > 0 {
			total += n
			self.lines = append(self.lines[:0], self.framer.Write(self.rbuf[:n])...)
			for _, s := range self.lines {
				self.nodeLine(s)
			}
		}
		if err != nil {
			self.nodeErrors++
			if !self.nodeBroken {
				self.nodeBroken = true
				self.log.Error(errors.Annotate(err, "node read"))
			}
			return
		}
		if n == 0 {
			break
		}
	}
	if self.nodeBroken {
		self.nodeBroken = false
		self.log.Infof("node link recovered")
	}
}

func (self *Loop) nodeLine(s string) {
	self.stat.NodeLines.Inc()
	if self.conf.LogRx {
		self.log.Debugf("node rx: %s", s)
	}
	if self.interpreter.Handle("node", s) {
		return
	}
	if s == "" {
		return
	}
	if self.sink.SendLine(s) {
		self.stat.RelayedLines.Inc()
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
