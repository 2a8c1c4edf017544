package transport

import (
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/hardware/uart"
	"github.com/samdemo/samrelay/internal/line"
	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
)

const DefaultSerialReopen = time.Second

type SerialPort interface {
	uart.Porter
	Carrier() (bool, error)
}

type SerialConfig struct {
	Device         string
	Baud           int
	Name           string
	RequireCarrier bool
	Reopen         time.Duration
}

// Serial is wireless serial profile link, e.g. RFCOMM tty bound to paired phone.
// No handshake events: readiness is polled on every Pump.
type Serial struct {
	log    *log2.Log
	stat   *metrics.Stat
	conf   SerialConfig
	open   func(path string, baud int) (SerialPort, error)
	name   string
	hello  string
	framer *line.Framer

	port      SerialPort
	ready     bool
	attempted bool
	lastOpen  time.Duration
	rbuf      [256]byte
	wbuf      []byte
	lines     []string

	// previous write left unterminated fragment on the wire
	partial bool
}

// compile-time interface check
var _ Sink = &Serial{}
var _ Pumper = &Serial{}

func NewSerial(opt Options, conf SerialConfig, open func(path string, baud int) (SerialPort, error)) *Serial {
	if conf.Reopen <= 0 {
		conf.Reopen = DefaultSerialReopen
	}
	name := "serial"
	if conf.Name != "" {
		name += "/" + conf.Name
	}
	self := &Serial{
		log:    opt.Log,
		stat:   opt.Stat,
		conf:   conf,
		open:   open,
		name:   name,
		hello:  HelloLine(opt.DeviceId, name),
		framer: line.NewFramer(opt.LineMax, opt.Log, name),
	}
	self.framer.OnOverflow = opt.Stat.Overflows.WithLabelValues("serial").Inc
	return self
}

func (self *Serial) Name() string  { return self.name }
func (self *Serial) IsReady() bool { return self.ready }

func (self *Serial) Pump(now time.Duration) {
	if self.port == nil {
		if self.attempted && now-self.lastOpen < self.conf.Reopen {
			return
		}
		self.attempted = true
		self.lastOpen = now
		self.stat.ConnectAttempts.Inc()
		port, err := self.open(self.conf.Device, self.conf.Baud)
		if err != nil {
			self.log.Debugf("%s open err=%v", self.name, err)
			return
		}
		self.log.Infof("%s opened device=%s", self.name, self.conf.Device)
		self.port = port
		self.framer.Reset()
	}

	up := true
	if self.conf.RequireCarrier {
		var err error
		if up, err = self.port.Carrier(); err != nil {
			self.drop(errors.Annotate(err, "carrier"))
			return
		}
	}
	switch {
	case up && !self.ready:
		self.ready = true
		self.stat.Connected.Set(1)
		self.log.Infof("%s connected", self.name)
		self.write(self.hello)
	case !up && self.ready:
		self.ready = false
		self.stat.Connected.Set(0)
		self.log.Infof("%s carrier lost", self.name)
		self.discardInbound()
	}
}

func (self *Serial) SendLine(line string) bool {
	if !self.ready {
		self.stat.Dropped.Inc()
		self.log.Infof("OFFLINE %s dropped line=%s", self.name, line)
		return false
	}
	return self.write(line)
}

// PollInbound yields nothing while not ready. Bytes received meanwhile are discarded.
func (self *Serial) PollInbound() (string, bool) {
	if len(self.lines) == 0 && self.port != nil {
		n, err := self.port.ReadAvailable(self.rbuf[:])
		if n > 0 {
			self.lines = append(self.lines, self.framer.Write(self.rbuf[:n])...)
		}
		if err != nil {
			self.drop(errors.Annotate(err, "read"))
		}
	}
	if !self.ready {
		self.discardInbound()
		return "", false
	}
	if len(self.lines) == 0 {
		return "", false
	}
	s := self.lines[0]
	self.lines = self.lines[1:]
	return s, true
}

func (self *Serial) Close() error {
	if self.port == nil {
		return nil
	}
	err := self.port.Close()
	self.port = nil
	self.ready = false
	return err
}

// write sends line with LF. Short write leaves fragment on the wire,
// it is terminated with LF right away or before next line, so receiver never glues lines.
func (self *Serial) write(line string) bool {
	self.wbuf = self.wbuf[:0]
	if self.partial {
		self.wbuf = append(self.wbuf, '\n')
	}
	head := len(self.wbuf)
	self.wbuf = append(append(self.wbuf, line...), '\n')
	n, err := self.port.Write(self.wbuf)
	if err == nil {
		self.partial = false
		return true
	}
	if n >= head {
		self.partial = n > head
	}
	self.stat.Dropped.Inc()
	if errors.Cause(err) != uart.ErrBusy {
		self.drop(errors.Annotate(err, "write"))
		return false
	}
	self.log.Errorf("%s output busy, line dropped", self.name)
	if self.partial {
		if n, _ = self.port.Write([]byte{'\n'}); n == 1 {
			self.partial = false
		}
	}
	return false
}

func (self *Serial) discardInbound() {
	self.lines = nil
	self.framer.Reset()
}

func (self *Serial) drop(err error) {
	self.log.Errorf("%s connection dropped err=%v", self.name, err)
	if self.port != nil {
		_ = self.port.Close()
	}
	self.port = nil
	if self.ready {
		self.stat.Connected.Set(0)
	}
	self.ready = false
	self.partial = false
	self.discardInbound()
}
