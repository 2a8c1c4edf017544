package transport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
)

const DefaultReconnect = 3 * time.Second

type State int32

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Conn is established socket session. Used only from run loop goroutine,
// except Close which must be safe to call concurrently with reader.
type Conn interface {
	WriteLine(line string) error
	Close() error
}

// Events receives connection progress. Safe to call from any goroutine.
// gen identifies connection attempt, callbacks of superseded attempts are ignored.
type Events interface {
	OnHandshake(gen uint32, conn Conn)
	OnClose(gen uint32, err error)
	OnMessage(gen uint32, payload []byte)
}

// Dialer starts connection attempt in background and returns immediately.
// Reports either OnHandshake followed later by OnClose, or only OnClose on failure.
type Dialer interface {
	Name() string
	Dial(gen uint32, ev Events)
}

type eventKind uint8

const (
	eventHandshake eventKind = iota + 1
	eventClose
)

type event struct {
	kind eventKind
	gen  uint32
	conn Conn
	err  error
}

// Supervisor keeps socket connected. It never sleeps or blocks:
// Pump applies queued callbacks and starts at most one attempt,
// no sooner than interval after previous attempt. Retries are unlimited.
type Supervisor struct {
	log      *log2.Log
	stat     *metrics.Stat
	dialer   Dialer
	interval time.Duration

	events    chan event
	onConnect func(Conn)
	onMessage func([]byte)

	// OnDisconnect is called on run loop goroutine after leaving Connected
	// or failed attempt. Messages of closed session are ignored from that point.
	OnDisconnect func()

	gen uint32 // atomic, written only by run loop

	// owned by run loop goroutine
	state       State
	conn        Conn
	dialing     bool
	attempted   bool
	lastAttempt time.Duration
}

// compile-time interface check
var _ Events = &Supervisor{}

// NewSupervisor onConnect is called on run loop goroutine right after entering Connected,
// before any other traffic may use the connection.
func NewSupervisor(log *log2.Log, stat *metrics.Stat, dialer Dialer, interval time.Duration, onConnect func(Conn), onMessage func([]byte)) *Supervisor {
	if interval <= 0 {
		interval = DefaultReconnect
	}
	return &Supervisor{
		log:       log,
		stat:      stat,
		dialer:    dialer,
		interval:  interval,
		events:    make(chan event, 16),
		onConnect: onConnect,
		onMessage: onMessage,
		state:     StateDisconnected,
	}
}

func (self *Supervisor) State() State { return self.state }

// Conn is nil unless Connected.
func (self *Supervisor) Conn() Conn { return self.conn }

func (self *Supervisor) OnHandshake(gen uint32, conn Conn) {
	self.events <- event{kind: eventHandshake, gen: gen, conn: conn}
}

func (self *Supervisor) OnClose(gen uint32, err error) {
	self.events <- event{kind: eventClose, gen: gen, err: err}
}

func (self *Supervisor) OnMessage(gen uint32, payload []byte) {
	if gen != atomic.LoadUint32(&self.gen) {
		return
	}
	if self.onMessage != nil {
		self.onMessage(payload)
	}
}

func (self *Supervisor) Pump(now time.Duration) {
drain:
	for {
		select {
		case ev := <-self.events:
			self.apply(ev)
		default:
			break drain
		}
	}

	if self.state != StateDisconnected || self.dialing {
		return
	}
	if self.attempted && now-self.lastAttempt < self.interval {
		return
	}
	gen := atomic.AddUint32(&self.gen, 1)
	self.dialing = true
	self.attempted = true
	self.lastAttempt = now
	self.stat.ConnectAttempts.Inc()
	self.log.Debugf("transport %s connect attempt=%d", self.dialer.Name(), gen)
	self.dialer.Dial(gen, self)
}

// Drop moves to Disconnected immediately, e.g. after write error.
// Late callbacks of dropped connection are ignored.
func (self *Supervisor) Drop(err error) {
	if self.state != StateConnected {
		return
	}
	self.log.Errorf("transport %s connection dropped err=%v", self.dialer.Name(), err)
	self.disconnect()
}

func (self *Supervisor) apply(ev event) {
	if current := atomic.LoadUint32(&self.gen); ev.gen != current {
		self.log.Debugf("transport %s ignore stale event kind=%d gen=%d current=%d", self.dialer.Name(), ev.kind, ev.gen, current)
		if ev.kind == eventHandshake && ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}
	switch ev.kind {
	case eventHandshake:
		self.dialing = false
		if self.state == StateConnected {
			return
		}
		self.state = StateConnected
		self.conn = ev.conn
		self.stat.Connected.Set(1)
		self.log.Infof("transport %s connected", self.dialer.Name())
		if self.onConnect != nil {
			self.onConnect(ev.conn)
		}

	case eventClose:
		self.dialing = false
		if self.state == StateConnected {
			self.log.Errorf("transport %s disconnected err=%v", self.dialer.Name(), ev.err)
			self.disconnect()
		} else {
			self.log.Infof("transport %s connect failed err=%v", self.dialer.Name(), ev.err)
			if self.OnDisconnect != nil {
				self.OnDisconnect()
			}
		}
	}
}

// disconnect also retires current generation, so late callbacks of closed session are stale.
func (self *Supervisor) disconnect() {
	atomic.AddUint32(&self.gen, 1)
	if self.conn != nil {
		_ = self.conn.Close()
	}
	self.conn = nil
	self.state = StateDisconnected
	self.dialing = false
	self.stat.Connected.Set(0)
	if self.OnDisconnect != nil {
		self.OnDisconnect()
	}
}
