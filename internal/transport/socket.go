package transport

import (
	"time"

	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
)

// Socket is wireless publish/subscribe transport. Ready iff handshake complete.
type Socket struct {
	log   *log2.Log
	stat  *metrics.Stat
	sup   *Supervisor
	in    *inbox
	name  string
	hello string
}

// compile-time interface check
var _ Sink = &Socket{}
var _ Pumper = &Socket{}

func NewSocket(opt Options, dialer Dialer, reconnect time.Duration) *Socket {
	self := &Socket{
		log:   opt.Log,
		stat:  opt.Stat,
		in:    newInbox(opt.Log, opt.Stat, "socket", opt.LineMax),
		name:  "socket/" + dialer.Name(),
		hello: HelloLine(opt.DeviceId, "socket/"+dialer.Name()),
	}
	self.sup = NewSupervisor(opt.Log, opt.Stat, dialer, reconnect, self.onConnect, func(b []byte) { self.in.pushMessage(b) })
	self.sup.OnDisconnect = self.in.flush
	return self
}

func (self *Socket) Name() string            { return self.name }
func (self *Socket) Supervisor() *Supervisor { return self.sup }
func (self *Socket) IsReady() bool           { return self.sup.State() == StateConnected }
func (self *Socket) Pump(now time.Duration)  { self.sup.Pump(now) }

// PollInbound yields nothing while disconnected. Messages of next session
// arriving before its handshake is applied wait in queue.
func (self *Socket) PollInbound() (string, bool) {
	if !self.IsReady() {
		return "", false
	}
	return self.in.poll()
}

func (self *Socket) SendLine(line string) bool {
	if !self.IsReady() {
		self.stat.Dropped.Inc()
		self.log.Infof("OFFLINE %s dropped line=%s", self.name, line)
		return false
	}
	if err := self.sup.Conn().WriteLine(line); err != nil {
		self.stat.Dropped.Inc()
		self.sup.Drop(err)
		return false
	}
	return true
}

func (self *Socket) Close() error {
	if c := self.sup.Conn(); c != nil {
		return c.Close()
	}
	return nil
}

func (self *Socket) onConnect(c Conn) {
	if err := c.WriteLine(self.hello); err != nil {
		self.sup.Drop(err)
	}
}
