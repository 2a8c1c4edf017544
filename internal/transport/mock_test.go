package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
)

type dialerMock struct {
	gens []uint32
}

func (self *dialerMock) Name() string               { return "mock" }
func (self *dialerMock) Dial(gen uint32, ev Events) { self.gens = append(self.gens, gen) }

type connMock struct {
	mu     sync.Mutex
	lines  []string
	err    error
	closed bool
}

func (self *connMock) WriteLine(line string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	if self.err != nil {
		return self.err
	}
	self.lines = append(self.lines, line)
	return nil
}

func (self *connMock) Close() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.closed = true
	return nil
}

type eventsMock struct {
	closed chan error
	conns  chan Conn
}

func newEventsMock() *eventsMock {
	return &eventsMock{closed: make(chan error, 4), conns: make(chan Conn, 4)}
}

func (self *eventsMock) OnHandshake(gen uint32, conn Conn)    { self.conns <- conn }
func (self *eventsMock) OnClose(gen uint32, err error)        { self.closed <- err }
func (self *eventsMock) OnMessage(gen uint32, payload []byte) {}

func testOptions(t testing.TB) Options {
	return Options{
		Log:      log2.NewTest(t, log2.LDebug),
		Stat:     metrics.NewStat(),
		Clock:    &helpers.ManualClock{},
		DeviceId: "dev1",
		LineMax:  64,
	}
}

// pumpUntil runs sink like relay loop does until cond or timeout.
func pumpUntil(t testing.TB, sink Sink, cond func() bool) {
	t.Helper()
	clock := helpers.NewMonoClock()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if p, ok := sink.(Pumper); ok {
			p.Pump(clock.Now())
		}
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("%s condition not met in time", sink.Name())
}
