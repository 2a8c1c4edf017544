package transport

import (
	"github.com/samdemo/samrelay/internal/line"
	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
)

const inboxQueue = 64

// inbox turns byte chunks received on background goroutines into lines
// consumed by run loop. Framer and line queue are owned by the poller.
type inbox struct {
	log    *log2.Log
	ch     chan []byte
	framer *line.Framer
	lines  []string
}

func newInbox(log *log2.Log, stat *metrics.Stat, tag string, lineMax int) *inbox {
	self := &inbox{
		log:    log,
		ch:     make(chan []byte, inboxQueue),
		framer: line.NewFramer(lineMax, log, tag),
	}
	if stat != nil {
		self.framer.OnOverflow = stat.Overflows.WithLabelValues(tag).Inc
	}
	return self
}

// push blocks when queue is full, for stream readers.
func (self *inbox) push(b []byte) { self.ch <- b }

// pushMessage takes whole message as line. Never blocks, drops message when queue is full.
func (self *inbox) pushMessage(b []byte) bool {
	m := make([]byte, len(b), len(b)+1)
	copy(m, b)
	if len(m) == 0 || m[len(m)-1] != '\n' {
		m = append(m, '\n')
	}
	select {
	case self.ch <- m:
		return true
	default:
		self.log.Errorf("%s inbound queue full, message dropped", self.framer.Tag)
		return false
	}
}

func (self *inbox) poll() (string, bool) {
	if len(self.lines) == 0 {
	drain:
		for {
			select {
			case b := <-self.ch:
				self.lines = append(self.lines, self.framer.Write(b)...)
			default:
				break drain
			}
		}
	}
	if len(self.lines) == 0 {
		return "", false
	}
	s := self.lines[0]
	self.lines[0] = ""
	self.lines = self.lines[1:]
	return s, true
}

// flush discards queued messages and partial line.
func (self *inbox) flush() {
	for {
		select {
		case <-self.ch:
		default:
			self.lines = nil
			self.framer.Reset()
			return
		}
	}
}
