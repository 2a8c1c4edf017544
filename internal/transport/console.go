package transport

import (
	"io"

	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/log2"
)

// Console writes lines to local output, reads commands typed on local input.
// Always ready, SendLine never fails.
type Console struct {
	log *log2.Log
	w   io.Writer
	in  *inbox
	buf []byte
}

// compile-time interface check
var _ Sink = &Console{}

func NewConsole(opt Options, r io.Reader, w io.Writer) *Console {
	self := &Console{
		log: opt.Log,
		w:   w,
		in:  newInbox(opt.Log, opt.Stat, "console", opt.LineMax),
	}
	if r != nil {
		go self.readLoop(r)
	}
	return self
}

func (self *Console) Name() string  { return "console" }
func (self *Console) IsReady() bool { return true }

func (self *Console) SendLine(line string) bool {
	var err error
	if self.buf, err = helpers.WriteLine(self.w, self.buf, line); err != nil {
		self.log.Debugf("console write err=%v", err)
	}
	return true
}

func (self *Console) PollInbound() (string, bool) { return self.in.poll() }

func (self *Console) Close() error { return nil }

func (self *Console) readLoop(r io.Reader) {
	for {
		buf := make([]byte, 256)
		n, err := r.Read(buf)
		if n > 0 {
			self.in.push(buf[:n])
		}
		if err != nil {
			if err != io.EOF {
				self.log.Errorf("console read err=%v", err)
			}
			return
		}
	}
}
