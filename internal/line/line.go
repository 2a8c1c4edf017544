// Package line splits inbound byte stream into newline terminated lines.
package line

import (
	"github.com/samdemo/samrelay/log2"
)

const DefaultCapacity = 256

// Framer accumulates bytes into fixed size buffer.
// Invariant: len(buf) never exceeds cap(buf).
// Not safe for concurrent use, owned by single reader.
type Framer struct {
	Log  *log2.Log
	Tag  string // used in overflow warning
	buf  []byte
	over uint32

	// OnOverflow is called after buffer reset, optional
	OnOverflow func()
}

func NewFramer(capacity int, log *log2.Log, tag string) *Framer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Framer{
		Log: log,
		Tag: tag,
		buf: make([]byte, 0, capacity),
	}
}

func (self *Framer) Capacity() int     { return cap(self.buf) }
func (self *Framer) Len() int          { return len(self.buf) }
func (self *Framer) Overflows() uint32 { return self.over }

// Feed appends b, returns completed line on '\n'.
// '\r' is ignored. Byte that would overflow the buffer is dropped together with partial line.
func (self *Framer) Feed(b byte) (string, bool) {
	switch b {
	case '\r':
		return "", false
	case '\n':
		s := string(self.buf)
		self.buf = self.buf[:0]
		return s, true
	}
	if len(self.buf) == cap(self.buf) {
		self.over++
		self.Log.Warningf("%s line buffer overflow cap=%d, partial line discarded", self.Tag, cap(self.buf))
		self.buf = self.buf[:0]
		if self.OnOverflow != nil {
			self.OnOverflow()
		}
		return "", false
	}
	self.buf = append(self.buf, b)
	return "", false
}

// Write feeds every byte of p and returns completed lines in order.
func (self *Framer) Write(p []byte) []string {
	var lines []string
	for _, b := range p {
		if s, ok := self.Feed(b); ok {
			lines = append(lines, s)
		}
	}
	return lines
}

func (self *Framer) Reset() { self.buf = self.buf[:0] }
