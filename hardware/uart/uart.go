// Package uart is raw 8N1 serial port with non-blocking reads.
// Used for measurement node link and RFCOMM (wireless serial profile) tty.
package uart

import (
	"io"
	"os"
	"time"

	"github.com/juju/errors"
	"golang.org/x/sys/unix"
)

const DefaultBaud = 115200

var ErrBusy = errors.New("uart output buffer full")

// Porter is what relay needs from serial link, mocked in tests.
type Porter interface {
	// ReadAvailable returns immediately, n=0 when nothing pending.
	ReadAvailable(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

type Port struct {
	path string
	baud int
	fd   int
}

// compile-time interface check
var _ Porter = &Port{}

func Open(path string, baud int) (*Port, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	speed, ok := speedFlag(baud)
	if !ok {
		return nil, errors.NotSupportedf("uart baud=%d", baud)
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0600)
	if err != nil {
		return nil, errors.Annotatef(os.NewSyscallError("open", err), "uart path=%s", path)
	}
	if err = resetTermios(fd, speed); err != nil {
		unix.Close(fd)
		return nil, errors.Annotatef(err, "uart path=%s baud=%d", path, baud)
	}
	// drop garbage received before we configured the line
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
	return &Port{path: path, baud: baud, fd: fd}, nil
}

func (self *Port) Path() string { return self.path }

func (self *Port) ReadAvailable(p []byte) (int, error) {
	if self.fd < 0 {
		return 0, os.ErrClosed
	}
	n, err := unix.Read(self.fd, p)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, nil
	case err != nil:
		return 0, os.NewSyscallError("read", err)
	case n == 0 && len(p) > 0:
		// tty hangup
		return 0, io.EOF
	}
	return n, nil
}

// Write waits for output buffer space at most one character time per byte of p,
// then returns ErrBusy with partial count.
func (self *Port) Write(p []byte) (int, error) {
	if self.fd < 0 {
		return 0, os.ErrClosed
	}
	deadline := time.Now().Add(time.Duration(len(p)) * self.charTime())
	total := 0
	for total < len(p) {
		n, err := unix.Write(self.fd, p[total:])
		if n > 0 {
			total += n
		}
		switch {
		case err == unix.EAGAIN:
			left := time.Until(deadline)
			if left <= 0 {
				return total, ErrBusy
			}
			if err = self.waitWritable(left); err != nil {
				return total, err
			}
		case err == unix.EINTR:
			continue
		case err != nil:
			return total, os.NewSyscallError("write", err)
		}
	}
	return total, nil
}

// charTime is 10 bits of 8N1 frame.
func (self *Port) charTime() time.Duration {
	baud := self.baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	return 10 * time.Second / time.Duration(baud)
}

func (self *Port) waitWritable(d time.Duration) error {
	ms := int((d + time.Millisecond - 1) / time.Millisecond)
	fds := []unix.PollFd{{Fd: int32(self.fd), Events: unix.POLLOUT}}
	if _, err := unix.Poll(fds, ms); err != nil && err != unix.EINTR {
		return os.NewSyscallError("poll", err)
	}
	return nil
}

// Carrier reports data carrier detect modem line. RFCOMM tty raises it while peer is connected.
func (self *Port) Carrier() (bool, error) {
	if self.fd < 0 {
		return false, os.ErrClosed
	}
	status, err := unix.IoctlGetInt(self.fd, unix.TIOCMGET)
	if err != nil {
		return false, os.NewSyscallError("TIOCMGET", err)
	}
	return status&unix.TIOCM_CD != 0, nil
}

func (self *Port) Close() error {
	if self.fd < 0 {
		return nil
	}
	err := unix.Close(self.fd)
	self.fd = -1
	return err
}

func resetTermios(fd int, speed uint32) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return os.NewSyscallError("TCGETS", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if err = unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return os.NewSyscallError("TCSETS", err)
	}
	return nil
}

func speedFlag(baud int) (uint32, bool) {
	switch baud {
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	}
	return 0, false
}
