package uart

import (
	"os"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSpeedFlag(t *testing.T) {
	t.Parallel()

	s, ok := speedFlag(115200)
	require.True(t, ok)
	assert.Equal(t, uint32(unix.B115200), s)
	_, ok = speedFlag(12345)
	assert.False(t, ok)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := Open("/dev/null", 12345)
	require.Error(t, err)
	assert.True(t, errors.IsNotSupported(err))

	_, err = Open("/nonexistent/tty-samrelay-test", 115200)
	require.Error(t, err)
	// /dev/null is not a tty, TCGETS must fail
	_, err = Open(os.DevNull, 115200)
	require.Error(t, err)
}

func TestClosedPort(t *testing.T) {
	t.Parallel()

	p := &Port{fd: -1}
	_, err := p.ReadAvailable(make([]byte, 8))
	assert.Equal(t, os.ErrClosed, err)
	_, err = p.Write([]byte("x"))
	assert.Equal(t, os.ErrClosed, err)
	_, err = p.Carrier()
	assert.Equal(t, os.ErrClosed, err)
	assert.NoError(t, p.Close())
}

func TestWriteBusy(t *testing.T) {
	t.Parallel()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe2(fds, unix.O_NONBLOCK|unix.O_CLOEXEC))
	r, w := fds[0], fds[1]
	defer unix.Close(r)
	p := &Port{path: "pipe", baud: 9600, fd: w}
	defer p.Close()

	junk := make([]byte, 4096)
	for {
		_, err := unix.Write(w, junk)
		if err == unix.EAGAIN {
			break
		}
		require.NoError(t, err)
	}

	n, err := p.Write([]byte("HEATER_ON\n"))
	assert.Equal(t, ErrBusy, err)
	assert.Equal(t, 0, n)

	// reader frees space within write budget of 100 chars at 9600 baud
	go func() {
		time.Sleep(10 * time.Millisecond)
		for {
			if _, err := unix.Read(r, junk); err != nil {
				return
			}
		}
	}()
	line := make([]byte, 100)
	n, err = p.Write(line)
	assert.NoError(t, err)
	assert.Equal(t, len(line), n)
}
