package monitor

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/samdemo/samrelay/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type portMock struct {
	in      bytes.Buffer
	written bytes.Buffer
	err     error
}

func (self *portMock) ReadAvailable(p []byte) (int, error) {
	if self.in.Len() == 0 {
		return 0, self.err
	}
	return self.in.Read(p)
}
func (self *portMock) Write(p []byte) (int, error) { return self.written.Write(p) }
func (self *portMock) Close() error                { return nil }

func TestFormatLine(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 9, 7, 3, 45*int(time.Millisecond), time.Local)
	assert.Equal(t, "[09:07:03.045] hello", formatLine(ts, "hello"))
}

func TestPoll(t *testing.T) {
	t.Parallel()

	port := &portMock{}
	out := bytes.NewBuffer(nil)
	m := newMonitor(log2.NewTest(t, log2.LDebug), port, out, 64)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)

	port.in.WriteString("=== SAMDEMO ===\r\n\r\n{\"type\":\"sensor\"}\npart")
	require.NoError(t, m.poll(ts))
	assert.Equal(t, "[12:00:00.000] === SAMDEMO ===\n[12:00:00.000] {\"type\":\"sensor\"}\n", out.String())
	assert.Equal(t, uint32(2), m.Lines())

	port.err = fmt.Errorf("disconnected")
	assert.Error(t, m.poll(ts))
}

func TestExec(t *testing.T) {
	t.Parallel()

	port := &portMock{}
	out := bytes.NewBuffer(nil)
	m := newMonitor(log2.NewTest(t, log2.LDebug), port, out, 64)

	m.exec("  HEATER_ON ")
	m.exec("")
	m.exec("HEATER_OFF")
	assert.Equal(t, "HEATER_ON\nHEATER_OFF\n", port.written.String())

	m.exec("/help")
	assert.Contains(t, out.String(), "/ports")
}

func TestListPorts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"ttyUSB1", "ttyUSB0", "other"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
	}
	s := listPorts([]string{filepath.Join(dir, "ttyUSB*")})
	assert.Equal(t, fmt.Sprintf("serial ports:\n  %s/ttyUSB0\n  %s/ttyUSB1\n", dir, dir), s)
	assert.Equal(t, "no serial ports found\n", listPorts([]string{filepath.Join(dir, "rfcomm*")}))
}
