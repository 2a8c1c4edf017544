package config

import (
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/log2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	t.Parallel()

	type Case struct {
		name      string
		sources   map[string]string
		check     func(testing.TB, *Config)
		expectErr string
	}
	cases := []Case{
		{"empty-defaults", map[string]string{"main": ""}, func(t testing.TB, c *Config) {
			assert.Equal(t, TransportConsole, c.Transport)
			assert.Equal(t, "samrelay", c.DeviceId)
			assert.Equal(t, 115200, c.Node.Baud)
			assert.Equal(t, SensorBME280, c.Sensor.Driver)
			assert.Equal(t, []uint16{0x76, 0x77}, c.SensorAddresses())
			assert.Equal(t, 1*time.Second, c.SensorInterval())
			assert.Equal(t, 2*time.Second, c.SensorDetectRetry())
			assert.Equal(t, 3*time.Second, c.SocketReconnect())
			assert.Equal(t, 5*time.Millisecond, c.LoopIdle())
		}, ""},

		{"socket-websocket", map[string]string{"main": `
device_id = "lab-1"
transport = "socket"
socket {
  url = "ws://192.168.1.20:8765"
  reconnect_ms = 500
}`}, func(t testing.TB, c *Config) {
			assert.Equal(t, TransportSocket, c.Transport)
			assert.Equal(t, SocketWebsocket, c.Socket.Kind)
			assert.Equal(t, "ws://192.168.1.20:8765", c.Socket.URL)
			assert.Equal(t, 500*time.Millisecond, c.SocketReconnect())
			assert.Equal(t, "lab-1", c.Socket.TopicPrefix)
		}, ""},

		{"include", map[string]string{
			"main": `
include "node.hcl" {}
include "missing.hcl" { optional = true }
transport = "serial"
serial { device = "/dev/rfcomm0" name = "SAMDEMO-BT" }`,
			"node.hcl": `
node {
  device = "/dev/ttyUSB0"
  line_max = 128
}
sensor {
  driver = "demo"
  addresses = [119]
  interval_ms = 5000
}`,
		}, func(t testing.TB, c *Config) {
			assert.Equal(t, "/dev/ttyUSB0", c.Node.Device)
			assert.Equal(t, 128, c.Node.LineMax)
			assert.Equal(t, SensorDemo, c.Sensor.Driver)
			assert.Equal(t, []uint16{0x77}, c.SensorAddresses())
			assert.Equal(t, 5*time.Second, c.SensorInterval())
			assert.Equal(t, "/dev/rfcomm0", c.Serial.Device)
			assert.Equal(t, "SAMDEMO-BT", c.Serial.Name)
		}, ""},

		{"include-required-missing", map[string]string{"main": `include "nope.hcl" {}`}, nil,
			"config required name=nope.hcl path=nope.hcl not found"},

		{"include-loop", map[string]string{
			"main": `include "a.hcl" {}`,
			"a.hcl": `include "main" {}`,
		}, nil, "config include loop: from=a.hcl include=main"},

		{"invalid-transport", map[string]string{"main": `transport = "carrier-pigeon"`}, nil,
			"transport=carrier-pigeon (expected console|socket|serial) not valid"},

		{"socket-without-url", map[string]string{"main": `
transport = "socket"
socket { kind = "smoke-signal" }`}, nil,
			"socket.kind=smoke-signal (expected websocket|mqtt) not valid\nsocket.url empty not valid"},

		{"heater-without-pin", map[string]string{"main": `heater { pin_chip = "/dev/gpiochip0" }`}, nil,
			"heater.pin empty with pin_chip=/dev/gpiochip0 not valid"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			log := log2.NewTest(t, log2.LDebug)
			fs := NewMockFullReader(c.sources)
			cfg, err := Read(log, fs, "main")
			if c.expectErr == "" {
				require.NoError(t, err, errors.ErrorStack(err))
				c.check(t, cfg)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), c.expectErr)
			}
		})
	}
}

func TestReadWithoutNames(t *testing.T) {
	t.Parallel()

	_, err := Read(log2.NewTest(t, log2.LDebug), NewMockFullReader(nil))
	require.Error(t, err)
}
