// Package transport delivers lines to exactly one downstream channel:
// local console, wireless socket (websocket or MQTT) or wireless serial profile (RFCOMM tty).
//
// Sink contract:
// - SendLine never waits for network, at most for single short write with deadline
// - SendLine on not ready sink drops the line and logs OFFLINE, dropped lines are never retried
// - PollInbound never blocks, returns ok=false when no complete line is pending
// - on becoming ready, identification line is sent before any other traffic
package transport

import (
	"encoding/json"
	"os"
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/hardware/uart"
	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
)

type Sink interface {
	Name() string
	IsReady() bool
	SendLine(line string) bool
	PollInbound() (string, bool)
	Close() error
}

// Pumper is implemented by sinks with reconnection supervisor, run loop calls Pump every iteration.
type Pumper interface {
	Pump(now time.Duration)
}

type Options struct {
	Log      *log2.Log
	Stat     *metrics.Stat
	Clock    helpers.Clock
	DeviceId string
	LineMax  int
}

// HelloLine identifies this relay to the consumer on the other side.
func HelloLine(deviceId, transport string) string {
	d, _ := json.Marshal(deviceId)
	t, _ := json.Marshal(transport)
	return `{"type":"hello","device":` + string(d) + `,"transport":` + string(t) + `}`
}

// Open creates the single sink selected by config. Called once at startup.
func Open(c *config.Config, opt Options) (Sink, error) {
	if opt.Stat == nil {
		opt.Stat = metrics.NewStat()
	}
	if opt.Clock == nil {
		opt.Clock = helpers.NewMonoClock()
	}
	if opt.DeviceId == "" {
		opt.DeviceId = c.DeviceId
	}
	if opt.LineMax == 0 {
		opt.LineMax = c.Node.LineMax
	}

	switch c.Transport {
	case config.TransportConsole:
		return NewConsole(opt, os.Stdin, os.Stdout), nil

	case config.TransportSocket:
		var dialer Dialer
		switch c.Socket.Kind {
		case config.SocketWebsocket:
			dialer = NewWebsocketDialer(c.Socket.URL, c.SocketReconnect(), c.SocketWriteTimeout())
		case config.SocketMqtt:
			mqttLog := opt.Log.Clone(log2.LWarning)
			if c.Socket.LogDebug {
				mqttLog.SetLevel(log2.LDebug)
			}
			dialer = &MqttDialer{
				Log:            mqttLog,
				Broker:         c.Socket.URL,
				ClientId:       opt.DeviceId,
				Username:       c.Socket.Username,
				Password:       c.Socket.Password,
				TopicPrefix:    c.Socket.TopicPrefix,
				ConnectTimeout: c.SocketReconnect(),
				WriteTimeout:   c.SocketWriteTimeout(),
			}
		default:
			return nil, errors.NotValidf("socket.kind=%s", c.Socket.Kind)
		}
		return NewSocket(opt, dialer, c.SocketReconnect()), nil

	case config.TransportSerial:
		opener := func(path string, baud int) (SerialPort, error) {
			p, err := uart.Open(path, baud)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
		return NewSerial(opt, SerialConfig{
			Device:         c.Serial.Device,
			Baud:           c.Serial.Baud,
			Name:           c.Serial.Name,
			RequireCarrier: c.Serial.RequireCarrier,
			Reopen:         c.SerialReopen(),
		}, opener), nil
	}
	return nil, errors.NotValidf("transport=%s", c.Transport)
}
