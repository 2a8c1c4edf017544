package transport

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/samdemo/samrelay/log2"
)

const (
	DefaultTopicPrefix = "samrelay"

	topicTelemetry = "telemetry"
	topicCommand   = "command"
	topicStatus    = "status"

	statusOnline  = "online"
	statusOffline = "offline"
)

var mqttLogOnce sync.Once

// MqttDialer publishes lines to <prefix>/telemetry and receives lines from <prefix>/command.
// Every attempt is fresh client without auto reconnect, Supervisor owns retry policy.
type MqttDialer struct {
	Log            *log2.Log
	Broker         string
	ClientId       string
	Username       string
	Password       string
	TopicPrefix    string
	ConnectTimeout time.Duration

	// WriteTimeout bounds Publish on run loop goroutine when outbound queue is full.
	WriteTimeout time.Duration
}

// compile-time interface check
var _ Dialer = &MqttDialer{}

func (self *MqttDialer) Name() string { return "mqtt" }

func (self *MqttDialer) Topic(suffix string) string {
	prefix := self.TopicPrefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}

func (self *MqttDialer) options(gen uint32, ev Events) *mqtt.ClientOptions {
	timeout := self.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultReconnect
	}
	writeTimeout := self.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	opt := mqtt.NewClientOptions().
		AddBroker(self.Broker).
		SetClientID(self.ClientId).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(timeout).
		SetWriteTimeout(writeTimeout).
		SetOrderMatters(false).
		SetWill(self.Topic(topicStatus), statusOffline, 1, true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			ev.OnClose(gen, errors.Annotate(err, "mqtt connection lost"))
		})
	if self.Username != "" {
		opt.SetUsername(self.Username).SetPassword(self.Password)
	}
	return opt
}

func (self *MqttDialer) Dial(gen uint32, ev Events) {
	mqttLogOnce.Do(func() {
		mqtt.ERROR = self.Log.Printer(log2.LError, "mqtt ")
		mqtt.CRITICAL = self.Log.Printer(log2.LError, "mqtt ")
		mqtt.WARN = self.Log.Printer(log2.LWarning, "mqtt ")
		mqtt.DEBUG = self.Log.Printer(log2.LDebug, "mqtt ")
	})
	opt := self.options(gen, ev)
	timeout := opt.ConnectTimeout
	client := mqtt.NewClient(opt)
	go func() {
		if tok := client.Connect(); !tok.WaitTimeout(timeout) || tok.Error() != nil {
			ev.OnClose(gen, errors.Annotatef(tokenError(tok), "mqtt connect broker=%s", self.Broker))
			return
		}
		onMessage := func(_ mqtt.Client, msg mqtt.Message) {
			ev.OnMessage(gen, msg.Payload())
		}
		if tok := client.Subscribe(self.Topic(topicCommand), 1, onMessage); !tok.WaitTimeout(timeout) || tok.Error() != nil {
			client.Disconnect(0)
			ev.OnClose(gen, errors.Annotatef(tokenError(tok), "mqtt subscribe topic=%s", self.Topic(topicCommand)))
			return
		}
		client.Publish(self.Topic(topicStatus), 1, true, statusOnline)
		ev.OnHandshake(gen, &mqttConn{
			client:    client,
			telemetry: self.Topic(topicTelemetry),
			status:    self.Topic(topicStatus),
		})
	}()
}

func tokenError(tok mqtt.Token) error {
	if err := tok.Error(); err != nil {
		return err
	}
	return errors.Timeoutf("mqtt")
}

type mqttConn struct {
	client    mqtt.Client
	telemetry string
	status    string
}

// WriteLine is asynchronous, only immediate failures are reported.
func (self *mqttConn) WriteLine(line string) error {
	tok := self.client.Publish(self.telemetry, 0, false, line)
	select {
	case <-tok.Done():
		return errors.Annotate(tok.Error(), "mqtt publish")
	default:
		return nil
	}
}

func (self *mqttConn) Close() error {
	go func() {
		self.client.Publish(self.status, 1, true, statusOffline).WaitTimeout(time.Second)
		self.client.Disconnect(250)
	}()
	return nil
}
