package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/log2"
)

const (
	TransportConsole = "console"
	TransportSocket  = "socket"
	TransportSerial  = "serial"

	SocketWebsocket = "websocket"
	SocketMqtt      = "mqtt"

	SensorBME280 = "bme280"
	SensorDemo   = "demo"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	DeviceId   string `hcl:"device_id"`
	Transport  string `hcl:"transport"`
	LogDebug   bool   `hcl:"log_debug"`
	LoopIdleMs int    `hcl:"loop_idle_ms"`

	Node struct {
		Device  string `hcl:"device"`
		Baud    int    `hcl:"baud"`
		LineMax int    `hcl:"line_max"`
		LogRx   bool   `hcl:"log_rx"`
	} `hcl:"node"`

	Sensor struct {
		Driver        string `hcl:"driver"`
		I2cBus        string `hcl:"i2c_bus"`
		Addresses     []int  `hcl:"addresses"`
		IntervalMs    int    `hcl:"interval_ms"`
		DetectRetryMs int    `hcl:"detect_retry_ms"`
	} `hcl:"sensor"`

	Heater struct {
		PinChip   string `hcl:"pin_chip"`
		Pin       string `hcl:"pin"`
		ActiveLow bool   `hcl:"active_low"`
	} `hcl:"heater"`

	Socket struct {
		Kind           string `hcl:"kind"`
		URL            string `hcl:"url"`
		ReconnectMs    int    `hcl:"reconnect_ms"`
		WriteTimeoutMs int    `hcl:"write_timeout_ms"`
		TopicPrefix    string `hcl:"topic_prefix"`
		Username       string `hcl:"username"`
		Password       string `hcl:"password"`
		LogDebug       bool   `hcl:"log_debug"`
	} `hcl:"socket"`

	Serial struct {
		Device         string `hcl:"device"`
		Baud           int    `hcl:"baud"`
		Name           string `hcl:"name"`
		RequireCarrier bool   `hcl:"require_carrier"`
		ReopenMs       int    `hcl:"reopen_ms"`
	} `hcl:"serial"`

	Metrics struct {
		Listen string `hcl:"listen"`
	} `hcl:"metrics"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func (c *Config) LoopIdle() time.Duration {
	return helpers.IntMillisecondDefault(c.LoopIdleMs, 5*time.Millisecond)
}
func (c *Config) SensorInterval() time.Duration {
	return helpers.IntMillisecondDefault(c.Sensor.IntervalMs, 1*time.Second)
}
func (c *Config) SensorDetectRetry() time.Duration {
	return helpers.IntMillisecondDefault(c.Sensor.DetectRetryMs, 2*time.Second)
}
func (c *Config) SocketReconnect() time.Duration {
	return helpers.IntMillisecondDefault(c.Socket.ReconnectMs, 3*time.Second)
}
func (c *Config) SocketWriteTimeout() time.Duration {
	return helpers.IntMillisecondDefault(c.Socket.WriteTimeoutMs, 100*time.Millisecond)
}
func (c *Config) SerialReopen() time.Duration {
	return helpers.IntMillisecondDefault(c.Serial.ReopenMs, 1*time.Second)
}

func (c *Config) SensorAddresses() []uint16 {
	if len(c.Sensor.Addresses) == 0 {
		return []uint16{0x76, 0x77}
	}
	as := make([]uint16, len(c.Sensor.Addresses))
	for i, a := range c.Sensor.Addresses {
		as[i] = uint16(a)
	}
	return as
}

// Validate fills defaults and reports all problems at once.
func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.DeviceId == "" {
		c.DeviceId = "samrelay"
	}
	if c.Transport == "" {
		c.Transport = TransportConsole
	}
	if c.Node.Baud == 0 {
		c.Node.Baud = 115200
	}
	if c.Sensor.Driver == "" {
		c.Sensor.Driver = SensorBME280
	}
	if c.Socket.Kind == "" {
		c.Socket.Kind = SocketWebsocket
	}
	if c.Socket.TopicPrefix == "" {
		c.Socket.TopicPrefix = c.DeviceId
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = 115200
	}
	if c.Serial.Name == "" {
		c.Serial.Name = c.DeviceId
	}

	switch c.Transport {
	case TransportConsole:
	case TransportSocket:
		switch c.Socket.Kind {
		case SocketWebsocket, SocketMqtt:
		default:
			errs = append(errs, errors.NotValidf("socket.kind=%s (expected websocket|mqtt)", c.Socket.Kind))
		}
		if c.Socket.URL == "" {
			errs = append(errs, errors.NotValidf("socket.url empty"))
		}
	case TransportSerial:
		if c.Serial.Device == "" {
			errs = append(errs, errors.NotValidf("serial.device empty"))
		}
	default:
		errs = append(errs, errors.NotValidf("transport=%s (expected console|socket|serial)", c.Transport))
	}
	switch c.Sensor.Driver {
	case SensorBME280, SensorDemo:
	default:
		errs = append(errs, errors.NotValidf("sensor.driver=%s (expected bme280|demo)", c.Sensor.Driver))
	}
	for _, a := range c.Sensor.Addresses {
		if a <= 0 || a > 0x7f {
			errs = append(errs, errors.NotValidf("sensor.addresses item=%d", a))
		}
	}
	if c.Heater.PinChip != "" && c.Heater.Pin == "" {
		errs = append(errs, errors.NotValidf("heater.pin empty with pin_chip=%s", c.Heater.PinChip))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, strings.TrimSpace(string(bs)))
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error config.Read() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, err
	}
	return c, c.Validate()
}

func MustRead(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := Read(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
