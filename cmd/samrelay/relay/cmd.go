// Main mode of operation: relay node lines and sensor telemetry to transport,
// apply heater commands.
package relay

import (
	"context"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/samdemo/samrelay/cmd/samrelay/subcmd"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/relay"
	"github.com/samdemo/samrelay/internal/state"
	"github.com/samdemo/samrelay/internal/telemetry"
)

var Mod = subcmd.Mod{Name: "relay", Usage: "run relay service (default)", Main: Main}

func Main(ctx context.Context, conf *config.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, conf)
	g.StopOnSignal()
	defer func() {
		if err := g.CloseHardware(); err != nil {
			g.Log.Error(errors.Annotate(err, "close hardware"))
		}
	}()

	loop, err := Setup(ctx)
	if err != nil {
		return err
	}

	subcmd.SdNotify(daemon.SdNotifyReady)
	g.Log.Infof("relay running transport=%s", conf.Transport)
	err = loop.Run(g.Context(ctx))
	if errors.Cause(err) == context.Canceled {
		g.Log.Infof("relay stopped steps=%d", loop.Steps())
		return nil
	}
	return err
}

// Setup brings up hardware in boot order: heater is forced off first,
// sensor detection blocks until found, then node link and transport.
func Setup(ctx context.Context) (*relay.Loop, error) {
	g := state.GetGlobal(ctx)
	conf := g.Config

	h, err := g.Heater()
	if err != nil {
		return nil, err
	}
	g.Log.Infof("=== samrelay %s device=%s ===", g.BuildVersion, conf.DeviceId)

	subcmd.SdNotify("STATUS=detecting sensor")
	s, err := g.Sensor()
	if err != nil {
		return nil, err
	}
	if addr := g.Hardware.Sensor.Addr; addr != 0 {
		g.Log.Infof("sensor ready driver=%s addr=0x%02x", conf.Sensor.Driver, addr)
	} else {
		g.Log.Infof("sensor ready driver=%s", conf.Sensor.Driver)
	}

	node, err := g.Node()
	if err != nil {
		return nil, err
	}
	if node == nil {
		g.Log.Infof("node link disabled (node.device empty)")
	}

	sink, err := g.Sink()
	if err != nil {
		return nil, err
	}
	g.Log.Infof("transport=%s interval=%v", sink.Name(), conf.SensorInterval())

	enc := telemetry.NewEncoder(g.Log, s, conf.SensorInterval())
	loop := relay.New(g.Log, g.Stat, g.Clock, relay.Config{
		Idle:    conf.LoopIdle(),
		LineMax: conf.Node.LineMax,
		LogRx:   conf.Node.LogRx,
	}, node, sink, enc, h)
	return loop, nil
}
