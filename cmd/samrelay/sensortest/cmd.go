// Detect environment sensor and print telemetry records without transport.
package sensortest

import (
	"context"
	"fmt"
	"time"

	"github.com/samdemo/samrelay/cmd/samrelay/subcmd"
	"github.com/samdemo/samrelay/hardware/sensor"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/state"
	"github.com/samdemo/samrelay/internal/telemetry"
)

var Mod = subcmd.Mod{Name: "sensor-test", Usage: "detect sensor, print readings", Main: Main}

func Main(ctx context.Context, conf *config.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, conf)
	g.StopOnSignal()

	s, err := g.Sensor()
	if err != nil {
		return err
	}
	fmt.Printf("sensor driver=%s addr=0x%02x\n", conf.Sensor.Driver, g.Hardware.Sensor.Addr)

	t := time.NewTicker(conf.SensorInterval())
	defer t.Stop()
	start := time.Now()
	for {
		fmt.Println(Reading(s, time.Since(start)))
		select {
		case <-g.Alive.StopChan():
			return g.CloseHardware()
		case <-t.C:
		}
	}
}

// Reading formats one sample the way relay sends it, failures are reported inline.
func Reading(s sensor.Sensor, uptime time.Duration) string {
	sample := s.Sense()
	rec, ok := telemetry.NewRecord(sample, false, uint64(uptime/time.Second))
	if !ok {
		return fmt.Sprintf("read failed temp=%v humidity=%v pressure=%v, check wiring",
			sample.Temperature, sample.Humidity, sample.Pressure)
	}
	return rec.Line()
}
