package state

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/metrics"
	"github.com/samdemo/samrelay/log2"
	"github.com/temoto/alive/v2"
)

// Global is process wide state shared by subcommands.
type Global struct {
	Alive        *alive.Alive
	BuildVersion string
	Clock        helpers.Clock
	Config       *config.Config
	Hardware     hardware // hardware.go
	Log          *log2.Log
	Stat         *metrics.Stat
}

const ContextKey = "run/state-global"

func NewContext(log *log2.Log) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}

	g := &Global{
		Alive:        alive.NewAlive(),
		BuildVersion: "unknown",
		Clock:        helpers.NewMonoClock(),
		Log:          log,
		Stat:         metrics.NewStat(),
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

// NewTestContext uses in-memory heater and demo sensor unless confString says otherwise.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global) {
	fs := config.NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	var log *log2.Log
	if os.Getenv("samrelay_test_log_stderr") == "1" {
		log = log2.NewStderr(log2.LDebug) // useful with panics
	} else {
		log = log2.NewTest(t, log2.LDebug)
	}
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log)
	g.Clock = &helpers.ManualClock{}
	g.MustInit(ctx, config.MustRead(log, fs, "test-inline"))
	return ctx, g
}

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *config.Config) error {
	g.Config = cfg
	g.Log.Infof("build version=%s", g.BuildVersion)
	if cfg.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	g.Log.SetErrorFunc(g.Stat.ErrorFunc)

	if cfg.Metrics.Listen != "" {
		srv, err := g.Stat.Serve(g.Log, cfg.Metrics.Listen)
		if err != nil {
			return errors.Annotate(err, "metrics")
		}
		g.Hardware.metrics = srv
	}
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *config.Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Fatal(err)
	}
}

// StopOnSignal stops Alive on SIGINT/SIGTERM.
func (g *Global) StopOnSignal() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigs
		g.Log.Infof("signal=%v stopping", s)
		g.Stop()
	}()
}

// Context is cancelled when Alive is stopped.
func (g *Global) Context(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-g.Alive.StopChan():
		case <-ctx.Done():
		}
		cancel()
	}()
	return ctx
}

func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg := args[0].(string)
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) Fatal(err error, args ...interface{}) {
	if err != nil {
		g.Error(err, args...)
		g.StopWait(5 * time.Second)
		g.Log.Fatal(errors.ErrorStack(err))
		os.Exit(1)
	}
}

func (g *Global) Stop() {
	g.Alive.Stop()
}

func (g *Global) StopWait(timeout time.Duration) bool {
	g.Alive.Stop()
	select {
	case <-g.Alive.WaitChan():
		return true
	case <-time.After(timeout):
		return false
	}
}
