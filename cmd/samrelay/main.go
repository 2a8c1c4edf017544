package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/samdemo/samrelay/cmd/samrelay/monitor"
	"github.com/samdemo/samrelay/cmd/samrelay/relay"
	"github.com/samdemo/samrelay/cmd/samrelay/sensortest"
	"github.com/samdemo/samrelay/cmd/samrelay/subcmd"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/state"
	"github.com/samdemo/samrelay/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X
var log = log2.NewStderr(log2.LInfo)
var modules = []subcmd.Mod{
	relay.Mod,
	monitor.Mod,
	sensortest.Mod,
}

func main() {
	errors.SetSourceTrimPrefix(os.Getenv("source_trim_prefix"))
	log.SetFlags(log2.LInteractiveFlags)

	flags := flag.NewFlagSet("samrelay", flag.ExitOnError)
	configPath := flags.String("config", "samrelay.hcl", "config file path")
	onlyConfig := flags.Bool("only-config", false, "read config, print it and exit")
	flags.Usage = func() {
		fmt.Fprintf(flags.Output(), "usage: samrelay [flags] [command]\n")
		flags.PrintDefaults()
		fmt.Fprint(flags.Output(), subcmd.Usage(modules))
	}
	_ = flags.Parse(os.Args[1:])

	command := flags.Arg(0)
	if command == "" {
		command = relay.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flags.Usage()
		log.Fatal(err)
	}

	if subcmd.SdNotify("start") {
		// under systemd assume journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	}

	fs := config.NewOsFullReader()
	conf := config.MustRead(log, fs, *configPath)
	if *onlyConfig {
		fmt.Printf("%+v\n", conf)
		os.Exit(0)
	}

	log.Debugf("samrelay version=%s command=%s", BuildVersion, mod.Name)
	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	if err := mod.Main(ctx, conf); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
}
