// Serial monitor for the measurement node: timestamped received lines,
// typed lines are sent to the node.
package monitor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"github.com/juju/errors"
	"github.com/samdemo/samrelay/cmd/samrelay/subcmd"
	"github.com/samdemo/samrelay/hardware/uart"
	"github.com/samdemo/samrelay/helpers"
	"github.com/samdemo/samrelay/helpers/cli"
	"github.com/samdemo/samrelay/internal/command"
	"github.com/samdemo/samrelay/internal/config"
	"github.com/samdemo/samrelay/internal/line"
	"github.com/samdemo/samrelay/internal/state"
	"github.com/samdemo/samrelay/log2"
)

const modName = "monitor"

const usage = `type a line to send it to the node, e.g. HEATER_ON
/ports   list serial devices
/help    this text
`

const pollInterval = 10 * time.Millisecond

var Mod = subcmd.Mod{Name: modName, Usage: "timestamped node serial monitor", Main: Main}

var portPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/rfcomm*", "/dev/serial/by-id/*"}

func Main(ctx context.Context, conf *config.Config) error {
	g := state.GetGlobal(ctx)
	g.MustInit(ctx, conf)

	if conf.Node.Device == "" {
		fmt.Print(listPorts(portPatterns))
		return errors.NotValidf("node.device empty")
	}
	port, err := g.Node()
	if err != nil {
		fmt.Print(listPorts(portPatterns))
		return err
	}

	m := newMonitor(g.Log, port, os.Stdout, conf.Node.LineMax)
	fmt.Fprintf(m.out, "=== samrelay monitor ===\nport=%s baud=%d started=%s\n%s\n",
		conf.Node.Device, conf.Node.Baud, time.Now().Format("2006-01-02 15:04:05"), strings.Repeat("=", 50))
	go m.run(g.Alive.StopChan())

	cli.MainLoop(modName, m.exec, complete, func() {
		fmt.Fprintf(m.out, "\n=== monitor stopped lines=%d ===\n", m.Lines())
		_ = g.CloseHardware()
	})
	if !cli.IsInteractive() {
		// stdin script finished, keep printing until signal
		<-g.Alive.StopChan()
	}
	g.Stop()
	fmt.Fprintf(m.out, "=== monitor stopped lines=%d ===\n", m.Lines())
	return g.CloseHardware()
}

type monitor struct {
	log    *log2.Log
	port   uart.Porter
	out    io.Writer
	framer *line.Framer
	buf    [256]byte
	lines  uint32
}

func newMonitor(log *log2.Log, port uart.Porter, out io.Writer, lineMax int) *monitor {
	return &monitor{
		log:    log,
		port:   port,
		out:    out,
		framer: line.NewFramer(lineMax, log, "node"),
	}
}

func (self *monitor) Lines() uint32 { return atomic.LoadUint32(&self.lines) }

func (self *monitor) run(stop <-chan struct{}) {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		if err := self.poll(time.Now()); err != nil {
			self.log.Error(errors.Annotate(err, "monitor read, device may be disconnected"))
			return
		}
	}
}

func (self *monitor) poll(now time.Time) error {
	for {
		n, err := self.port.ReadAvailable(self.buf[:])
		for _, s := range self.framer.Write(self.buf[:n]) {
			if s == "" {
				continue
			}
			atomic.AddUint32(&self.lines, 1)
			fmt.Fprintln(self.out, formatLine(now, s))
		}
		if err != nil || n == 0 {
			return err
		}
	}
}

func (self *monitor) exec(s string) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return
	case "/help":
		fmt.Fprint(self.out, usage)
		return
	case "/ports":
		fmt.Fprint(self.out, listPorts(portPatterns))
		return
	}
	if _, err := helpers.WriteLine(self.port, nil, s); err != nil {
		self.log.Error(errors.Annotate(err, "monitor send"))
	}
}

func complete(d prompt.Document) []prompt.Suggest {
	suggests := []prompt.Suggest{
		{Text: command.HeaterOn, Description: "turn heater on"},
		{Text: command.HeaterOff, Description: "turn heater off"},
		{Text: "/ports", Description: "list serial devices"},
		{Text: "/help"},
	}
	return prompt.FilterHasPrefix(suggests, d.GetWordBeforeCursor(), true)
}

// formatLine prefixes line with wall clock HH:MM:SS.mmm
func formatLine(t time.Time, s string) string {
	return "[" + t.Format("15:04:05.000") + "] " + s
}

func listPorts(patterns []string) string {
	var found []string
	for _, p := range patterns {
		ms, _ := filepath.Glob(p)
		found = append(found, ms...)
	}
	if len(found) == 0 {
		return "no serial ports found\n"
	}
	sort.Strings(found)
	var b strings.Builder
	b.WriteString("serial ports:\n")
	for _, f := range found {
		b.WriteString("  " + f + "\n")
	}
	return b.String()
}
