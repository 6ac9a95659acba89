// Package sh provides the interactive console of the connector.
package sh

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mcuconn/pkg/connector"
	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
)

const (
	shellKey = "$shell"
	prompt   = "mcuconn > "
)

var (
	outputJSON bool

	commands = []*ishell.Cmd{
		&LinksCmd,
		&PinsCmd,
		&SetCmd,
		&DevicesCmd,
		&ResetCmd,
	}
)

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print console output in JSON.")
}

// AddCmds adds more commands, used during init.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// Shell provides ishell backed interactive console.
type Shell struct {
	OutputJSON bool

	Shell     *ishell.Shell
	Connector *connector.Connector
	Sink      *hal.Registry
	// Devices lists serial devices, serial.List if nil.
	Devices func() ([]string, error)
	// OnExit is called when the user exits the console.
	OnExit func()
}

// New creates a console.
func New(c *connector.Connector, sink *hal.Registry) *Shell {
	s := &Shell{
		OutputJSON: outputJSON,
		Shell:      ishell.New(),
		Connector:  c,
		Sink:       sink,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(prompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// AddToLoop implements fx.LoopAdder.
func (s *Shell) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(fx.NamedRun("console", s))
}

// Run implements fx.Runnable.
func (s *Shell) Run(ctx context.Context) error {
	s.Shell.Start()
	exited := make(chan struct{})
	go func() {
		s.Shell.Wait()
		close(exited)
	}()
	select {
	case <-ctx.Done():
		s.Shell.Close()
	case <-exited:
		if s.OnExit != nil {
			s.OnExit()
		}
	}
	return nil
}

// Print writes v as JSON or through the text formatter.
func (s *Shell) Print(c *ishell.Context, v interface{}, text func()) {
	if !s.OutputJSON {
		text()
		return
	}
	out, err := json.Marshal(v)
	if err != nil {
		c.Err(err)
		return
	}
	c.Println(string(out))
}

func (s *Shell) devices() ([]string, error) {
	if s.Devices != nil {
		return s.Devices()
	}
	return serial.List()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func usage(name, help string) error {
	return fmt.Errorf("usage: %s %s", name, help)
}
