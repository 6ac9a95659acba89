package sh

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abiosoft/ishell"
)

var (
	// LinksCmd lists links.
	LinksCmd = ishell.Cmd{
		Name:    "links",
		Aliases: []string{"l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			statuses := s.Connector.Statuses()
			s.Print(c, statuses, func() {
				var w bytes.Buffer
				tw := tabwriter.NewWriter(&w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ALIAS\tDEVICE\tSTATE\tWORKER\tUID\tLAST MESSAGE")
				for _, st := range statuses {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						st.Alias, st.Device, st.State, st.Worker, st.Remote.UID, formatTime(st.LastMessageAt))
				}
				for _, b := range s.Connector.Disabled {
					fmt.Fprintf(tw, "%s\t%s\tDISABLED\t-\t-\t-\n", b.Alias, b.Device)
				}
				tw.Flush()
				c.Print(w.String())
			})
		},
	}

	// PinsCmd lists pins of a link, or pins by name prefix.
	PinsCmd = ishell.Cmd{
		Name:    "pins",
		Aliases: []string{"p"},
		Help:    "[ALIAS|PREFIX]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var prefix string
			if len(c.Args) > 0 {
				prefix = c.Args[0]
				if conn, err := s.Connector.Connection(prefix); err == nil {
					prefix = conn.Board.Component + "."
				}
			}
			pins := s.Sink.Snapshot(prefix)
			s.Print(c, pins, func() {
				var w bytes.Buffer
				tw := tabwriter.NewWriter(&w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tTYPE\tDIR\tVALUE\tUPDATED")
				for _, pin := range pins {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%s\n",
						pin.Name, pin.Type, pin.Direction, pin.Value, formatTime(pin.UpdatedAt))
				}
				tw.Flush()
				c.Print(w.String())
			})
		},
	}

	// SetCmd writes a host driven pin.
	SetCmd = ishell.Cmd{
		Name: "set",
		Help: "PIN VALUE",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) != 2 {
				c.Err(usage(c.Cmd.Name, c.Cmd.Help))
				return
			}
			h, ok := s.Sink.Lookup(c.Args[0])
			if !ok {
				c.Err(fmt.Errorf("unknown pin %s", c.Args[0]))
				return
			}
			v, err := strconv.ParseFloat(c.Args[1], 64)
			if err != nil {
				c.Err(err)
				return
			}
			if err := s.Sink.Set(h, v); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}

	// DevicesCmd lists serial devices.
	DevicesCmd = ishell.Cmd{
		Name:    "devices",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			ports, err := s.devices()
			if err != nil {
				c.Err(err)
				return
			}
			s.Print(c, ports, func() {
				if len(ports) == 0 {
					c.Println("No serial devices found")
					return
				}
				c.Println(strings.Join(ports, "\n"))
			})
		},
	}

	// ResetCmd restarts the handshake of a link.
	ResetCmd = ishell.Cmd{
		Name: "reset",
		Help: "ALIAS",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) != 1 {
				c.Err(usage(c.Cmd.Name, c.Cmd.Help))
				return
			}
			if err := s.Connector.Reset(c.Args[0], time.Now()); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}
)
