package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/mcuconn/pkg/cli/sh"
	"github.com/robotalks/mcuconn/pkg/connector"
	"github.com/robotalks/mcuconn/pkg/env"
	fx "github.com/robotalks/mcuconn/pkg/framework"
	"github.com/robotalks/mcuconn/pkg/hal"
	"github.com/robotalks/mcuconn/pkg/l0/comm"
	"github.com/robotalks/mcuconn/pkg/l0/serial"
	"github.com/robotalks/mcuconn/pkg/mqtt"
	"github.com/robotalks/mcuconn/pkg/status"
)

func init() {
	env.SetupFlags()
	sh.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := env.Default()
	if conf.ListDevices {
		ports, err := serial.List()
		if err != nil {
			glog.Exitf("list serial devices: %v", err)
		}
		for _, port := range ports {
			fmt.Println(port)
		}
		return
	}

	profile, err := conf.LoadProfile()
	if err != nil {
		glog.Exitf("load profile: %v", err)
	}
	for _, b := range profile.Boards {
		if !b.IsEnabled() {
			glog.Infof("board %s disabled", b.Alias)
		}
	}

	sink := hal.NewRegistry()
	conn, err := connector.New(profile, connector.Options{
		Sink:  sink,
		Codec: comm.Codec{Checksum: conf.Checksum},
	})
	if err != nil {
		glog.Exitf("setup connections: %v", err)
	}

	runner := fx.NewRunner().HandleSignals()
	ctx, cancel := context.WithCancel(runner.Context)
	runner.Context = ctx

	loop := fx.NewLoop()
	loop.Interval = conf.Interval
	loop.Add(conn)

	queue, err := conf.NewQueue()
	if err != nil {
		glog.Exitf("setup MQTT: %v", err)
	}
	if queue != nil {
		bridge := mqtt.NewBridge(queue, sink)
		for _, c := range conn.Connections() {
			bridge.AddLink(c.Link, c.Board.Component)
		}
		loop.Add(bridge)
	}
	if conf.HTTPAddr != "" {
		loop.Add(&status.Server{Addr: conf.HTTPAddr, Connector: conn, Sink: sink})
	}
	if conf.Console {
		console := sh.New(conn, sink)
		console.OnExit = cancel
		loop.Add(console)
	}

	err = runner.Go(loop).Wait()
	cancel()
	if closeErr := conn.Close(); closeErr != nil {
		glog.Warningf("close connections: %v", closeErr)
	}
	if err != nil {
		glog.Exitf("%v", err)
	}
}
