// Package main is the vineyardd entrypoint: load a server spec, start
// the lifecycle supervisor, and block until an interrupt drives
// orderly shutdown. The CLI surface itself is out of scope (spec §6)
// — this is the minimal wiring a real command-line tool would stand
// on, not a reimplementation of one.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lichnak/vineyard/cmn"
	"github.com/lichnak/vineyard/cmn/nlog"
	"github.com/lichnak/vineyard/core"
	"github.com/lichnak/vineyard/server"
)

var configPath string

func init() {
	flag.StringVar(&configPath, "config", "", "path to the server spec JSON document")
}

func main() {
	flag.Parse()
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: vineyardd -config <server-spec.json>")
		os.Exit(2)
	}

	spec, err := cmn.LoadServerSpec(configPath)
	if err != nil {
		nlog.Errorf("load server spec: %v", err)
		os.Exit(1)
	}

	bulk := core.NewMemStore(spec.Size)
	sup, err := server.NewSupervisor(spec, bulk, core.NullStreamStore{})
	if err != nil {
		nlog.Errorf("construct supervisor: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		nlog.Errorf("start: %v", err)
		os.Exit(1)
	}

	<-ctx.Done()
	nlog.Infof("shutdown signal received")
	if err := sup.Stop(); err != nil {
		nlog.Errorf("stop: %v", err)
	}
	nlog.Flush()
}
