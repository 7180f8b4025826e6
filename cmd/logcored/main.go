// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/speedtrace/logcore/internal/config"
	"github.com/speedtrace/logcore/internal/ipcserver"
	"github.com/speedtrace/logcore/internal/normalize"
	"github.com/speedtrace/logcore/pkg/log"
)

var version string = "development"

func main() {
	cliInit()

	if flagVersion {
		fmt.Printf("logcored version %s\n", version)
		return
	}

	log.SetLogLevel(flagLevel)
	config.Init(flagConfigFile)

	addr := config.Keys.Addr
	if flagAddr != "" {
		addr = flagAddr
	}

	norm := normalize.New(config.Keys.ChannelOverrides)
	srv := ipcserver.NewServer(addr, norm)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
