// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Command mender-update installs, commits and rolls back update artifacts
//on the local device. No server involvement; artifacts are local files.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/Granjow/mender/pkg/cli"
	"github.com/Granjow/mender/pkg/devctx"
	"github.com/Granjow/mender/pkg/log"
)

const usage = `usage: mender-update [options] <command> [args]

commands:
  install <artifact path>   install an update artifact
  commit                    make the installed update permanent
  rollback                  revert the installed update
  show-artifact             print the currently installed artifact name
  show-provides             print the currently installed provides

options:`

func main() {
	confPath := flag.String("config", "/etc/mender/mender.conf", "path to config file")
	dataDir := flag.String("data", "", "override data store directory")
	rebootExitCode := flag.Bool("reboot-exit-code", false,
		"exit with code 4 when the installed update requires a reboot")
	logFile := flag.Bool("log-file", false, "also log to a file in the data store directory")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	log.SetPrefix("mender-update")
	log.AddConsoleLog(false)

	cfg, err := devctx.LoadConfig(*confPath)
	if err != nil {
		log.Fatalf("loading config %s: %s", *confPath, err)
	}
	if *dataDir != "" {
		cfg.DataStore = *dataDir
	}
	if *logFile {
		if _, err := log.AddFileLog(cfg.DataStore); err != nil {
			log.Logf("file log unavailable: %s", err)
		}
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(cli.ExitFailure)
	}

	ctx, err := devctx.Open(cfg)
	if err != nil {
		log.Fatalf("opening device store: %s", err)
	}
	defer ctx.Close()

	var code int
	switch args[0] {
	case "install":
		if len(args) != 2 {
			log.Fatalf("install requires exactly one artifact path")
		}
		code = cli.InstallAction(ctx, args[1], *rebootExitCode)
	case "commit":
		code = cli.CommitAction(ctx)
	case "rollback":
		code = cli.RollbackAction(ctx)
	case "show-artifact":
		code = cli.ShowArtifactAction(ctx)
	case "show-provides":
		code = cli.ShowProvidesAction(ctx)
	default:
		log.Fatalf("unknown command %q", args[0])
	}

	log.Close()
	os.Exit(code)
}
