// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package cli maps the orchestrator's composite results onto user-facing
//messages and process exit codes, and implements the update commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/Granjow/mender/pkg/devctx"
	"github.com/Granjow/mender/pkg/erro"
	futil "github.com/Granjow/mender/pkg/fileutil"
	"github.com/Granjow/mender/pkg/log"
	"github.com/Granjow/mender/pkg/standalone"
	"github.com/Granjow/mender/pkg/store"
)

//process exit codes
const (
	ExitSuccess = 0
	ExitFailure = 1
	//only with --reboot-exit-code
	ExitRebootRequired = 4
)

// ResultHandler prints what happened and returns the process exit code.
// When rebootExitCode is set, a successful result that requires a reboot
// exits with ExitRebootRequired instead of ExitSuccess.
func ResultHandler(r standalone.ResultAndError, rebootExitCode bool) int {
	if r.Err != nil {
		log.Logf("%s", r.Err)
	}

	switch r.Result {
	case standalone.Installed, standalone.InstalledRebootRequired:
		fmt.Println("Installed, but not committed.")
		fmt.Println("Use 'commit' to update, or 'rollback' to roll back the update.")
	case standalone.InstalledAndCommitted, standalone.InstalledAndCommittedRebootRequired:
		fmt.Println("Installed and committed.")
	case standalone.InstalledButFailedInPostCommit:
		fmt.Println("Installed and committed. One or more post-commit steps failed.")
	case standalone.Committed:
		fmt.Println("Committed.")
	case standalone.RolledBack:
		fmt.Println("Rolled back.")
	case standalone.NoRollback:
		fmt.Println("Update Module does not support rollback. System may be in an inconsistent state.")
	case standalone.RollbackFailed, standalone.FailedAndRollbackFailed:
		fmt.Println("Rollback failed. System may be in an inconsistent state.")
	case standalone.NoUpdateInProgress:
		fmt.Println("No update in progress.")
	case standalone.FailedNothingDone:
		fmt.Println("Installation failed. System not modified.")
	case standalone.FailedAndRolledBack:
		fmt.Println("Installation failed. Rolled back.")
	case standalone.FailedAndNoRollback:
		fmt.Println("Installation failed. Update Module does not support rollback. System may be in an inconsistent state.")
	}

	if r.Result.RebootRequired() {
		fmt.Println("At least one payload requested a reboot of the device it updated.")
	}

	switch r.Result {
	case standalone.FailedNothingDone, standalone.FailedAndRolledBack,
		standalone.FailedAndNoRollback, standalone.FailedAndRollbackFailed,
		standalone.RollbackFailed:
		return ExitFailure
	}
	if r.Err != nil {
		return ExitFailure
	}
	if rebootExitCode && r.Result.RebootRequired() {
		return ExitRebootRequired
	}
	return ExitSuccess
}

// MaybeInstallBootstrapArtifact seeds provenance on a factory-fresh device:
// if the store has no artifact name, the bootstrap artifact is installed
// when present, otherwise the name is set to "unknown". The bootstrap file
// is deleted unconditionally afterwards.
func MaybeInstallBootstrapArtifact(ctx *devctx.Context) error {
	path := ctx.Config.BootstrapArtifactFile()
	err := doMaybeInstallBootstrapArtifact(ctx, path)

	if futil.Exists(path) {
		if derr := os.Remove(path); derr != nil {
			return erro.FollowedBy(err, fmt.Errorf("failed to delete the bootstrap artifact: %w", derr))
		}
	}
	return err
}

func doMaybeInstallBootstrapArtifact(ctx *devctx.Context, path string) error {
	_, err := ctx.Store().Read(devctx.ArtifactNameKey)
	if err == nil {
		//provenance exists, nothing to do
		return nil
	}
	if !errors.Is(err, store.ErrKeyNotFound) {
		return err
	}

	if !futil.Exists(path) {
		log.Logf("no bootstrap artifact at %s", path)
		return ctx.Store().Write(devctx.ArtifactNameKey, []byte("unknown"))
	}

	log.Msg("Installing the bootstrap artifact")
	result := standalone.Install(ctx, path)
	if result.Err != nil {
		werr := ctx.Store().Write(devctx.ArtifactNameKey, []byte("unknown"))
		return erro.FollowedBy(
			fmt.Errorf("failed to install the bootstrap artifact: %w", result.Err), werr)
	}
	return nil
}

// InstallAction installs the artifact at src.
func InstallAction(ctx *devctx.Context, src string, rebootExitCode bool) int {
	if err := MaybeInstallBootstrapArtifact(ctx); err != nil {
		log.Logf("%s", err)
		return ExitFailure
	}
	return ResultHandler(standalone.Install(ctx, src), rebootExitCode)
}

// CommitAction commits the in-progress update.
func CommitAction(ctx *devctx.Context) int {
	return ResultHandler(standalone.Commit(ctx), false)
}

// RollbackAction rolls back the in-progress update.
func RollbackAction(ctx *devctx.Context) int {
	return ResultHandler(standalone.Rollback(ctx), false)
}

// ShowArtifactAction prints the name of the currently installed artifact.
func ShowArtifactAction(ctx *devctx.Context) int {
	if err := MaybeInstallBootstrapArtifact(ctx); err != nil {
		log.Logf("%s", err)
		return ExitFailure
	}
	provides, err := ctx.LoadProvides()
	if err != nil {
		log.Logf("%s", err)
		return ExitFailure
	}
	if provides["artifact_name"] == "" {
		fmt.Println("unknown")
	} else {
		fmt.Println(provides["artifact_name"])
	}
	return ExitSuccess
}

// ShowProvidesAction prints the full provenance, one key=value per line.
func ShowProvidesAction(ctx *devctx.Context) int {
	if err := MaybeInstallBootstrapArtifact(ctx); err != nil {
		log.Logf("%s", err)
		return ExitFailure
	}
	provides, err := ctx.LoadProvides()
	if err != nil {
		log.Logf("%s", err)
		return ExitFailure
	}
	keys := make([]string, 0, len(provides))
	for k := range provides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("%s=%s\n", k, provides[k])
	}
	return ExitSuccess
}
