// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/* Package standalone drives a single device through the installation of an
update artifact without server involvement, across the three user commands
install, commit and rollback.

The package owns the durable record of the in-progress update and the
transactional failure handling around the update module: whatever fails,
the device ends up in a defined state - new artifact committed, previous
state rolled back, or a "broken" artifact explicitly recorded. The record
is saved before any device-modifying verb runs, and removed in the same
store transaction that commits new provenance, so no power-loss window
leaves the two disagreeing.

All operations are synchronous and must not run concurrently; the in-store
record excludes a second install, and recovery after a crash relies on
serial execution of the top-level commands.
*/
package standalone

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/Granjow/mender/pkg/artifact"
	"github.com/Granjow/mender/pkg/devctx"
	"github.com/Granjow/mender/pkg/erro"
	"github.com/Granjow/mender/pkg/log"
	"github.com/Granjow/mender/pkg/store"
	"github.com/Granjow/mender/pkg/updmod"
)

// Result is the outcome of a top-level operation. Hosts map each value to a
// process exit code.
type Result int

const (
	//install succeeded, reboot not required, awaiting commit
	Installed Result = iota
	//install succeeded, reboot required before commit
	InstalledRebootRequired
	//install + implicit commit succeeded (module has no rollback)
	InstalledAndCommitted
	//like InstalledAndCommitted, plus reboot required
	InstalledAndCommittedRebootRequired
	//commit succeeded on the device but post-commit housekeeping failed
	InstalledButFailedInPostCommit
	//explicit commit succeeded
	Committed
	//explicit rollback succeeded
	RolledBack
	//module reports no rollback capability
	NoRollback
	//rollback was attempted and failed
	RollbackFailed
	//commit/rollback invoked without an active update
	NoUpdateInProgress
	//failure before any device state was changed
	FailedNothingDone
	//install failed; rollback succeeded; device is in prior state
	FailedAndRolledBack
	//install failed; no rollback capability; artifact recorded as broken
	FailedAndNoRollback
	//install failed and rollback failed; device may be in undefined state
	FailedAndRollbackFailed
)

func (r Result) String() string {
	switch r {
	case Installed:
		return "Installed"
	case InstalledRebootRequired:
		return "InstalledRebootRequired"
	case InstalledAndCommitted:
		return "InstalledAndCommitted"
	case InstalledAndCommittedRebootRequired:
		return "InstalledAndCommittedRebootRequired"
	case InstalledButFailedInPostCommit:
		return "InstalledButFailedInPostCommit"
	case Committed:
		return "Committed"
	case RolledBack:
		return "RolledBack"
	case NoRollback:
		return "NoRollback"
	case RollbackFailed:
		return "RollbackFailed"
	case NoUpdateInProgress:
		return "NoUpdateInProgress"
	case FailedNothingDone:
		return "FailedNothingDone"
	case FailedAndRolledBack:
		return "FailedAndRolledBack"
	case FailedAndNoRollback:
		return "FailedAndNoRollback"
	case FailedAndRollbackFailed:
		return "FailedAndRollbackFailed"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

//RebootRequired reports whether the result asks the user to reboot.
func (r Result) RebootRequired() bool {
	return r == InstalledRebootRequired || r == InstalledAndCommittedRebootRequired
}

// ResultAndError is the composite outcome of every operation: errors are
// never thrown as control flow, and a multi-step failure path aggregates
// its errors in causal order.
type ResultAndError struct {
	Result Result
	Err    error
}

//test hook; replaced to drive the orchestrator with in-memory modules
var newUpdateModule = func(ctx *devctx.Context, payloadType string) updmod.Interface {
	return updmod.New(ctx, payloadType)
}

//removes the standalone record inside the provenance-commit transaction
func removeStateTxn(txn store.Transaction) error {
	return txn.Remove(devctx.StandaloneStateKey)
}

// Install installs the artifact at src, a local file path. The operation
// fails up front if an update is already in progress, and on any failure
// before the device is modified reports FailedNothingDone.
func Install(ctx *devctx.Context, src string) ResultAndError {
	_, inProgress, err := LoadStandaloneData(ctx.Store())
	if err != nil {
		return ResultAndError{FailedNothingDone, err}
	}
	if inProgress {
		return ResultAndError{FailedNothingDone, fmt.Errorf(
			"%w: update already in progress. Please commit or roll back first",
			erro.ErrInProgress)}
	}

	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return ResultAndError{FailedNothingDone, fmt.Errorf(
			"%w: HTTP not supported yet", erro.ErrNotSupported)}
	}

	f, err := os.Open(src)
	if err != nil {
		return ResultAndError{FailedNothingDone, fmt.Errorf("could not open %s: %w", src, err)}
	}
	defer f.Close()

	parser, err := artifact.Parse(bufio.NewReader(f), artifact.ParserConfig{
		ArtifactScriptsPath: ctx.Config.ArtifactScriptsPath,
	})
	if err != nil {
		return ResultAndError{FailedNothingDone, err}
	}

	header, err := artifact.View(parser, 0)
	if err != nil {
		return ResultAndError{FailedNothingDone, err}
	}

	mod := newUpdateModule(ctx, header.Header.PayloadType)

	err = mod.PrepareFileTree(mod.WorkDir(), header)
	if err != nil {
		err = erro.FollowedBy(err, mod.Cleanup())
		return ResultAndError{FailedNothingDone, err}
	}

	data := dataFromPayloadHeaderView(header)
	err = SaveStandaloneData(ctx.Store(), data)
	if err != nil {
		err = erro.FollowedBy(err, mod.Cleanup())
		return ResultAndError{FailedNothingDone, err}
	}

	return DoInstallStates(ctx, data, parser, mod)
}

// Commit makes the in-progress update permanent.
func Commit(ctx *devctx.Context) ResultAndError {
	data, inProgress, err := LoadStandaloneData(ctx.Store())
	if err != nil {
		return ResultAndError{FailedNothingDone, err}
	}
	if !inProgress {
		return ResultAndError{NoUpdateInProgress, fmt.Errorf(
			"%w: Cannot commit", devctx.ErrNoUpdateInProgress)}
	}

	mod := newUpdateModule(ctx, data.PayloadTypes[0])
	return DoCommit(ctx, data, mod)
}

// Rollback reverts the in-progress update. If the module has no rollback
// capability the update state is kept: the user must either commit or
// restore the capability.
func Rollback(ctx *devctx.Context) ResultAndError {
	data, inProgress, err := LoadStandaloneData(ctx.Store())
	if err != nil {
		return ResultAndError{FailedNothingDone, err}
	}
	if !inProgress {
		return ResultAndError{NoUpdateInProgress, fmt.Errorf(
			"%w: Cannot roll back", devctx.ErrNoUpdateInProgress)}
	}

	mod := newUpdateModule(ctx, data.PayloadTypes[0])

	result := DoRollback(ctx, data, mod)
	if result.Result == NoRollback {
		//no support for rollback; return without clearing update data, it
		//is cleared by commit or by restoring the rollback capability
		return result
	}

	err = mod.Cleanup()
	if err != nil {
		result.Result = FailedAndRollbackFailed
		result.Err = erro.FollowedBy(result.Err, err)
	}

	if result.Result == RolledBack {
		err = RemoveStandaloneData(ctx.Store())
	} else {
		err = CommitBrokenArtifact(ctx, data)
	}
	if err != nil {
		result.Result = RollbackFailed
		result.Err = erro.FollowedBy(result.Err, err)
	}

	return result
}

// DoInstallStates runs the install sequence against an artifact whose state
// record has already been saved: download, install, then the reboot and
// rollback-support queries that decide the result.
func DoInstallStates(ctx *devctx.Context, data *StandaloneData, art *artifact.Artifact, mod updmod.Interface) ResultAndError {
	payload, err := art.Next()
	if err != nil {
		return ResultAndError{FailedNothingDone, err}
	}

	log.Msg("Installing artifact...")

	err = mod.Download(payload)
	if err != nil {
		//the device target has not been written yet, so this is still
		//fully reversible
		err = erro.FollowedBy(err, mod.Cleanup())
		err = erro.FollowedBy(err, RemoveStandaloneData(ctx.Store()))
		return ResultAndError{FailedNothingDone, err}
	}

	err = mod.ArtifactInstall()
	if err != nil {
		log.Logf("Installation failed: %s", err)
		return InstallationFailureHandler(ctx, data, mod, err)
	}

	reboot, err := mod.NeedsReboot()
	if err != nil {
		log.Logf("Could not query for reboot: %s", err)
		return InstallationFailureHandler(ctx, data, mod, err)
	}

	rollbackSupport, err := mod.SupportsRollback()
	if err != nil {
		log.Logf("Could not query for rollback support: %s", err)
		return InstallationFailureHandler(ctx, data, mod, err)
	}

	if rollbackSupport {
		if reboot != updmod.NoReboot {
			return ResultAndError{InstalledRebootRequired, nil}
		}
		return ResultAndError{Installed, nil}
	}

	log.Msg("Update Module doesn't support rollback. Committing immediately.")

	result := DoCommit(ctx, data, mod)
	if result.Result == Committed {
		if reboot != updmod.NoReboot {
			result.Result = InstalledAndCommittedRebootRequired
		} else {
			result.Result = InstalledAndCommitted
		}
	}
	return result
}

// DoCommit makes the install permanent on the device, then - in one store
// transaction - commits the new provenance and removes the standalone
// record. Post-commit failures do not undo the device commit; they demote
// the result to InstalledButFailedInPostCommit.
func DoCommit(ctx *devctx.Context, data *StandaloneData, mod updmod.Interface) ResultAndError {
	err := mod.ArtifactCommit()
	if err != nil {
		log.Logf("Commit failed: %s", err)
		return InstallationFailureHandler(ctx, data, mod, err)
	}

	result := Committed
	var returnErr error

	err = mod.Cleanup()
	if err != nil {
		result = InstalledButFailedInPostCommit
		returnErr = erro.FollowedBy(returnErr, err)
	}

	err = ctx.CommitArtifactData(
		data.ArtifactName,
		data.ArtifactGroup,
		data.ArtifactProvides,
		data.ArtifactClearsProvides,
		removeStateTxn)
	if err != nil {
		result = InstalledButFailedInPostCommit
		returnErr = erro.FollowedBy(returnErr, err)
	}

	return ResultAndError{result, returnErr}
}

// DoRollback asks the module to revert the install. It does not touch the
// store; callers own state finalization.
func DoRollback(ctx *devctx.Context, data *StandaloneData, mod updmod.Interface) ResultAndError {
	rollbackSupport, err := mod.SupportsRollback()
	if err != nil {
		return ResultAndError{NoRollback, err}
	}

	if !rollbackSupport {
		return ResultAndError{NoRollback, nil}
	}

	err = mod.ArtifactRollback()
	if err != nil {
		return ResultAndError{RollbackFailed, err}
	}
	return ResultAndError{RolledBack, nil}
}

// InstallationFailureHandler runs whenever an install-path step fails after
// the state record was saved: roll back if possible, give the module its
// failure hook, clean up, and finalize the store - either removing the
// record (clean rollback) or recording a broken artifact. cause is the error
// that triggered the handler; it heads the aggregated error chain.
func InstallationFailureHandler(ctx *devctx.Context, data *StandaloneData, mod updmod.Interface, cause error) ResultAndError {
	result := DoRollback(ctx, data, mod)
	result.Err = erro.FollowedBy(cause, result.Err)
	switch result.Result {
	case RolledBack:
		result.Result = FailedAndRolledBack
	case NoRollback:
		result.Result = FailedAndNoRollback
	case RollbackFailed:
		result.Result = FailedAndRollbackFailed
	default:
		return ResultAndError{FailedAndRollbackFailed, fmt.Errorf(
			"%w: unexpected result %s in InstallationFailureHandler",
			erro.ErrProgramming, result.Result)}
	}

	err := mod.ArtifactFailure()
	if err != nil {
		result.Result = FailedAndRollbackFailed
		result.Err = erro.FollowedBy(result.Err, err)
	}

	err = mod.Cleanup()
	if err != nil {
		result.Result = FailedAndRollbackFailed
		result.Err = erro.FollowedBy(result.Err, err)
	}

	if result.Result == FailedAndRolledBack {
		err = RemoveStandaloneData(ctx.Store())
	} else {
		err = CommitBrokenArtifact(ctx, data)
	}
	if err != nil {
		result.Result = FailedAndRollbackFailed
		result.Err = erro.FollowedBy(result.Err, err)
	}

	return result
}

// CommitBrokenArtifact records on disk that the device now runs an
// installation that was never fully validated: the artifact name gains the
// broken suffix and the provenance is committed with the standalone record
// removed in the same transaction, so later operations can detect the
// condition.
func CommitBrokenArtifact(ctx *devctx.Context, data *StandaloneData) error {
	data.ArtifactName += devctx.BrokenArtifactSuffix
	if data.ArtifactProvides != nil {
		data.ArtifactProvides["artifact_name"] = data.ArtifactName
	}
	return ctx.CommitArtifactData(
		data.ArtifactName,
		data.ArtifactGroup,
		data.ArtifactProvides,
		data.ArtifactClearsProvides,
		removeStateTxn)
}
