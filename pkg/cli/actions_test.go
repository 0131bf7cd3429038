// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package cli

import (
	"fmt"
	"testing"

	"github.com/Granjow/mender/pkg/devctx"
	"github.com/Granjow/mender/pkg/log/testlog"
	"github.com/Granjow/mender/pkg/standalone"
	"github.com/Granjow/mender/pkg/store"
)

func testCtx(t *testing.T) *devctx.Context {
	t.Helper()
	cfg := devctx.Config{DataStore: t.TempDir()}.Defaults()
	ctx, err := devctx.OpenWith(cfg, store.NewMemStore())
	if err != nil {
		t.Fatal(err)
	}
	return ctx
}

func TestResultHandlerExitCodes(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	cases := []struct {
		result         standalone.Result
		err            error
		rebootExitCode bool
		want           int
	}{
		{standalone.Installed, nil, false, ExitSuccess},
		{standalone.InstalledRebootRequired, nil, false, ExitSuccess},
		{standalone.InstalledRebootRequired, nil, true, ExitRebootRequired},
		{standalone.InstalledAndCommitted, nil, false, ExitSuccess},
		{standalone.InstalledAndCommittedRebootRequired, nil, true, ExitRebootRequired},
		{standalone.InstalledButFailedInPostCommit, fmt.Errorf("x"), false, ExitFailure},
		{standalone.Committed, nil, false, ExitSuccess},
		{standalone.RolledBack, nil, false, ExitSuccess},
		{standalone.NoRollback, nil, false, ExitSuccess},
		{standalone.RollbackFailed, fmt.Errorf("x"), false, ExitFailure},
		{standalone.NoUpdateInProgress, fmt.Errorf("x"), false, ExitFailure},
		{standalone.FailedNothingDone, fmt.Errorf("x"), false, ExitFailure},
		{standalone.FailedAndRolledBack, fmt.Errorf("x"), false, ExitFailure},
		{standalone.FailedAndNoRollback, fmt.Errorf("x"), false, ExitFailure},
		{standalone.FailedAndRollbackFailed, fmt.Errorf("x"), false, ExitFailure},
	}
	for _, c := range cases {
		got := ResultHandler(standalone.ResultAndError{Result: c.result, Err: c.err}, c.rebootExitCode)
		if got != c.want {
			t.Errorf("%s (reboot-exit-code %t): got %d, want %d",
				c.result, c.rebootExitCode, got, c.want)
		}
	}
}

func TestBootstrapWithoutArtifactWritesUnknown(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	ctx := testCtx(t)

	if err := MaybeInstallBootstrapArtifact(ctx); err != nil {
		t.Fatalf("bootstrap: %s", err)
	}
	name, err := ctx.Store().Read(devctx.ArtifactNameKey)
	if err != nil || string(name) != "unknown" {
		t.Errorf("artifact name %q (%v)", name, err)
	}
}

func TestBootstrapLeavesExistingProvenance(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	ctx := testCtx(t)
	if err := ctx.Store().Write(devctx.ArtifactNameKey, []byte("rel-9")); err != nil {
		t.Fatal(err)
	}
	if err := MaybeInstallBootstrapArtifact(ctx); err != nil {
		t.Fatalf("bootstrap: %s", err)
	}
	name, err := ctx.Store().Read(devctx.ArtifactNameKey)
	if err != nil || string(name) != "rel-9" {
		t.Errorf("artifact name %q (%v)", name, err)
	}
}

func TestCommitActionEmptyStore(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	ctx := testCtx(t)
	if code := CommitAction(ctx); code != ExitFailure {
		t.Errorf("exit code %d", code)
	}
}

func TestShowArtifactUnknown(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	ctx := testCtx(t)
	if code := ShowArtifactAction(ctx); code != ExitSuccess {
		t.Errorf("exit code %d", code)
	}
	//bootstrap fallback recorded "unknown"
	name, err := ctx.Store().Read(devctx.ArtifactNameKey)
	if err != nil || string(name) != "unknown" {
		t.Errorf("artifact name %q (%v)", name, err)
	}
	if _, err := ctx.LoadProvides(); err != nil {
		t.Errorf("load provides: %s", err)
	}
}
