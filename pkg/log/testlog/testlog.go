// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package testlog captures the output of the log package inside go test,
// and can hijack log.Cmd(). By default captured events print through
// testing functions, but they can be stored in a buffer as well - for
// example, for analysis as part of the test.
//
// Cmd() hijacking (via a CmdHijacker function) lets tests exercise code
// paths driven by update-module behavior that cannot feasibly be
// reproduced locally.
package testlog

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"testing"

	"github.com/Granjow/mender/pkg/log"
)

//A log.Sink capturing everything logged during one test. Constructed via
//NewTestLog(); do not share between tests.
type TstLog struct {
	t             *testing.T
	Buf           *bytes.Buffer //if non-nil, captured events go here
	MsgCount      int           //operator-facing events seen
	LogCount      int           //technical events seen
	FatalCount    int           //fatal events seen
	FatalIsNotErr bool          //if true, a fatal event does not fail the test
	stderr        bool          //also write events to stderr as they happen
	frozen        bool
	mu            sync.Mutex
}

// NewTestLog redirects all logging into the returned TstLog and disarms
// Fatalf's process exit. If bufferLog is true, events accumulate in
// TstLog.Buf instead of going to t.Log; fatal events still fail the test
// through t.Error unless FatalIsNotErr is set. With stderr, events are
// additionally written to stderr as they happen. Call Freeze at the end of
// the test.
func NewTestLog(t *testing.T, bufferLog, stderr bool) *TstLog {
	tlog := &TstLog{t: t}
	if bufferLog {
		tlog.Buf = new(bytes.Buffer)
	}
	tlog.stderr = stderr
	log.Redirect(tlog)
	log.SetFatalBehavior(log.FatalBehavior{Exit: func() {}})
	return tlog
}

var _ log.Sink = (*TstLog)(nil)

const TstLogIdent = "tstLog"

func (tl *TstLog) Ident() string { return TstLogIdent }
func (tl *TstLog) Close()        {}

func (tl *TstLog) Emit(e log.Event) {
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.frozen {
		return
	}
	var line string
	switch e.Kind {
	case log.User:
		tl.MsgCount++
		line = "MSG: " + e.Msg
	case log.Fatal:
		tl.FatalCount++
		line = "FATAL: " + e.Msg
		if !tl.FatalIsNotErr {
			tl.t.Errorf("@%s %s", e.Time.Format("15:04:05.000"), line)
			return
		}
	default:
		tl.LogCount++
		line = "LOG: " + e.Msg
	}
	if tl.stderr {
		fmt.Fprintf(os.Stderr, "@%s %s\n", e.Time.Format("15:04:05.000"), line)
	}
	if tl.Buf != nil {
		fmt.Fprintln(tl.Buf, line)
	} else {
		tl.t.Logf("@%s %s", e.Time.Format("15:04:05.000"), line)
	}
}

// Freeze stops capturing and restores default logging, fatal behavior and
// log.Cmd. Safe to call more than once.
func (tl *TstLog) Freeze() {
	tl.mu.Lock()
	frozen := tl.frozen
	tl.frozen = true
	tl.mu.Unlock()
	if frozen {
		return
	}
	log.Redirect(nil)
	log.SetFatalBehavior(log.DefaultFatalBehavior())
	log.Cmd = log.DefaultCmd
}

// Signature of functions usable to hijack log.Cmd. The returned output and
// ok are what code under test sees in place of running the real command.
type CmdHijacker func(cmd *exec.Cmd) (out string, ok bool)

// HijackCmd replaces log.Cmd with hj for the duration of the test.
// Restored by Freeze().
func (tl *TstLog) HijackCmd(hj CmdHijacker) {
	log.Cmd = log.CommandFunc(hj)
}

// just calls testing.T.Errorf
func (tl *TstLog) TstErrf(f string, va ...interface{}) { tl.t.Errorf(f, va...) }

//just calls testing.T.Logf
func (tl *TstLog) TstLogf(f string, va ...interface{}) { tl.t.Logf(f, va...) }
