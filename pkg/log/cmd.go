// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"os/exec"
	fp "path/filepath"
	"strings"
	"time"
)

// CommandFunc runs an external command - in this client, almost always an
// update module verb - returning its combined output with surrounding
// whitespace trimmed. ok is false if the command could not run or exited
// non-zero.
type CommandFunc func(cmd *exec.Cmd) (out string, ok bool)

// Commands dispatched through Cmd are logged with their duration and, on
// failure, their output, and can be intercepted by testlog to simulate
// module behavior that is not reproducible locally.
var Cmd CommandFunc = DefaultCmd

// Default impl of Cmd().
func DefaultCmd(cmd *exec.Cmd) (string, bool) {
	//cmd.Path is the module executable; args[1] is the verb
	what := fp.Base(cmd.Path)
	if len(cmd.Args) > 1 {
		what += " " + cmd.Args[1]
	}
	start := time.Now()
	raw, err := cmd.CombinedOutput()
	took := time.Since(start).Round(time.Millisecond)
	out := strings.TrimSpace(string(raw))
	if err != nil {
		Logf("%s: %s after %s, output:\n%s", what, err, took, out)
		return out, false
	}
	Logf("%s: ok (%s)", what, took)
	return out, true
}
