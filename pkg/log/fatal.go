// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"os"
	"strings"
)

// FatalBehavior is what Fatalf does once the event is logged. On a device
// mid-update this may be more involved than exiting - notify a record
// keeper, reboot - so both steps are pluggable.
type FatalBehavior struct {
	//prepended to the message
	Prefix string
	//runs before Exit, i.e. may still log
	Before func(msg string)
	//flushes sinks and terminates the process
	Exit func()
}

var fatal = DefaultFatalBehavior()

// SetFatalBehavior replaces what Fatalf does; see FatalBehavior.
func SetFatalBehavior(b FatalBehavior) {
	if b.Exit == nil {
		b.Exit = exitProcess
	}
	fatal = b
}

//DefaultFatalBehavior flushes all sinks and exits the process with status 1.
func DefaultFatalBehavior() FatalBehavior {
	return FatalBehavior{Exit: exitProcess}
}

func exitProcess() {
	Close()
	if strings.HasSuffix(os.Args[0], "test") {
		panic("fatal exit reached from 'go test'")
	}
	os.Exit(1)
}

func anyAttached() bool {
	mu.Lock()
	defer mu.Unlock()
	return len(sinks) > 0
}

// Fatalf logs the message as a fatal event and does not return (unless the
// configured behavior does). If nothing is attached yet, a console sink is
// added first so the message cannot vanish into the replay buffer.
func Fatalf(f string, va ...interface{}) {
	if !anyAttached() {
		AddConsoleLog(false)
	}
	msg := fatal.Prefix + fmt.Sprintf(f, va...)
	emit(Fatal, msg)
	if fatal.Before != nil {
		fatal.Before(msg)
	}
	fatal.Exit()
}
