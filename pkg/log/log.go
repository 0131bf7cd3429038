// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/* Package log is the update client's logging layer. Events fan out to any
number of attached sinks (console, file, test capture); events logged before
the first sink is attached are buffered and replayed into it, so nothing
said during early startup is lost.

Two audiences are distinguished. Msgf is for the device operator watching an
update ("Installing artifact..."): short, infrequent, non-technical. Logf is
for everything else - module verb output, store details, failure chains.
Fatalf logs, flushes and terminates via a configurable behavior so a failing
update can still reach the operator before the process exits.
*/
package log

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies an event by audience.
type Kind int

const (
	//technical detail, operator does not need to see it
	Diag Kind = iota
	//short operator-facing progress message
	User
	//the process is about to terminate
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Diag:
		return "diag"
	case User:
		return "user"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

//marker prepended to a rendered event, so mixed sinks stay scannable
func (k Kind) marker() string {
	switch k {
	case User:
		return "-- "
	case Fatal:
		return "!! "
	}
	return ""
}

// Event is one log record, already formatted. Sinks receive events fully
// rendered; argument formatting happens at the call site.
type Event struct {
	Time time.Time
	Kind Kind
	Msg  string
}

//timestamp used in rendered events
const eventStamp = "15:04:05.000"

//Format: yyyymmdd_hhmm. Used for log file names.
const TimestampLayout = "20060102_1504"

func (e Event) String() string {
	return e.Kind.marker() + e.Time.Format(eventStamp) + " " + e.Msg
}

//how many early events are held for replay before a sink is attached
const replayCap = 512

var (
	mu     sync.Mutex
	sinks  []Sink
	replay []Event //events seen before the first sink; drained on attach
	prefix string
)

// SetPrefix sets the process name used in log file names. Must be set
// before AddFileLog.
func SetPrefix(p string) {
	mu.Lock()
	defer mu.Unlock()
	prefix = p
}

// Prefix returns the prefix set with SetPrefix.
func Prefix() string {
	mu.Lock()
	defer mu.Unlock()
	return prefix
}

// Msgf logs an operator-facing progress message. Short, non-technical,
// infrequent - the operator needs time to read each one.
func Msgf(f string, va ...interface{}) { emit(User, fmt.Sprintf(f, va...)) }

// See Msgf
func Msg(message string) { emit(User, message) }

// Logf logs technical detail: verb output, store state, failure chains.
// Never shown on user-only sinks.
func Logf(f string, va ...interface{}) { emit(Diag, fmt.Sprintf(f, va...)) }

// See Logf
func Log(message string) { emit(Diag, message) }

func emit(k Kind, msg string) {
	mu.Lock()
	defer mu.Unlock()
	e := Event{Time: time.Now(), Kind: k, Msg: msg}
	if len(sinks) == 0 {
		if len(replay) == replayCap {
			//drop the oldest; startup should never get near this
			copy(replay, replay[1:])
			replay = replay[:replayCap-1]
		}
		replay = append(replay, e)
		return
	}
	for _, s := range sinks {
		s.Emit(e)
	}
}

// Buffered returns a copy of the events held for replay. Empty once a sink
// has been attached with replay. Mostly useful in tests.
func Buffered() []Event {
	mu.Lock()
	defer mu.Unlock()
	return append([]Event(nil), replay...)
}
