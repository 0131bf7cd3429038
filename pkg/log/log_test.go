// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"os/exec"
	"strings"
	"testing"
)

//records events for assertions
type captureSink struct {
	ident  string
	events []Event
	closed bool
}

func (c *captureSink) Ident() string { return c.ident }
func (c *captureSink) Emit(e Event)  { c.events = append(c.events, e) }
func (c *captureSink) Close()        { c.closed = true }

func reset() {
	Redirect(nil)
	SetFatalBehavior(DefaultFatalBehavior())
}

func TestReplayIntoFirstSink(t *testing.T) {
	reset()
	defer reset()

	Logf("early %d", 1)
	Msg("early user")
	if n := len(Buffered()); n != 2 {
		t.Fatalf("replay buffer holds %d events", n)
	}

	cs := &captureSink{ident: "capture"}
	if err := Attach(cs, true); err != nil {
		t.Fatal(err)
	}
	if len(cs.events) != 2 {
		t.Fatalf("replayed %d events", len(cs.events))
	}
	if cs.events[0].Kind != Diag || cs.events[1].Kind != User {
		t.Errorf("kinds: %s, %s", cs.events[0].Kind, cs.events[1].Kind)
	}
	if len(Buffered()) != 0 {
		t.Error("replay buffer not drained")
	}

	Log("live")
	if len(cs.events) != 3 || cs.events[2].Msg != "live" {
		t.Errorf("live event not delivered: %v", cs.events)
	}
}

func TestDuplicateSinkRejected(t *testing.T) {
	reset()
	defer reset()

	if err := Attach(&captureSink{ident: "dup"}, false); err != nil {
		t.Fatal(err)
	}
	if err := Attach(&captureSink{ident: "dup"}, false); err == nil {
		t.Error("duplicate sink accepted")
	}
}

func TestDetachAndClose(t *testing.T) {
	reset()
	defer reset()

	a := &captureSink{ident: "a"}
	b := &captureSink{ident: "b"}
	if err := Attach(a, false); err != nil {
		t.Fatal(err)
	}
	if err := Attach(b, false); err != nil {
		t.Fatal(err)
	}

	Detach("a")
	if !a.closed || !Attached("b") || Attached("a") {
		t.Errorf("detach: a closed %t, a attached %t, b attached %t",
			a.closed, Attached("a"), Attached("b"))
	}
	Log("after detach")
	if len(a.events) != 0 || len(b.events) != 1 {
		t.Errorf("events after detach: a %d, b %d", len(a.events), len(b.events))
	}

	Close()
	if !b.closed || Attached("b") {
		t.Error("close did not release remaining sink")
	}
}

func TestEventRendering(t *testing.T) {
	e := Event{Kind: User, Msg: "hello"}
	if !strings.HasPrefix(e.String(), "-- ") || !strings.HasSuffix(e.String(), "hello") {
		t.Errorf("user event: %q", e.String())
	}
	e.Kind = Fatal
	if !strings.HasPrefix(e.String(), "!! ") {
		t.Errorf("fatal event: %q", e.String())
	}
	e.Kind = Diag
	if strings.HasPrefix(e.String(), "-- ") || strings.HasPrefix(e.String(), "!! ") {
		t.Errorf("diag event: %q", e.String())
	}
}

func TestFatalBehaviorOverride(t *testing.T) {
	reset()
	defer reset()

	cs := &captureSink{ident: "capture"}
	if err := Attach(cs, false); err != nil {
		t.Fatal(err)
	}

	var before, exited string
	SetFatalBehavior(FatalBehavior{
		Prefix: "ERROR: ",
		Before: func(msg string) { before = msg },
		Exit:   func() { exited = "yes" },
	})
	Fatalf("bad %s", "thing")

	if before != "ERROR: bad thing" || exited != "yes" {
		t.Errorf("behavior hooks: before %q, exited %q", before, exited)
	}
	last := cs.events[len(cs.events)-1]
	if last.Kind != Fatal || last.Msg != "ERROR: bad thing" {
		t.Errorf("fatal event: %+v", last)
	}
}

func TestDefaultCmd(t *testing.T) {
	reset()
	defer reset()
	cs := &captureSink{ident: "capture"}
	if err := Attach(cs, false); err != nil {
		t.Fatal(err)
	}

	out, ok := Cmd(exec.Command("sh", "-c", "echo hi"))
	if !ok || out != "hi" {
		t.Errorf("success run: %q, %t", out, ok)
	}

	out, ok = Cmd(exec.Command("sh", "-c", "echo nope; exit 2"))
	if ok || out != "nope" {
		t.Errorf("failed run: %q, %t", out, ok)
	}
	//failure output lands in the log
	var found bool
	for _, e := range cs.events {
		if strings.Contains(e.Msg, "nope") {
			found = true
		}
	}
	if !found {
		t.Errorf("failure output not logged: %v", cs.events)
	}
}
