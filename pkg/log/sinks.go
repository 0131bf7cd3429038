// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"bufio"
	"fmt"
	"os"
	fp "path/filepath"
	"time"
)

// Sink receives rendered events. Implementations must be safe to call from
// the dispatcher only; the package serializes Emit calls.
type Sink interface {
	//stable identifier; at most one sink per ident may be attached
	Ident() string
	Emit(Event)
	//flush and release resources; no Emit calls follow
	Close()
}

// Attach adds a sink. With withReplay, events buffered before the first
// sink was attached are emitted into it first, then the buffer is dropped.
// Attaching a second sink with the same ident is an error.
func Attach(s Sink, withReplay bool) error {
	mu.Lock()
	defer mu.Unlock()
	for _, have := range sinks {
		if have.Ident() == s.Ident() {
			return fmt.Errorf("duplicate log sink %s", s.Ident())
		}
	}
	if withReplay {
		for _, e := range replay {
			s.Emit(e)
		}
		replay = nil
	}
	sinks = append(sinks, s)
	return nil
}

// Detach closes and removes the sink with the given ident, if attached.
func Detach(ident string) {
	mu.Lock()
	defer mu.Unlock()
	for i, s := range sinks {
		if s.Ident() == ident {
			s.Close()
			sinks = append(sinks[:i], sinks[i+1:]...)
			return
		}
	}
}

// Attached reports whether a sink with the given ident is attached.
func Attached(ident string) bool {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range sinks {
		if s.Ident() == ident {
			return true
		}
	}
	return false
}

// Close flushes and closes every sink and removes them all. The replay
// buffer starts collecting again afterwards.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	for _, s := range sinks {
		s.Close()
	}
	sinks = nil
}

// Redirect drops every attached sink (without closing - the caller keeps
// ownership) and the replay buffer, then installs s as the only sink.
// Intended for test capture; see the testlog package.
func Redirect(s Sink) {
	mu.Lock()
	defer mu.Unlock()
	sinks = nil
	replay = nil
	if s != nil {
		sinks = []Sink{s}
	}
}

type consoleSink struct {
	userOnly bool
}

const ConsoleSinkIdent = "console"

// AddConsoleLog attaches a stderr sink, replaying buffered events. With
// userOnly, only operator-facing (and fatal) events are shown.
func AddConsoleLog(userOnly bool) {
	_ = Attach(&consoleSink{userOnly: userOnly}, true)
}

func (c *consoleSink) Ident() string { return ConsoleSinkIdent }
func (c *consoleSink) Close()        {}

func (c *consoleSink) Emit(e Event) {
	if c.userOnly && e.Kind == Diag {
		return
	}
	fmt.Fprintln(os.Stderr, e.String())
}

type fileSink struct {
	f *os.File
	w *bufio.Writer
}

const FileSinkIdent = "file"

// AddFileLog attaches a sink writing to <dir>/<prefix><timestamp>.log,
// replaying buffered events. The prefix must have been set.
func AddFileLog(dir string) (string, error) {
	pfx := Prefix()
	if pfx == "" {
		return "", fmt.Errorf("log prefix is unset")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := fp.Join(dir, pfx+time.Now().Format(TimestampLayout)+".log")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	fs := &fileSink{f: f, w: bufio.NewWriter(f)}
	if err = Attach(fs, true); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (fs *fileSink) Ident() string { return FileSinkIdent }

func (fs *fileSink) Emit(e Event) {
	fmt.Fprintln(fs.w, e.String())
}

func (fs *fileSink) Close() {
	if err := fs.w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flushing log file: %s\n", err)
	}
	if err := fs.f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log file: %s\n", err)
	}
}
