// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fileutil

import (
	"os"
	fp "path/filepath"
	"reflect"
	"testing"

	"github.com/Granjow/mender/pkg/log/testlog"
)

func TestSniff(t *testing.T) {
	xzHead := []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00, 0x00, 0x0a}
	if !SniffXZ(xzHead) {
		t.Error("xz magic not detected")
	}
	if SniffXZ([]byte{0x1f, 0x8b, 0x08}) {
		t.Error("gzip mistaken for xz")
	}
	if !SniffGzip([]byte{0x1f, 0x8b, 0x08}) {
		t.Error("gzip magic not detected")
	}

	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	path := fp.Join(t.TempDir(), "f.xz")
	if err := os.WriteFile(path, xzHead, 0644); err != nil {
		t.Fatal(err)
	}
	if !IsXZ(path) {
		t.Error("IsXZ on xz file")
	}
}

func TestReadConfigLines(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	path := fp.Join(t.TempDir(), "conf")
	content := "# leading comment\n\n  device_type=qemu  \nkey=value # trailing\n\nextra\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	lines, err := ReadConfigLines(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"device_type=qemu", "key=value", "extra"}
	if !reflect.DeepEqual(lines, want) {
		t.Errorf("got %v, want %v", lines, want)
	}

	lines, err = ReadConfigLines(path, 2)
	if err != nil || len(lines) != 2 {
		t.Errorf("maxLines: %v, %v", lines, err)
	}
}

func TestRenameUnique(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	dir := t.TempDir()
	old := fp.Join(dir, "record")
	if err := os.WriteFile(old, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !RenameUnique(old, "record_bad") {
		t.Fatal("rename failed")
	}
	if Exists(old) {
		t.Error("original still present")
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("dir: %v, %v", entries, err)
	}
	if got := entries[0].Name(); len(got) <= len("record_bad") {
		t.Errorf("renamed to %q", got)
	}
}
