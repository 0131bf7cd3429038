// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package artifact

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/Granjow/mender/pkg/erro"
	"github.com/Granjow/mender/pkg/log/testlog"
)

func mkArtifact(t *testing.T, args TestArtifactArgs) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := WriteTestArtifact(buf, args); err != nil {
		t.Fatalf("writing test artifact: %s", err)
	}
	return buf
}

func TestParseValid(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	buf := mkArtifact(t, TestArtifactArgs{
		Name:           "release-1",
		Group:          "group-a",
		PayloadType:    "testmod",
		Provides:       map[string]string{"rootfs-image.version": "release-1"},
		ClearsProvides: []string{"rootfs-image.*"},
		Files:          map[string]string{"img": "payload content"},
	})

	a, err := Parse(buf, ParserConfig{})
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	view, err := View(a, 0)
	if err != nil {
		t.Fatalf("view: %s", err)
	}
	h := view.Header
	if h.ArtifactName != "release-1" || h.ArtifactGroup != "group-a" {
		t.Errorf("bad name/group: %q/%q", h.ArtifactName, h.ArtifactGroup)
	}
	if h.PayloadType != "testmod" {
		t.Errorf("bad payload type %q", h.PayloadType)
	}
	if h.TypeInfo.Provides["rootfs-image.version"] != "release-1" {
		t.Errorf("bad provides %v", h.TypeInfo.Provides)
	}
	if len(h.TypeInfo.ClearsProvides) != 1 || h.TypeInfo.ClearsProvides[0] != "rootfs-image.*" {
		t.Errorf("bad clears provides %v", h.TypeInfo.ClearsProvides)
	}

	if _, err = View(a, 1); err == nil {
		t.Error("view of payload 1 must fail")
	}

	payload, err := a.Next()
	if err != nil {
		t.Fatalf("payload: %s", err)
	}
	pf, err := payload.Next()
	if err != nil {
		t.Fatalf("payload file: %s", err)
	}
	if pf.Name != "img" {
		t.Errorf("bad file name %q", pf.Name)
	}
	content, err := io.ReadAll(pf)
	if err != nil || string(content) != "payload content" {
		t.Errorf("bad content %q (%v)", content, err)
	}
	if _, err = payload.Next(); err != io.EOF {
		t.Errorf("expected EOF after last file, got %v", err)
	}
	if _, err = a.Next(); err != io.EOF {
		t.Errorf("expected EOF for second payload, got %v", err)
	}
}

func TestParseXZPayload(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	buf := mkArtifact(t, TestArtifactArgs{
		Name:        "release-2",
		PayloadType: "testmod",
		Files:       map[string]string{"img": "xz payload"},
		XZ:          true,
	})
	a, err := Parse(buf, ParserConfig{})
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	payload, err := a.Next()
	if err != nil {
		t.Fatalf("payload: %s", err)
	}
	pf, err := payload.Next()
	if err != nil {
		t.Fatalf("payload file: %s", err)
	}
	content, err := io.ReadAll(pf)
	if err != nil || string(content) != "xz payload" {
		t.Errorf("bad content %q (%v)", content, err)
	}
	if _, err = payload.Next(); err != io.EOF {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestParseRejectsMultiPayload(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	buf := mkArtifact(t, TestArtifactArgs{
		Name:          "release-3",
		PayloadType:   "testmod",
		Files:         map[string]string{"img": "x"},
		ExtraPayloads: 1,
	})
	_, err := Parse(buf, ParserConfig{})
	if !errors.Is(err, erro.ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestParseDetectsCorruptPayload(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	buf := mkArtifact(t, TestArtifactArgs{
		Name:           "release-4",
		PayloadType:    "testmod",
		Files:          map[string]string{"img": "payload content"},
		CorruptPayload: true,
	})
	a, err := Parse(buf, ParserConfig{})
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	payload, err := a.Next()
	if err != nil {
		//corruption may already break the compression layer
		return
	}
	for {
		pf, err := payload.Next()
		if err == io.EOF {
			t.Error("corrupt payload passed verification")
			return
		}
		if err != nil {
			return //mismatch or decode error, both acceptable
		}
		if _, err = io.Copy(io.Discard, pf); err != nil {
			return
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tlog := testlog.NewTestLog(t, false, false)
	defer tlog.Freeze()
	_, err := Parse(bytes.NewReader([]byte("not a tar stream")), ParserConfig{})
	if err == nil {
		t.Error("expected error for garbage input")
	}
}
