// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//go:build !release

package artifact

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
)

// Arguments for WriteTestArtifact. Only Name and PayloadType are required.
type TestArtifactArgs struct {
	Name           string
	Group          string
	PayloadType    string
	Provides       map[string]string
	ClearsProvides []string
	//payload file name -> content
	Files map[string]string
	//declare this many additional payloads in header-info (invalid artifacts)
	ExtraPayloads int
	//flip a byte of the payload after checksumming, to break verification
	CorruptPayload bool
	//compress the payload with xz instead of gzip
	XZ bool
}

//Writes an arbitrary artifact, for use in tests.
func WriteTestArtifact(w io.Writer, args TestArtifactArgs) error {
	version := []byte(`{"format":"mender","version":3}`)

	headerTar, err := buildHeader(args)
	if err != nil {
		return err
	}

	dataName := "data/0000.tar.gz"
	if args.XZ {
		dataName = "data/0000.tar.xz"
	}
	dataTar, err := buildData(args)
	if err != nil {
		return err
	}

	manifest := fmt.Sprintf("%s  version\n%s  header.tar.gz\n%s  %s\n",
		sumHex(version), sumHex(headerTar), sumHex(dataTar), dataName)

	if args.CorruptPayload && len(dataTar) > 0 {
		dataTar[len(dataTar)/2] ^= 0xff
	}

	tw := tar.NewWriter(w)
	entries := []struct {
		name string
		data []byte
	}{
		{"version", version},
		{"manifest", []byte(manifest)},
		{"header.tar.gz", headerTar},
		{dataName, dataTar},
	}
	for _, e := range entries {
		err = tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.data))})
		if err != nil {
			return err
		}
		if _, err = tw.Write(e.data); err != nil {
			return err
		}
	}
	return tw.Close()
}

func sumHex(data []byte) string {
	s := sha256.Sum256(data)
	return hex.EncodeToString(s[:])
}

func buildHeader(args TestArtifactArgs) ([]byte, error) {
	payloads := []map[string]string{{"type": args.PayloadType}}
	for i := 0; i < args.ExtraPayloads; i++ {
		payloads = append(payloads, map[string]string{"type": args.PayloadType})
	}
	hi, err := json.Marshal(map[string]interface{}{
		"payloads": payloads,
		"artifact_provides": map[string]string{
			"artifact_name":  args.Name,
			"artifact_group": args.Group,
		},
	})
	if err != nil {
		return nil, err
	}
	ti, err := json.Marshal(TypeInfo{
		Type:           args.PayloadType,
		Provides:       args.Provides,
		ClearsProvides: args.ClearsProvides,
	})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	for _, e := range []struct {
		name string
		data []byte
	}{
		{"header-info", hi},
		{"headers/0000/type-info", ti},
	} {
		err = tw.WriteHeader(&tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.data))})
		if err != nil {
			return nil, err
		}
		if _, err = tw.Write(e.data); err != nil {
			return nil, err
		}
	}
	if err = tw.Close(); err != nil {
		return nil, err
	}
	if err = gzw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func buildData(args TestArtifactArgs) ([]byte, error) {
	var buf bytes.Buffer
	var comp io.WriteCloser
	var err error
	if args.XZ {
		comp, err = xz.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
	} else {
		comp = gzip.NewWriter(&buf)
	}
	tw := tar.NewWriter(comp)
	for name, content := range args.Files {
		err = tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))})
		if err != nil {
			return nil, err
		}
		if _, err = tw.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	if err = tw.Close(); err != nil {
		return nil, err
	}
	if err = comp.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
