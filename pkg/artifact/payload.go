// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package artifact

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"path"
	"strings"

	"github.com/ulikunitz/xz"
)

// Payload is the artifact's installable content: a stream of files. Files
// must be consumed in order; the underlying artifact stream is not seekable.
type Payload struct {
	a    *Artifact
	name string    //data/0000.tar.gz or .tar.xz
	raw  io.Reader //compressed entry, tee'd into sum
	sum  hash.Hash
	tr   *tar.Reader
}

//one file inside the payload
type PayloadFile struct {
	Name string
	Size int64
	io.Reader
}

// Next returns the artifact's payload. May be called once; the second call
// returns io.EOF (single-payload artifacts only).
func (a *Artifact) Next() (*Payload, error) {
	if a.consumed {
		return nil, io.EOF
	}
	hdr, err := a.tr.Next()
	if err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}
	a.consumed = true
	name := path.Clean(hdr.Name)
	if !strings.HasPrefix(name, "data/") {
		return nil, fmt.Errorf("unexpected entry %q, want data/", hdr.Name)
	}

	sum := sha256.New()
	raw := io.TeeReader(a.tr, sum)
	var dec io.Reader
	switch {
	case strings.HasSuffix(name, ".tar.gz"):
		dec, err = gzip.NewReader(raw)
	case strings.HasSuffix(name, ".tar.xz"):
		dec, err = xz.NewReader(raw)
	default:
		err = fmt.Errorf("unknown payload compression for %q", name)
	}
	if err != nil {
		return nil, err
	}
	return &Payload{a: a, name: name, raw: raw, sum: sum, tr: tar.NewReader(dec)}, nil
}

// Next returns the next file of the payload, or io.EOF when the payload is
// exhausted. On EOF the payload's checksum has been verified against the
// manifest; a corrupt payload surfaces here rather than as short data.
func (p *Payload) Next() (*PayloadFile, error) {
	hdr, err := p.tr.Next()
	if err == io.EOF {
		//drain the rest of the compressed entry so the checksum covers
		//all of it
		if _, cerr := io.Copy(io.Discard, p.raw); cerr != nil {
			return nil, cerr
		}
		if verr := p.a.verify(p.name, p.sum); verr != nil {
			return nil, verr
		}
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	if hdr.Typeflag != tar.TypeReg {
		return p.Next()
	}
	return &PayloadFile{
		Name:   path.Base(hdr.Name),
		Size:   hdr.Size,
		Reader: p.tr,
	}, nil
}
