// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/* Package artifact reads update artifacts: tar archives with a fixed entry
order - `version`, `manifest`, `header.tar.gz`, then one `data/0000.tar.gz`
(or .tar.xz) payload archive.

The reader is streaming: Parse consumes everything up to (not including) the
payload, verifying each consumed entry against the sha256 sums in the
manifest. The payload is then streamed by the caller via Next(). State
scripts embedded in the header are extracted to the configured scripts path
as a side effect of parsing.

Multi-payload artifacts are rejected; signature verification is not
performed here.
*/
package artifact

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	fp "path/filepath"
	"strings"

	"github.com/Granjow/mender/pkg/erro"
	"github.com/Granjow/mender/pkg/log"
)

//the only format/version this client understands
const (
	formatName    = "mender"
	formatVersion = 3
)

type ParserConfig struct {
	//where scripts/* entries of the header are extracted; "" disables
	//extraction
	ArtifactScriptsPath string
}

//header-info, one per artifact
type headerInfo struct {
	Payloads []struct {
		Type string `json:"type"`
	} `json:"payloads"`
	Provides struct {
		ArtifactName  string `json:"artifact_name"`
		ArtifactGroup string `json:"artifact_group"`
	} `json:"artifact_provides"`
	Depends map[string]interface{} `json:"artifact_depends"`
}

//type-info, one per payload
type TypeInfo struct {
	Type           string            `json:"type"`
	Provides       map[string]string `json:"artifact_provides,omitempty"`
	ClearsProvides []string          `json:"clears_artifact_provides,omitempty"`
}

//Header is the parsed view of everything the artifact declares about its
//single payload.
type Header struct {
	ArtifactName  string
	ArtifactGroup string
	PayloadType   string
	TypeInfo      TypeInfo
	MetaData      map[string]interface{}
}

//PayloadHeaderView is the header as seen from one payload's perspective.
//With multi-payload artifacts rejected, only index 0 exists.
type PayloadHeaderView struct {
	Header Header
}

// Artifact is a partially-consumed artifact stream: header fully parsed,
// payload not yet read.
type Artifact struct {
	tr       *tar.Reader
	manifest map[string]string //entry name -> sha256 hex
	header   Header
	consumed bool
}

// Parse reads the artifact stream up to the payload. On success the returned
// Artifact exposes the header (View) and the payload stream (Next).
func Parse(r io.Reader, cfg ParserConfig) (*Artifact, error) {
	tr := tar.NewReader(r)
	a := &Artifact{tr: tr}

	//version must be first
	hdr, err := tr.Next()
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	if path.Clean(hdr.Name) != "version" {
		return nil, fmt.Errorf("unexpected first entry %q, want version", hdr.Name)
	}
	versionSum := sha256.New()
	versionData, err := io.ReadAll(io.TeeReader(tr, versionSum))
	if err != nil {
		return nil, err
	}
	var ver struct {
		Format  string `json:"format"`
		Version int    `json:"version"`
	}
	if err = json.Unmarshal(versionData, &ver); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	if ver.Format != formatName {
		return nil, fmt.Errorf("%w: artifact format %q", erro.ErrNotSupported, ver.Format)
	}
	if ver.Version != formatVersion {
		return nil, fmt.Errorf("%w: artifact version %d", erro.ErrNotSupported, ver.Version)
	}

	//manifest second
	hdr, err = tr.Next()
	if err != nil {
		return nil, err
	}
	if path.Clean(hdr.Name) != "manifest" {
		return nil, fmt.Errorf("unexpected entry %q, want manifest", hdr.Name)
	}
	a.manifest, err = parseManifest(tr)
	if err != nil {
		return nil, err
	}
	if err = a.verify("version", versionSum); err != nil {
		return nil, err
	}

	//header.tar.gz next; a manifest signature may precede it
	for {
		hdr, err = tr.Next()
		if err != nil {
			return nil, err
		}
		name := path.Clean(hdr.Name)
		if name == "manifest.sig" {
			//signature verification is delegated elsewhere
			if _, err = io.Copy(io.Discard, tr); err != nil {
				return nil, err
			}
			continue
		}
		if name != "header.tar.gz" {
			return nil, fmt.Errorf("unexpected entry %q, want header.tar.gz", hdr.Name)
		}
		break
	}
	headerSum := sha256.New()
	if err = a.parseHeader(io.TeeReader(tr, headerSum), cfg); err != nil {
		return nil, err
	}
	//drain any gzip trailer bytes so the checksum covers the whole entry
	if _, err = io.Copy(io.Discard, io.TeeReader(tr, headerSum)); err != nil {
		return nil, err
	}
	if err = a.verify("header.tar.gz", headerSum); err != nil {
		return nil, err
	}

	return a, nil
}

// View returns the payload header view for the given payload index. Only
// index 0 is valid.
func View(a *Artifact, index int) (PayloadHeaderView, error) {
	if index != 0 {
		return PayloadHeaderView{}, fmt.Errorf("%w: payload index %d", erro.ErrNotSupported, index)
	}
	return PayloadHeaderView{Header: a.header}, nil
}

func parseManifest(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[0]) != sha256.Size*2 {
			return nil, fmt.Errorf("malformed manifest line %q", line)
		}
		m[path.Clean(fields[1])] = fields[0]
	}
	return m, nil
}

//compare a consumed entry's checksum with the manifest; entries the manifest
//does not list are an error
func (a *Artifact) verify(name string, sum hash.Hash) error {
	want, ok := a.manifest[name]
	if !ok {
		return fmt.Errorf("%s not listed in manifest", name)
	}
	got := hex.EncodeToString(sum.Sum(nil))
	if got != want {
		return fmt.Errorf("%s: checksum mismatch (%s != %s)", name, got, want)
	}
	return nil
}

func (a *Artifact) parseHeader(r io.Reader, cfg ParserConfig) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening header: %w", err)
	}
	defer gzr.Close()
	htr := tar.NewReader(gzr)

	var hi *headerInfo
	var ti *TypeInfo
	for {
		hdr, err := htr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name := path.Clean(hdr.Name)
		switch {
		case name == "header-info":
			hi = &headerInfo{}
			if err = decodeJSON(htr, hi); err != nil {
				return fmt.Errorf("header-info: %w", err)
			}
		case name == "headers/0000/type-info":
			ti = &TypeInfo{}
			if err = decodeJSON(htr, ti); err != nil {
				return fmt.Errorf("type-info: %w", err)
			}
		case name == "headers/0000/meta-data":
			md := map[string]interface{}{}
			if err = decodeJSON(htr, &md); err != nil {
				return fmt.Errorf("meta-data: %w", err)
			}
			a.header.MetaData = md
		case strings.HasPrefix(name, "scripts/"):
			if err = extractScript(cfg, name, htr); err != nil {
				return err
			}
		case strings.HasPrefix(name, "headers/"):
			//another payload's header files; rejected below via header-info
			if _, err = io.Copy(io.Discard, htr); err != nil {
				return err
			}
		default:
			log.Logf("ignoring unknown header entry %s", name)
			if _, err = io.Copy(io.Discard, htr); err != nil {
				return err
			}
		}
	}

	if hi == nil {
		return fmt.Errorf("%w: header-info", erro.ErrKeyMissing)
	}
	if len(hi.Payloads) == 0 {
		return fmt.Errorf("artifact has no payloads")
	}
	if len(hi.Payloads) > 1 {
		return fmt.Errorf("%w: artifact has %d payloads", erro.ErrNotSupported, len(hi.Payloads))
	}
	if ti == nil {
		return fmt.Errorf("%w: type-info", erro.ErrKeyMissing)
	}
	a.header.ArtifactName = hi.Provides.ArtifactName
	a.header.ArtifactGroup = hi.Provides.ArtifactGroup
	a.header.PayloadType = hi.Payloads[0].Type
	a.header.TypeInfo = *ti
	if a.header.ArtifactName == "" {
		return fmt.Errorf("%w: artifact_name", erro.ErrKeyMissing)
	}
	if a.header.PayloadType == "" {
		return fmt.Errorf("%w: payload type", erro.ErrKeyMissing)
	}
	return nil
}

func decodeJSON(r io.Reader, dst interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}

func extractScript(cfg ParserConfig, name string, r io.Reader) error {
	if cfg.ArtifactScriptsPath == "" {
		_, err := io.Copy(io.Discard, r)
		return err
	}
	if err := os.MkdirAll(cfg.ArtifactScriptsPath, 0755); err != nil {
		return err
	}
	dst := fp.Join(cfg.ArtifactScriptsPath, path.Base(name))
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}
