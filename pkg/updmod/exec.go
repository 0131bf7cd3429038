// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package updmod

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	fp "path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Granjow/mender/pkg/artifact"
	"github.com/Granjow/mender/pkg/devctx"
	futil "github.com/Granjow/mender/pkg/fileutil"
	"github.com/Granjow/mender/pkg/log"
)

// Module drives one external update-module program. Constructed per
// operation; the work dir location is stable across process restarts so a
// commit or rollback after a crash finds the same tree.
type Module struct {
	ctx         *devctx.Context
	payloadType string
	workDir     string
}

var _ Interface = (*Module)(nil)

func New(ctx *devctx.Context, payloadType string) *Module {
	return &Module{
		ctx:         ctx,
		payloadType: payloadType,
		workDir:     fp.Join(ctx.Config.ModulesWorkPath, "payloads", "0000", "tree"),
	}
}

//WorkDir returns the per-update working directory.
func (m *Module) WorkDir() string { return m.workDir }

func (m *Module) modulePath() string {
	return fp.Join(m.ctx.Config.ModulesPath, m.payloadType)
}

func (m *Module) filesDir() string { return fp.Join(m.workDir, "files") }

// PrepareFileTree writes the file tree an update module expects: version,
// current artifact info and device type at the top, header metadata under
// header/, plus empty tmp/ and files/ dirs.
func (m *Module) PrepareFileTree(workdir string, header artifact.PayloadHeaderView) error {
	if _, err := os.Stat(m.modulePath()); err != nil {
		return fmt.Errorf("update module %s not found: %w", m.payloadType, err)
	}
	for _, d := range []string{"header", "tmp", "files"} {
		if err := os.MkdirAll(fp.Join(workdir, d), 0755); err != nil {
			return err
		}
	}

	provides, err := m.ctx.LoadProvides()
	if err != nil {
		return err
	}
	files := map[string]string{
		"version":                "3\n",
		"current_artifact_name":  provides["artifact_name"] + "\n",
		"current_artifact_group": provides["artifact_group"] + "\n",
		"current_device_type":    m.ctx.DeviceType() + "\n",
		fp.Join("header", "artifact_name"):  header.Header.ArtifactName + "\n",
		fp.Join("header", "artifact_group"): header.Header.ArtifactGroup + "\n",
		fp.Join("header", "payload_type"):   header.Header.PayloadType + "\n",
	}
	for name, content := range files {
		if err := os.WriteFile(fp.Join(workdir, name), []byte(content), 0644); err != nil {
			return err
		}
	}

	jsonFiles := map[string]interface{}{
		fp.Join("header", "type-info"): header.Header.TypeInfo,
		fp.Join("header", "header-info"): map[string]interface{}{
			"payloads": []map[string]string{{"type": header.Header.PayloadType}},
			"artifact_provides": map[string]string{
				"artifact_name":  header.Header.ArtifactName,
				"artifact_group": header.Header.ArtifactGroup,
			},
		},
	}
	if header.Header.MetaData != nil {
		jsonFiles[fp.Join("header", "meta-data")] = header.Header.MetaData
	}
	for name, obj := range jsonFiles {
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		if err = os.WriteFile(fp.Join(workdir, name), data, 0644); err != nil {
			return err
		}
	}
	return nil
}

// Download streams every payload file into files/. Free space on the work
// tree is checked against each file's declared size first.
func (m *Module) Download(payload *artifact.Payload) error {
	for {
		pf, err := payload.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if free := futil.FreeSpace(m.filesDir()); uint64(pf.Size) > free {
			return fmt.Errorf("payload file %s (%d bytes) exceeds free space (%d bytes)",
				pf.Name, pf.Size, free)
		}
		dst := fp.Join(m.filesDir(), pf.Name)
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, pf)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		log.Logf("downloaded payload file %s", pf.Name)
	}
}

func (m *Module) ArtifactInstall() error  { return m.callVerb("ArtifactInstall") }
func (m *Module) ArtifactCommit() error   { return m.callVerb("ArtifactCommit") }
func (m *Module) ArtifactRollback() error { return m.callVerb("ArtifactRollback") }
func (m *Module) ArtifactFailure() error  { return m.callVerb("ArtifactFailure") }

func (m *Module) NeedsReboot() (RebootAction, error) {
	answer, err := m.queryVerb("NeedsArtifactReboot")
	if err != nil {
		return NoReboot, err
	}
	switch answer {
	case "", "No":
		return NoReboot, nil
	case "Automatic":
		return AutomaticReboot, nil
	case "Yes":
		return RebootRequired, nil
	}
	return NoReboot, fmt.Errorf("update module %s: unexpected NeedsArtifactReboot answer %q",
		m.payloadType, answer)
}

func (m *Module) SupportsRollback() (bool, error) {
	answer, err := m.queryVerb("SupportsRollback")
	if err != nil {
		return false, err
	}
	switch answer {
	case "", "No":
		return false, nil
	case "Yes":
		return true, nil
	}
	return false, fmt.Errorf("update module %s: unexpected SupportsRollback answer %q",
		m.payloadType, answer)
}

func (m *Module) Cleanup() error {
	//also invoke the module's own cleanup hook, if the module still exists
	if futil.Exists(m.modulePath()) && futil.Exists(m.workDir) {
		if err := m.callVerb("Cleanup"); err != nil {
			log.Logf("module cleanup verb: %s", err)
		}
	}
	return os.RemoveAll(m.workDir)
}

// State-changing verbs go through log.Cmd so output lands in the log and
// tests can intercept execution.
func (m *Module) callVerb(verb string) error {
	cmd := exec.Command(m.modulePath(), verb, m.filesDir())
	cmd.Dir = m.workDir
	out, ok := log.Cmd(cmd)
	if !ok {
		return fmt.Errorf("update module %s: %s failed", m.payloadType, verb)
	}
	out = strings.TrimSpace(out)
	if out != "" {
		log.Logf("%s %s: %s", m.payloadType, verb, out)
	}
	return nil
}

// Query verbs need stdout separated from stderr; the answer is the last
// non-empty stdout line. Both streams are pumped concurrently so a chatty
// module cannot deadlock on a full pipe.
func (m *Module) queryVerb(verb string) (string, error) {
	cmd := exec.Command(m.modulePath(), verb, m.filesDir())
	cmd.Dir = m.workDir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", err
	}
	if err = cmd.Start(); err != nil {
		return "", fmt.Errorf("update module %s: %w", m.payloadType, err)
	}

	var answer string
	var eg errgroup.Group
	eg.Go(func() error {
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			if l := strings.TrimSpace(scanner.Text()); l != "" {
				answer = l
			}
		}
		return scanner.Err()
	})
	eg.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Logf("%s %s: %s", m.payloadType, verb, scanner.Text())
		}
		return scanner.Err()
	})
	perr := eg.Wait()
	werr := cmd.Wait()
	if werr != nil {
		return "", fmt.Errorf("update module %s: %s: %w", m.payloadType, verb, werr)
	}
	if perr != nil {
		return "", perr
	}
	return answer, nil
}
