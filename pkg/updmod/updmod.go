// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/* Package updmod defines the update-module contract the orchestrator drives,
and implements it for external module programs.

An update module is an executable installed under the modules directory,
named after the payload type it services. It is invoked once per verb:

	<module> <Verb> <work dir>/files

The module reads payload data and header metadata from a file tree prepared
by PrepareFileTree, writes it to the device on ArtifactInstall, and answers
capability queries (NeedsArtifactReboot, SupportsRollback) on stdout.
*/
package updmod

import (
	"github.com/Granjow/mender/pkg/artifact"
)

//what the module wants done after a successful install
type RebootAction int

const (
	NoReboot RebootAction = iota
	AutomaticReboot
	RebootRequired
)

func (r RebootAction) String() string {
	switch r {
	case NoReboot:
		return "No"
	case AutomaticReboot:
		return "Automatic"
	case RebootRequired:
		return "Yes"
	}
	return "unknown"
}

// Interface is the capability set the orchestrator consumes. Implementations
// need not be subprocess-backed; tests use in-memory stubs.
type Interface interface {
	//the per-update working directory; stable across process restarts
	WorkDir() string
	//materialize the per-update working directory layout the module
	//expects; undone by Cleanup
	PrepareFileTree(workdir string, header artifact.PayloadHeaderView) error
	//stream the payload into the module's file tree
	Download(payload *artifact.Payload) error
	//write the payload to the target device
	ArtifactInstall() error
	//whether a reboot is required post-install
	NeedsReboot() (RebootAction, error)
	//whether the just-installed payload can be rolled back
	SupportsRollback() (bool, error)
	//make the install permanent
	ArtifactCommit() error
	//revert the install
	ArtifactRollback() error
	//module-defined post-failure hook; may run after any failed verb
	ArtifactFailure() error
	//remove the working directory and temporary state; idempotent,
	//tolerates absent state
	Cleanup() error
}
