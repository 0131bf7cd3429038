// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Subpackages implement the standalone update client for embedded Linux
// devices: artifact installation driven entirely from the device, with no
// server involvement.
//
// A device is updated in up to three user-invoked steps:
//
//    - install: an update artifact (a tar archive with a version header,
//      checksums and a single compressed payload) is parsed, a durable
//      record of the in-progress update is written to the device store, and
//      an external update module program writes the payload to the device.
//
//    - commit: the installed update is made permanent. Committed artifact
//      provenance (name, group, provides) replaces the previous provenance
//      and the in-progress record is retired in the same store transaction,
//      so a power cut never leaves the two disagreeing.
//
//    - rollback: the installed update is reverted, if the update module
//      supports it. Modules without rollback capability cause the update to
//      be committed immediately at install time instead.
//
// Every failure path ends in a defined state: committed, rolled back, or an
// explicitly recorded "broken" installation whose artifact name carries a
// suffix that later operations can detect.
//
// The update module boundary is a small executable contract (one verb per
// invocation, answers on stdout); everything on this side of it - state
// machine, store, artifact reader - lives in pkg/.
package mender
