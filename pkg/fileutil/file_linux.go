// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fileutil

import (
	"golang.org/x/sys/unix"

	"github.com/Granjow/mender/pkg/log"
)

// FreeSpace returns the number of bytes available to an unprivileged caller
// on the filesystem containing path, or 0 on error.
func FreeSpace(path string) uint64 {
	var st unix.Statfs_t
	err := unix.Statfs(path, &st)
	if err != nil {
		log.Logf("statfs %s: %s", path, err)
		return 0
	}
	return st.Bavail * uint64(st.Bsize)
}
