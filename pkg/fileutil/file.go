// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fileutil

import (
	"bufio"
	"bytes"
	"io"
	"os"
	fp "path/filepath"
	"strings"

	"github.com/Granjow/mender/pkg/log"
)

var (
	xzId = [6]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00} // fd 37 7a 58 5a 00 -> xz archive
	gzId = [2]byte{0x1f, 0x8b}
)

//return n bytes from beginning of file
func ReadHeader(fname string, n int64) (head []byte, err error) {
	f, err := os.Open(fname)
	if err != nil {
		return
	}
	defer f.Close()
	head, err = io.ReadAll(io.LimitReader(f, n))
	if int64(len(head)) < n {
		return nil, io.ErrUnexpectedEOF
	}
	return
}

//checks for XZ header
func IsXZ(fname string) bool {
	head, err := ReadHeader(fname, int64(len(xzId)))
	if err != nil {
		log.Logf("failed to read head bytes from %s: %s", fname, err)
		return false
	}
	return bytes.Equal(head, xzId[:])
}

//SniffXZ reports whether buf begins with the XZ stream magic.
func SniffXZ(buf []byte) bool {
	return len(buf) >= len(xzId) && bytes.Equal(buf[:len(xzId)], xzId[:])
}

//SniffGzip reports whether buf begins with the gzip magic.
func SniffGzip(buf []byte) bool {
	return len(buf) >= len(gzId) && bytes.Equal(buf[:len(gzId)], gzId[:])
}

//true if path exists (file, dir, anything)
func Exists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// Renames old in same dir, using newPfx + random suffix (via os.CreateTemp)
func RenameUnique(old, newPfx string) (success bool) {
	f, err := os.CreateTemp(fp.Dir(old), newPfx)
	if err != nil {
		log.Logf("error %s creating temp file for %s", err, old)
		err = os.Remove(old)
		if err != nil {
			log.Logf("error %s deleting %s", err, old)
		}
		return false
	}
	newname := f.Name()
	f.Close()
	err = os.Remove(newname)
	if err != nil {
		log.Logf("error %s deleting temp file %s", err, newname)
	}
	err = os.Rename(old, newname)
	if err != nil {
		log.Logf("error %s renaming %s to %s", err, old, newname)
	}
	return err == nil
}

// ReadConfigLines reads a config file at the given path. Whitespace is
// stripped, as are comments (anything between # and \n). Individual lines
// are returned, up to maxLines.
func ReadConfigLines(path string, maxLines int) ([]string, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	var lines []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		l := strings.TrimSpace(scanner.Text())
		if strings.Contains(l, "#") {
			l = strings.TrimSpace(strings.SplitN(l, "#", 2)[0]) //get rid of the comment
		}
		if len(l) == 0 {
			continue
		}
		lines = append(lines, l)
		if len(lines) == maxLines {
			log.Logf("ReadConfigLines: max lines (%d) read from %s", maxLines, path)
			break
		}
	}
	err = scanner.Err()
	if err != nil {
		return nil, err
	}
	return lines, nil
}
