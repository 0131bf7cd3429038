// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package erro holds error kinds shared across packages, plus FollowedBy,
//which aggregates the errors of a multi-step failure path in causal order.
package erro

import (
	"errors"
	"fmt"
)

var (
	//operation not supported by this client (wrong record version, multiple
	//payloads, http source, ...)
	ErrNotSupported = errors.New("not supported")
	//another operation must finish first
	ErrInProgress = errors.New("operation in progress")
	//a required field is missing from a serialized object
	ErrKeyMissing = errors.New("key missing")
	//a serialized field has the wrong type
	ErrWrongType = errors.New("wrong type")
	//impossible branch reached
	ErrProgramming = errors.New("programming error, this is a bug")
)

// FollowedBy returns an error combining err and next, next being the most
// recent failure. Either may be nil. The combined error prints in causal
// order and unwraps to both, so errors.Is sees every link of the chain.
func FollowedBy(err, next error) error {
	if err == nil {
		return next
	}
	if next == nil {
		return err
	}
	return &chain{first: err, next: next}
}

type chain struct {
	first error
	next  error
}

func (c *chain) Error() string {
	return fmt.Sprintf("%s; followed by: %s", c.first, c.next)
}

func (c *chain) Unwrap() []error { return []error{c.first, c.next} }
