// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package erro

import (
	"errors"
	"fmt"
	"testing"
)

func TestFollowedByNilHandling(t *testing.T) {
	e := fmt.Errorf("boom")
	if FollowedBy(nil, nil) != nil {
		t.Error("nil, nil")
	}
	if FollowedBy(e, nil) != e {
		t.Error("err, nil")
	}
	if FollowedBy(nil, e) != e {
		t.Error("nil, err")
	}
}

func TestFollowedByOrderAndUnwrap(t *testing.T) {
	first := fmt.Errorf("install: %w", ErrNotSupported)
	second := errors.New("rollback broke")
	third := errors.New("cleanup broke")

	chain := FollowedBy(FollowedBy(first, second), third)
	msg := chain.Error()
	want := "install: not supported; followed by: rollback broke; followed by: cleanup broke"
	if msg != want {
		t.Errorf("got %q, want %q", msg, want)
	}

	//every link visible to errors.Is
	for _, link := range []error{first, second, third, ErrNotSupported} {
		if !errors.Is(chain, link) {
			t.Errorf("chain does not unwrap to %v", link)
		}
	}
}
