// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package store

import (
	"bytes"
	"errors"
	"fmt"
	fp "path/filepath"
	"testing"
)

func engines(t *testing.T) map[string]KeyValueDatabase {
	t.Helper()
	db, err := Open(fp.Join(t.TempDir(), "test-store"))
	if err != nil {
		t.Fatalf("opening bolt store: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return map[string]KeyValueDatabase{
		"bolt": db,
		"mem":  NewMemStore(),
	}
}

func TestReadWriteRemove(t *testing.T) {
	for name, db := range engines(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := db.Read("missing"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("expected ErrKeyNotFound, got %v", err)
			}
			if err := db.Write("k", []byte("v")); err != nil {
				t.Fatalf("write: %s", err)
			}
			v, err := db.Read("k")
			if err != nil || !bytes.Equal(v, []byte("v")) {
				t.Errorf("read: %q, %v", v, err)
			}
			if err = db.Remove("k"); err != nil {
				t.Errorf("remove: %s", err)
			}
			if err = db.Remove("k"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("second remove: expected ErrKeyNotFound, got %v", err)
			}
		})
	}
}

func TestWriteTransactionAtomicity(t *testing.T) {
	for name, db := range engines(t) {
		t.Run(name, func(t *testing.T) {
			if err := db.Write("a", []byte("old")); err != nil {
				t.Fatal(err)
			}
			//a failing transaction must leave no trace
			err := db.WriteTransaction(func(txn Transaction) error {
				if err := txn.Write("a", []byte("new")); err != nil {
					return err
				}
				if err := txn.Write("b", []byte("added")); err != nil {
					return err
				}
				return fmt.Errorf("abort")
			})
			if err == nil {
				t.Fatal("transaction error not propagated")
			}
			v, err := db.Read("a")
			if err != nil || string(v) != "old" {
				t.Errorf("a modified by aborted txn: %q, %v", v, err)
			}
			if _, err = db.Read("b"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("b leaked from aborted txn: %v", err)
			}

			//a successful transaction applies everything
			err = db.WriteTransaction(func(txn Transaction) error {
				if err := txn.Write("a", []byte("new")); err != nil {
					return err
				}
				return txn.Remove("a")
			})
			if err != nil {
				t.Fatalf("txn: %s", err)
			}
			if _, err = db.Read("a"); !errors.Is(err, ErrKeyNotFound) {
				t.Errorf("a should be gone: %v", err)
			}
		})
	}
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	for name, db := range engines(t) {
		t.Run(name, func(t *testing.T) {
			err := db.WriteTransaction(func(txn Transaction) error {
				if err := txn.Write("x", []byte("1")); err != nil {
					return err
				}
				v, err := txn.Read("x")
				if err != nil {
					return err
				}
				if string(v) != "1" {
					return fmt.Errorf("read own write: got %q", v)
				}
				return nil
			})
			if err != nil {
				t.Error(err)
			}
		})
	}
}

func TestReopenPersists(t *testing.T) {
	path := fp.Join(t.TempDir(), "test-store")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err = db.Write("persist", []byte("yes")); err != nil {
		t.Fatal(err)
	}
	if err = db.Close(); err != nil {
		t.Fatal(err)
	}
	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	v, err := db.Read("persist")
	if err != nil || string(v) != "yes" {
		t.Errorf("value lost across reopen: %q, %v", v, err)
	}
}
