// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package store is the durable key-value database backing the update client.
//All device-wide state - installed artifact provenance, in-progress update
//records - lives in one store, so that related keys can change atomically in
//a single write transaction.
package store

import (
	"errors"
	"fmt"
)

//returned for reads/removes of keys that are not in the store. Distinguished
//because several callers treat "not there" as a normal condition rather than
//a fault.
var ErrKeyNotFound = errors.New("key not found in database")

// Transaction is a consistent view of the store. Writes made through a
// transaction become visible (and durable) only when the enclosing
// WriteTransaction commits.
type Transaction interface {
	//Read returns the value for key, or an error wrapping ErrKeyNotFound.
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	//Remove deletes key. Removing an absent key is an error wrapping
	//ErrKeyNotFound.
	Remove(key string) error
}

// KeyValueDatabase is a transactional string -> bytes store. The convenience
// methods Read/Write/Remove each run in their own transaction.
type KeyValueDatabase interface {
	Read(key string) ([]byte, error)
	Write(key string, value []byte) error
	Remove(key string) error

	//ReadTransaction runs fn with a read-only view. An error from fn is
	//returned unchanged.
	ReadTransaction(fn func(Transaction) error) error
	//WriteTransaction runs fn with a writable view. All writes commit if fn
	//returns nil; none do otherwise.
	WriteTransaction(fn func(Transaction) error) error

	Close() error
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrKeyNotFound, key)
}
