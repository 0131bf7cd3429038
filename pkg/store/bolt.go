// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package store

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

//all keys live in a single bucket
var bucketName = []byte("mender")

type boltDB struct {
	db *bolt.DB
}

var _ KeyValueDatabase = (*boltDB)(nil)

// Open opens (creating if absent) the store file at path. The file lock
// ensures a single process holds the store at a time; a second opener blocks
// briefly, then fails.
func Open(path string) (KeyValueDatabase, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &boltDB{db: db}, nil
}

type boltTxn struct {
	b        *bolt.Bucket
	writable bool
}

var _ Transaction = (*boltTxn)(nil)

func (t *boltTxn) Read(key string) ([]byte, error) {
	v := t.b.Get([]byte(key))
	if v == nil {
		return nil, notFound(key)
	}
	//value is only valid for the life of the bolt transaction
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (t *boltTxn) Write(key string, value []byte) error {
	return t.b.Put([]byte(key), value)
}

func (t *boltTxn) Remove(key string) error {
	if t.b.Get([]byte(key)) == nil {
		return notFound(key)
	}
	return t.b.Delete([]byte(key))
}

func (d *boltDB) ReadTransaction(fn func(Transaction) error) error {
	return d.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTxn{b: tx.Bucket(bucketName)})
	})
}

func (d *boltDB) WriteTransaction(fn func(Transaction) error) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTxn{b: tx.Bucket(bucketName), writable: true})
	})
}

func (d *boltDB) Read(key string) (val []byte, err error) {
	err = d.ReadTransaction(func(txn Transaction) error {
		var err error
		val, err = txn.Read(key)
		return err
	})
	return
}

func (d *boltDB) Write(key string, value []byte) error {
	return d.WriteTransaction(func(txn Transaction) error {
		return txn.Write(key, value)
	})
}

func (d *boltDB) Remove(key string) error {
	return d.WriteTransaction(func(txn Transaction) error {
		return txn.Remove(key)
	})
}

func (d *boltDB) Close() error { return d.db.Close() }
