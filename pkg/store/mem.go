// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package store

// In-memory implementation, for tests and for platforms without persistent
// storage. Write transactions buffer mutations and apply them only when the
// transaction function succeeds, so rollback semantics match the durable
// engine.
type memDB struct {
	m map[string][]byte
}

var _ KeyValueDatabase = (*memDB)(nil)

//NewMemStore returns an empty in-memory KeyValueDatabase.
func NewMemStore() KeyValueDatabase {
	return &memDB{m: make(map[string][]byte)}
}

type memTxn struct {
	base     map[string][]byte
	writes   map[string][]byte //nil value = pending delete
	writable bool
}

var _ Transaction = (*memTxn)(nil)

func (t *memTxn) Read(key string) ([]byte, error) {
	if t.writes != nil {
		if v, ok := t.writes[key]; ok {
			if v == nil {
				return nil, notFound(key)
			}
			return append([]byte(nil), v...), nil
		}
	}
	v, ok := t.base[key]
	if !ok {
		return nil, notFound(key)
	}
	return append([]byte(nil), v...), nil
}

func (t *memTxn) Write(key string, value []byte) error {
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

func (t *memTxn) Remove(key string) error {
	if _, err := t.Read(key); err != nil {
		return err
	}
	t.writes[key] = nil
	return nil
}

func (d *memDB) ReadTransaction(fn func(Transaction) error) error {
	return fn(&memTxn{base: d.m})
}

func (d *memDB) WriteTransaction(fn func(Transaction) error) error {
	txn := &memTxn{base: d.m, writes: make(map[string][]byte), writable: true}
	err := fn(txn)
	if err != nil {
		return err
	}
	for k, v := range txn.writes {
		if v == nil {
			delete(d.m, k)
		} else {
			d.m[k] = v
		}
	}
	return nil
}

func (d *memDB) Read(key string) (val []byte, err error) {
	err = d.ReadTransaction(func(txn Transaction) error {
		var err error
		val, err = txn.Read(key)
		return err
	})
	return
}

func (d *memDB) Write(key string, value []byte) error {
	return d.WriteTransaction(func(txn Transaction) error {
		return txn.Write(key, value)
	})
}

func (d *memDB) Remove(key string) error {
	return d.WriteTransaction(func(txn Transaction) error {
		return txn.Remove(key)
	})
}

func (d *memDB) Close() error { return nil }
