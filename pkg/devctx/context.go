// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

//Package devctx owns the device-wide persistent store and the durable record
//of what artifact is currently installed (the "provenance": name, group, and
//the provides map). Provenance changes only through CommitArtifactData, which
//also runs a caller-supplied mutation in the same write transaction - callers
//use that to retire in-progress update state with no window in which the two
//disagree.
package devctx

import (
	"encoding/json"
	"errors"
	"fmt"
	fp "path/filepath"
	"strings"

	"github.com/Granjow/mender/pkg/erro"
	futil "github.com/Granjow/mender/pkg/fileutil"
	"github.com/Granjow/mender/pkg/log"
	"github.com/Granjow/mender/pkg/store"
)

//store keys
const (
	ArtifactNameKey     = "artifact-name"
	ArtifactGroupKey    = "artifact-group"
	ArtifactProvidesKey = "artifact-provides"
	StandaloneStateKey  = "standalone-state"

	authTokenKey                 = "authtoken"
	authTokenCacheInvalidatorKey = "auth-token-cache-invalidator"
)

//appended to artifact-name when an install failed on a device that could not
//roll back, so later operations can detect the condition
const BrokenArtifactSuffix = "_INCONSISTENT"

//name of the store file inside Config.DataStore
const storeName = "mender-store"

//record present but violating schema (empty artifact name, empty payload
//list, ...)
var ErrDatabaseValue = errors.New("invalid database value")

//commit or rollback invoked with no update in progress
var ErrNoUpdateInProgress = errors.New("no update in progress")

//ProvidesData is the flat view of committed provenance: artifact_name,
//artifact_group, and every key of the stored provides map. Empty values are
//omitted.
type ProvidesData map[string]string

// Context holds the open device store plus configuration. One Context exists
// per process; exactly one process may hold the store open at a time
// (enforced by the store's file lock).
type Context struct {
	Config Config
	db     store.KeyValueDatabase
}

// Open opens (creating if absent) the device store under cfg.DataStore and
// removes auth tokens left over from a previous managed-mode run. Absence of
// those keys is not an error; any other removal failure is. Idempotent.
func Open(cfg Config) (*Context, error) {
	db, err := store.Open(fp.Join(cfg.DataStore, storeName))
	if err != nil {
		return nil, err
	}
	ctx := &Context{Config: cfg, db: db}
	for _, key := range []string{authTokenKey, authTokenCacheInvalidatorKey} {
		err = db.Remove(key)
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			db.Close()
			return nil, err
		}
	}
	return ctx, nil
}

// OpenWith wraps an already-open store, for tests and embedders that manage
// the store themselves. Performs the same auth-token cleanup as Open.
func OpenWith(cfg Config, db store.KeyValueDatabase) (*Context, error) {
	ctx := &Context{Config: cfg, db: db}
	for _, key := range []string{authTokenKey, authTokenCacheInvalidatorKey} {
		err := db.Remove(key)
		if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
			return nil, err
		}
	}
	return ctx, nil
}

//Store returns the device store.
func (c *Context) Store() store.KeyValueDatabase { return c.db }

func (c *Context) Close() error { return c.db.Close() }

//reads key inside txn; absent keys yield ""
func readString(txn store.Transaction, key string) (string, error) {
	val, err := txn.Read(key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(val), nil
}

// LoadProvides reads committed provenance in one read transaction and
// returns it as a flat map. Missing keys are tolerated; with no artifact name
// stored the map is empty. A provides entry that is not valid JSON, or whose
// values are not all strings, is an error.
func (c *Context) LoadProvides() (ProvidesData, error) {
	var name, group, providesStr string
	err := c.db.ReadTransaction(func(txn store.Transaction) error {
		var err error
		if name, err = readString(txn, ArtifactNameKey); err != nil {
			return err
		}
		if group, err = readString(txn, ArtifactGroupKey); err != nil {
			return err
		}
		providesStr, err = readString(txn, ArtifactProvidesKey)
		return err
	})
	if err != nil {
		return nil, err
	}

	ret := ProvidesData{}
	if name == "" {
		//no artifact name stored: empty map, whatever else is there
		return ret, nil
	}
	ret["artifact_name"] = name
	if group != "" {
		ret["artifact_group"] = group
	}
	if providesStr == "" {
		//nothing more to do
		return ret, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(providesStr), &raw); err != nil {
		return nil, fmt.Errorf("deserializing %s: %w", ArtifactProvidesKey, err)
	}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("%w: non-string data in provides under %q", erro.ErrWrongType, k)
		}
		ret[k] = s
	}
	return ret, nil
}

// CommitArtifactData atomically replaces committed provenance with that of a
// newly accepted artifact. In a single write transaction it removes existing
// provides entries matching any clearsProvides pattern, writes the new name,
// group and provides, and finally runs aux. Either everything commits or
// nothing does.
func (c *Context) CommitArtifactData(name, group string, provides map[string]string, clearsProvides []string, aux func(store.Transaction) error) error {
	return c.db.WriteTransaction(func(txn store.Transaction) error {
		existingStr, err := readString(txn, ArtifactProvidesKey)
		if err != nil {
			return err
		}
		existing := map[string]string{}
		if existingStr != "" {
			if err = json.Unmarshal([]byte(existingStr), &existing); err != nil {
				//a corrupt provides entry must not wedge commits forever
				log.Logf("discarding unreadable %s: %s", ArtifactProvidesKey, err)
				existing = map[string]string{}
			}
		}

		merged := map[string]string{}
		for k, v := range existing {
			if !matchesAny(k, clearsProvides) {
				merged[k] = v
			}
		}
		for k, v := range provides {
			merged[k] = v
		}

		if err = txn.Write(ArtifactNameKey, []byte(name)); err != nil {
			return err
		}
		if err = txn.Write(ArtifactGroupKey, []byte(group)); err != nil {
			return err
		}
		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		if err = txn.Write(ArtifactProvidesKey, data); err != nil {
			return err
		}
		if aux != nil {
			return aux(txn)
		}
		return nil
	})
}

// ProvidesMatches reports whether the provides key matches the
// clears-provides pattern. The only metacharacter is '*', matching any run
// of characters (including none).
func ProvidesMatches(key, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return key == pattern
	}
	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(key, part)
		if idx < 0 {
			return false
		}
		key = key[idx+len(part):]
	}
	return strings.HasSuffix(key, parts[len(parts)-1])
}

func matchesAny(key string, patterns []string) bool {
	for _, p := range patterns {
		if ProvidesMatches(key, p) {
			return true
		}
	}
	return false
}

// DeviceType reads the device type from the device_type file
// (`device_type=<name>` format). Missing file yields "".
func (c *Context) DeviceType() string {
	if c.Config.DeviceTypeFile == "" || !futil.Exists(c.Config.DeviceTypeFile) {
		return ""
	}
	lines, err := futil.ReadConfigLines(c.Config.DeviceTypeFile, 10)
	if err != nil {
		log.Logf("reading %s: %s", c.Config.DeviceTypeFile, err)
		return ""
	}
	for _, l := range lines {
		if strings.HasPrefix(l, "device_type=") {
			return strings.TrimPrefix(l, "device_type=")
		}
	}
	return ""
}
