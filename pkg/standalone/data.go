// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package standalone

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Granjow/mender/pkg/artifact"
	"github.com/Granjow/mender/pkg/devctx"
	"github.com/Granjow/mender/pkg/erro"
	"github.com/Granjow/mender/pkg/store"
)

//version of the serialized record; anything else was written by an
//incompatible client
const DataVersion = 1

//field keys of the serialized record
const (
	keyVersion        = "Version"
	keyArtifactName   = "ArtifactName"
	keyArtifactGroup  = "ArtifactGroup"
	keyProvides       = "ArtifactTypeInfoProvides"
	keyClearsProvides = "ArtifactClearsProvides"
	keyPayloadTypes   = "PayloadTypes"
)

// StandaloneData is the durable record of an in-progress update. It exists
// in the store exactly while an update is mid-flight; PayloadTypes[0] names
// the update module that must service every subsequent commit or rollback.
type StandaloneData struct {
	Version                int
	ArtifactName           string
	ArtifactGroup          string
	ArtifactProvides       map[string]string
	ArtifactClearsProvides []string
	PayloadTypes           []string
}

//serialization schema; field order is the canonical key order on save
type dataRecord struct {
	Version                int               `json:"Version"`
	ArtifactName           string            `json:"ArtifactName"`
	ArtifactGroup          string            `json:"ArtifactGroup"`
	PayloadTypes           []string          `json:"PayloadTypes"`
	ArtifactProvides       map[string]string `json:"ArtifactTypeInfoProvides,omitempty"`
	ArtifactClearsProvides []string          `json:"ArtifactClearsProvides,omitempty"`
}

func getString(obj map[string]json.RawMessage, key string, missingOK bool) (string, error) {
	raw, ok := obj[key]
	if !ok {
		if missingOK {
			return "", nil
		}
		return "", fmt.Errorf("%w: could not get `%s` from state data", erro.ErrKeyMissing, key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: `%s` in state data", erro.ErrWrongType, key)
	}
	return s, nil
}

func getInt(obj map[string]json.RawMessage, key string) (int, error) {
	raw, ok := obj[key]
	if !ok {
		return 0, fmt.Errorf("%w: could not get `%s` from state data", erro.ErrKeyMissing, key)
	}
	var i int
	if err := json.Unmarshal(raw, &i); err != nil {
		return 0, fmt.Errorf("%w: `%s` in state data", erro.ErrWrongType, key)
	}
	return i, nil
}

func getStringSlice(obj map[string]json.RawMessage, key string, missingOK bool) ([]string, error) {
	raw, ok := obj[key]
	if !ok {
		if missingOK {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: could not get `%s` from state data", erro.ErrKeyMissing, key)
	}
	var v []string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: `%s` in state data", erro.ErrWrongType, key)
	}
	return v, nil
}

func getStringMap(obj map[string]json.RawMessage, key string, missingOK bool) (map[string]string, error) {
	raw, ok := obj[key]
	if !ok {
		if missingOK {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: could not get `%s` from state data", erro.ErrKeyMissing, key)
	}
	var v map[string]string
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: `%s` in state data", erro.ErrWrongType, key)
	}
	return v, nil
}

// LoadStandaloneData reads the in-progress record. An absent key means no
// update is in progress (inProgress false, no error). A present record is
// validated: version must equal DataVersion, artifact name must be
// non-empty, and there must be exactly one payload type.
func LoadStandaloneData(db store.KeyValueDatabase) (data *StandaloneData, inProgress bool, err error) {
	raw, err := db.Read(devctx.StandaloneStateKey)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var obj map[string]json.RawMessage
	if err = json.Unmarshal(raw, &obj); err != nil {
		return nil, false, fmt.Errorf("deserializing state data: %w", err)
	}

	d := &StandaloneData{}
	if d.Version, err = getInt(obj, keyVersion); err != nil {
		return nil, false, err
	}
	if d.ArtifactName, err = getString(obj, keyArtifactName, false); err != nil {
		return nil, false, err
	}
	if d.ArtifactGroup, err = getString(obj, keyArtifactGroup, true); err != nil {
		return nil, false, err
	}
	if d.ArtifactProvides, err = getStringMap(obj, keyProvides, true); err != nil {
		return nil, false, err
	}
	if d.ArtifactClearsProvides, err = getStringSlice(obj, keyClearsProvides, true); err != nil {
		return nil, false, err
	}
	if d.PayloadTypes, err = getStringSlice(obj, keyPayloadTypes, false); err != nil {
		return nil, false, err
	}

	if d.Version != DataVersion {
		return nil, false, fmt.Errorf(
			"%w: state data has a version which is not supported by this client",
			erro.ErrNotSupported)
	}
	if d.ArtifactName == "" {
		return nil, false, fmt.Errorf("%w: `%s` is empty", devctx.ErrDatabaseValue, keyArtifactName)
	}
	if len(d.PayloadTypes) == 0 {
		return nil, false, fmt.Errorf("%w: `%s` is empty", devctx.ErrDatabaseValue, keyPayloadTypes)
	}
	if len(d.PayloadTypes) >= 2 {
		return nil, false, fmt.Errorf(
			"%w: `%s` contains multiple payloads", erro.ErrNotSupported, keyPayloadTypes)
	}

	return d, true, nil
}

// SaveStandaloneData serializes data and writes it under the standalone
// state key. Not atomic with any other store mutation.
func SaveStandaloneData(db store.KeyValueDatabase, data *StandaloneData) error {
	rec := dataRecord{
		Version:                data.Version,
		ArtifactName:           data.ArtifactName,
		ArtifactGroup:          data.ArtifactGroup,
		PayloadTypes:           data.PayloadTypes,
		ArtifactProvides:       data.ArtifactProvides,
		ArtifactClearsProvides: data.ArtifactClearsProvides,
	}
	raw, err := json.Marshal(&rec)
	if err != nil {
		return err
	}
	return db.Write(devctx.StandaloneStateKey, raw)
}

// RemoveStandaloneData deletes the record. Removing an absent record is an
// error; callers only remove when they believe an update is in progress.
func RemoveStandaloneData(db store.KeyValueDatabase) error {
	return db.Remove(devctx.StandaloneStateKey)
}

//build the record for a freshly parsed artifact
func dataFromPayloadHeaderView(header artifact.PayloadHeaderView) *StandaloneData {
	h := header.Header
	return &StandaloneData{
		Version:                DataVersion,
		ArtifactName:           h.ArtifactName,
		ArtifactGroup:          h.ArtifactGroup,
		ArtifactProvides:       h.TypeInfo.Provides,
		ArtifactClearsProvides: h.TypeInfo.ClearsProvides,
		PayloadTypes:           []string{h.PayloadType},
	}
}
