// Copyright (C) 2023-2024 the Mender-Go Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package devctx

import (
	"encoding/json"
	"os"
	fp "path/filepath"

	"github.com/Granjow/mender/pkg/log"
)

// Config holds the filesystem layout of the update client. Zero values are
// filled in with defaults by Defaults(); LoadConfig reads overrides from a
// JSON config file.
type Config struct {
	//directory holding the store, module work trees and bootstrap artifact
	DataStore string
	//directory holding update module executables
	ModulesPath string
	//root of per-update module work trees
	ModulesWorkPath string
	//where artifact state scripts are extracted during parse
	ArtifactScriptsPath string
	//file with a `device_type=...` line
	DeviceTypeFile string
}

const (
	defaultDataStore   = "/var/lib/mender"
	defaultModulesPath = "/usr/share/mender/modules/v3"
)

//fill in any unset paths
func (c Config) Defaults() Config {
	if c.DataStore == "" {
		c.DataStore = defaultDataStore
	}
	if c.ModulesPath == "" {
		c.ModulesPath = defaultModulesPath
	}
	if c.ModulesWorkPath == "" {
		c.ModulesWorkPath = fp.Join(c.DataStore, "modules", "v3")
	}
	if c.ArtifactScriptsPath == "" {
		c.ArtifactScriptsPath = fp.Join(c.DataStore, "scripts")
	}
	if c.DeviceTypeFile == "" {
		c.DeviceTypeFile = fp.Join(c.DataStore, "device_type")
	}
	return c
}

// LoadConfig reads a JSON config file and returns the resulting Config with
// defaults applied. A missing file is not an error; the defaults are used.
func LoadConfig(path string) (Config, error) {
	var c Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err = json.Unmarshal(data, &c); err != nil {
				return c, err
			}
		} else if !os.IsNotExist(err) {
			return c, err
		} else {
			log.Logf("no config at %s, using defaults", path)
		}
	}
	return c.Defaults(), nil
}

//path of the bootstrap artifact, installed on first boot if present
func (c Config) BootstrapArtifactFile() string {
	return fp.Join(c.DataStore, "bootstrap.mender")
}
