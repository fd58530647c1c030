package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"io/ioutil"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/sisatech/toml"
)

type vblockConf struct {
	Devices []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"device"`
}

// loadConf reads ~/.vblock/conf.toml. A missing file is not an error;
// it just means no devices are pre-configured.
func loadConf() (*vblockConf, error) {

	home, err := homedir.Dir()
	if err != nil {
		return nil, err
	}

	conf := filepath.Join(home, ".vblock", "conf.toml")

	data, err := ioutil.ReadFile(conf)
	if err != nil {
		return new(vblockConf), nil
	}

	c := new(vblockConf)
	err = toml.Unmarshal(data, c)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// attachConfiguredDevices registers every device listed in the config
// file before command dispatch. Individual failures are reported and
// skipped so that one bad path doesn't take down the rest.
func attachConfiguredDevices() {

	c, err := loadConf()
	if err != nil {
		log.Warnf("loading configuration: %v", err)
		return
	}

	for _, d := range c.Devices {
		f, err := openBacking(d.Path)
		if err != nil {
			log.Warnf("attaching configured device '%s': %v", d.Name, err)
			continue
		}
		err = registry.AddOrReplace(d.Name, f)
		if err != nil {
			log.Warnf("attaching configured device '%s': %v", d.Name, err)
		}
	}
}
