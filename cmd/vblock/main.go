package main

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vorteil/vblock/pkg/disk"
	"github.com/vorteil/vblock/pkg/elog"
	"github.com/vorteil/vblock/pkg/vdev"
)

var (
	logger             = &elog.CLI{}
	log      elog.View = logger
	registry *vdev.Registry
	driver   *vdev.Driver
)

func init() {
	logrus.SetFormatter(logger)
	logrus.SetLevel(logrus.TraceLevel)

	registry = vdev.NewRegistry(log)
	driver = vdev.NewDriver(registry, log)
}

func main() {

	err := disk.RegisterDriver(driver)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	defer disk.UnregisterDriver(driver)
	defer registry.Close()

	commandInit()

	err = rootCmd.Execute()
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}
