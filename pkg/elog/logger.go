package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// View is the logging interface handed around the codebase. It hides
// the logging backend so that packages never import it directly.
type View interface {
	Debugf(format string, x ...interface{})
	Infof(format string, x ...interface{})
	Warnf(format string, x ...interface{})
	Errorf(format string, x ...interface{})
	IsDebug() bool
	IsVerbose() bool
}

var (
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	faint  = color.New(color.Faint)
)

// CLI is a View for command-line programs, layered over logrus. It
// doubles as a logrus.Formatter that keeps terminal output free of
// timestamps and field noise.
type CLI struct {
	DisableTTY  bool
	DebugFlag   bool
	VerboseFlag bool
}

// Format implements logrus.Formatter.
func (log *CLI) Format(entry *logrus.Entry) ([]byte, error) {

	useColor := !log.DisableTTY && isatty.IsTerminal(os.Stdout.Fd())

	msg := entry.Message
	if useColor {
		switch entry.Level {
		case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
			msg = red.Sprint(msg)
		case logrus.WarnLevel:
			msg = yellow.Sprint(msg)
		case logrus.DebugLevel, logrus.TraceLevel:
			msg = faint.Sprint(msg)
		}
	}

	return []byte(fmt.Sprintf("%s\n", msg)), nil
}

func (log *CLI) IsDebug() bool {
	return log.DebugFlag
}

func (log *CLI) IsVerbose() bool {
	return log.VerboseFlag || log.DebugFlag
}

func (log *CLI) Debugf(format string, x ...interface{}) {
	if !log.IsDebug() {
		return
	}
	logrus.Debugf(format, x...)
}

func (log *CLI) Infof(format string, x ...interface{}) {
	if !log.IsVerbose() {
		return
	}
	logrus.Infof(format, x...)
}

func (log *CLI) Warnf(format string, x ...interface{}) {
	logrus.Warnf(format, x...)
}

func (log *CLI) Errorf(format string, x ...interface{}) {
	logrus.Errorf(format, x...)
}

// Discard is a View that silences everything. It keeps logging
// optional in library code without nil checks at every call site.
var Discard View = discard{}

type discard struct{}

func (discard) Debugf(format string, x ...interface{}) {}
func (discard) Infof(format string, x ...interface{})  {}
func (discard) Warnf(format string, x ...interface{})  {}
func (discard) Errorf(format string, x ...interface{}) {}
func (discard) IsDebug() bool                          { return false }
func (discard) IsVerbose() bool                        { return false }
