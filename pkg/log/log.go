// Copyright (C) NREL. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package log provides leveled logging for the torc-service core and its
// ambient collaborators (REST handlers, migrations, background workers).
//
// Time/Date are omitted by default because systemd adds them for us; pass
// --logdate to re-enable. Uses the syslog-style priority prefixes described
// in https://www.freedesktop.org/software/systemd/man/sd-daemon.html.
package log

import (
	"fmt"
	"io"
	"os"
	stdlog "log"
)

var logDateTime bool

var (
	DebugWriter io.Writer = os.Stderr
	InfoWriter  io.Writer = os.Stderr
	WarnWriter  io.Writer = os.Stderr
	ErrWriter   io.Writer = os.Stderr
)

var (
	DebugPrefix string = "<7>[DEBUG]   "
	InfoPrefix  string = "<6>[INFO]    "
	WarnPrefix  string = "<4>[WARNING] "
	ErrPrefix   string = "<3>[ERROR]   "
)

var (
	DebugLog *stdlog.Logger = stdlog.New(DebugWriter, DebugPrefix, 0)
	InfoLog  *stdlog.Logger = stdlog.New(InfoWriter, InfoPrefix, 0)
	WarnLog  *stdlog.Logger = stdlog.New(WarnWriter, WarnPrefix, stdlog.Lshortfile)
	ErrLog   *stdlog.Logger = stdlog.New(ErrWriter, ErrPrefix, stdlog.Llongfile)

	DebugTimeLog *stdlog.Logger = stdlog.New(DebugWriter, DebugPrefix, stdlog.LstdFlags)
	InfoTimeLog  *stdlog.Logger = stdlog.New(InfoWriter, InfoPrefix, stdlog.LstdFlags)
	WarnTimeLog  *stdlog.Logger = stdlog.New(WarnWriter, WarnPrefix, stdlog.LstdFlags|stdlog.Lshortfile)
	ErrTimeLog   *stdlog.Logger = stdlog.New(ErrWriter, ErrPrefix, stdlog.LstdFlags|stdlog.Llongfile)
)

// SetLevel discards writers below lvl. Valid values (low to high verbosity):
// "err", "warn", "info", "debug".
func SetLevel(lvl string) {
	switch lvl {
	case "err", "fatal":
		WarnWriter = io.Discard
		fallthrough
	case "warn":
		InfoWriter = io.Discard
		fallthrough
	case "info":
		DebugWriter = io.Discard
	case "debug":
	default:
		fmt.Fprintf(os.Stderr, "pkg/log: invalid loglevel %q, using 'info'\n", lvl)
		SetLevel("info")
	}
}

func SetLogDateTime(logdate bool) { logDateTime = logdate }

func Debug(v ...interface{}) { emit(DebugWriter, DebugLog, DebugTimeLog, fmt.Sprint(v...)) }
func Info(v ...interface{})  { emit(InfoWriter, InfoLog, InfoTimeLog, fmt.Sprint(v...)) }
func Warn(v ...interface{})  { emit(WarnWriter, WarnLog, WarnTimeLog, fmt.Sprint(v...)) }
func Error(v ...interface{}) { emit(ErrWriter, ErrLog, ErrTimeLog, fmt.Sprint(v...)) }

func Debugf(format string, v ...interface{}) { emit(DebugWriter, DebugLog, DebugTimeLog, fmt.Sprintf(format, v...)) }
func Infof(format string, v ...interface{})  { emit(InfoWriter, InfoLog, InfoTimeLog, fmt.Sprintf(format, v...)) }
func Warnf(format string, v ...interface{})  { emit(WarnWriter, WarnLog, WarnTimeLog, fmt.Sprintf(format, v...)) }
func Errorf(format string, v ...interface{}) { emit(ErrWriter, ErrLog, ErrTimeLog, fmt.Sprintf(format, v...)) }

// Fatal logs at error level and terminates the process.
func Fatal(v ...interface{}) {
	Error(v...)
	os.Exit(1)
}

func Fatalf(format string, v ...interface{}) {
	Errorf(format, v...)
	os.Exit(1)
}

func emit(w io.Writer, plain, timed *stdlog.Logger, msg string) {
	if w == io.Discard {
		return
	}
	if logDateTime {
		timed.Output(3, msg)
	} else {
		plain.Output(3, msg)
	}
}
