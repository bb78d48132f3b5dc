// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Package xlog provides the leveled, key-value structured logger used
// throughout rv-pipe. Call sites pass a message followed by alternating
// key/value pairs, e.g.:
//
//	xlog.Info("validator armed", "policy_dir", dir, "regions", n)
//
// The package is a thin shim over logrus so the rest of the tree never
// imports logrus directly.
package xlog

import "github.com/sirupsen/logrus"

var root = logrus.New()

// SetLevel adjusts the minimum level that will be emitted. Valid values are
// "debug", "info", "warn", "error".
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	root.SetLevel(lvl)
}

func fields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		f[key] = kv[i+1]
	}
	return f
}

// Debug logs msg at debug level with alternating key/value pairs.
func Debug(msg string, kv ...interface{}) { root.WithFields(fields(kv)).Debug(msg) }

// Info logs msg at info level with alternating key/value pairs.
func Info(msg string, kv ...interface{}) { root.WithFields(fields(kv)).Info(msg) }

// Warn logs msg at warn level with alternating key/value pairs.
func Warn(msg string, kv ...interface{}) { root.WithFields(fields(kv)).Warn(msg) }

// Error logs msg at error level with alternating key/value pairs.
func Error(msg string, kv ...interface{}) { root.WithFields(fields(kv)).Error(msg) }
