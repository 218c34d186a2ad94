// Copyright 2022-2024 Sauce Labs Inc., all rights reserved.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package zerologadapter

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	flog "github.com/saucelabs/proxychain/log"
)

func TestLoggerInfofWritesJSONMessage(t *testing.T) {
	var buf bytes.Buffer
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	l := New(&flog.Config{File: f, Level: flog.InfoLevel, Mode: flog.JSONFormat})
	l.Infof("hello %s", "world")

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	buf.Write(data)

	var entry map[string]any
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "hello world", entry["message"])
}

func TestLoggerWithAddsFields(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()

	l := New(&flog.Config{File: f, Level: flog.InfoLevel, Mode: flog.JSONFormat})
	child := l.With("request_id", "abc123")
	child.Info("done")

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "abc123", entry["request_id"])
	assert.Equal(t, "done", entry["message"])
}

func TestFlogToZerologLevel(t *testing.T) {
	cases := map[flog.Level]string{
		flog.TraceLevel: "trace",
		flog.DebugLevel: "debug",
		flog.InfoLevel:  "info",
		flog.WarnLevel:  "warn",
		flog.ErrorLevel: "error",
		flog.FatalLevel: "fatal",
	}
	for level, want := range cases {
		assert.Equal(t, want, flogToZerologLevel(level).String())
	}
}
