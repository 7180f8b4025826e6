// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config holds the daemon's runtime settings: the IPC listen
// address, the user's channel-name override dictionary (layered on top
// of package normalize's built-in vendor dictionary), display-unit
// preferences and a preview length. The last two are loaded and validated
// but not read by any other package.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/speedtrace/logcore/pkg/log"
)

// ProgramConfig is the full set of daemon settings, loadable from a JSON
// file and validated against configSchema before being applied.
type ProgramConfig struct {
	// Addr is the TCP loopback address the IPC command plane listens on
	// (spec.md §4.13), e.g. "127.0.0.1:52384".
	Addr string `json:"addr"`

	// ChannelOverrides maps a raw (or already path-stripped) vendor
	// channel name to the canonical display name a user prefers,
	// overriding package normalize's built-in dictionary.
	ChannelOverrides map[string]string `json:"channel-overrides"`

	// UnitPreferences maps a canonical unit string (as produced by a
	// decoder, e.g. "K", "kPa", "km/h") to a display-unit symbol (e.g. "C",
	// "PSI", "mph"). Nothing reads it: GetChannelData takes its display
	// unit from the request.
	UnitPreferences map[string]string `json:"unit-preferences"`

	// MaxPreviewRecords is a preview length for formula evaluation. Nothing
	// reads it: EvaluateFormula takes its preview length from the request.
	MaxPreviewRecords int `json:"max-preview-records"`
}

// Keys is the process-wide configuration, populated by Init and read
// thereafter without further locking (it is written once at startup).
var Keys = ProgramConfig{
	Addr:              "127.0.0.1:52384",
	ChannelOverrides:  map[string]string{},
	UnitPreferences:   map[string]string{},
	MaxPreviewRecords: 200,
}

// Init loads flagConfigFile, if present, validates it against
// configSchema and decodes it on top of the defaults in Keys. A missing
// file is not an error: the daemon runs with defaults.
func Init(flagConfigFile string) {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatal(err)
		}
		return
	}

	Validate(configSchema, raw)

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		log.Fatal(err)
	}
}
