// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

var configSchema = `
	{
  "type": "object",
  "properties": {
    "addr": {
      "description": "TCP loopback address the IPC command plane listens on (e.g. '127.0.0.1:52384').",
      "type": "string"
    },
    "channel-overrides": {
      "description": "Raw vendor channel name -> canonical display name, overriding the built-in dictionary.",
      "type": "object",
      "additionalProperties": {
        "type": "string"
      }
    },
    "unit-preferences": {
      "description": "Canonical unit string (as emitted by a decoder) -> preferred display unit symbol.",
      "type": "object",
      "additionalProperties": {
        "type": "string"
      }
    },
    "max-preview-records": {
      "description": "Upper bound on records evaluated for a computed-channel formula preview.",
      "type": "integer"
    }
  }
	}`
