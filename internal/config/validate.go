// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/speedtrace/logcore/pkg/log"
)

// Validate checks instance against the given JSON schema, fatally exiting
// the process on a malformed schema or a validation failure, matching the
// startup-time fail-fast behaviour of the rest of the daemon's config
// loading.
func Validate(schema string, instance json.RawMessage) {
	sch, err := jsonschema.CompileString("schema.json", schema)
	if err != nil {
		log.Fatalf("%#v", err)
	}

	var v any
	if err := json.Unmarshal(instance, &v); err != nil {
		log.Fatal(err)
	}

	if err := sch.Validate(v); err != nil {
		log.Fatalf("%#v", err)
	}
}
