// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ipcserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/speedtrace/logcore/internal/decode/aim"
	"github.com/speedtrace/logcore/internal/decode/ecumaster"
	"github.com/speedtrace/logcore/internal/decode/emerald"
	"github.com/speedtrace/logcore/internal/decode/haltech"
	"github.com/speedtrace/logcore/internal/decode/link"
	"github.com/speedtrace/logcore/internal/decode/locomotive"
	"github.com/speedtrace/logcore/internal/decode/romraider"
	"github.com/speedtrace/logcore/internal/decode/speeduino"
	"github.com/speedtrace/logcore/internal/detect"
	"github.com/speedtrace/logcore/internal/normalize"
	"github.com/speedtrace/logcore/pkg/logmodel"
)

// loadFile runs the full detect -> decode -> normalise pipeline (spec.md
// §2's data-flow summary) for a single path, returning a ready-to-query
// Log. Channel names are rewritten through norm before the Log is handed
// back, so every downstream command sees canonical names only.
func loadFile(ctx context.Context, path string, norm *normalize.Normalizer) (*logmodel.Log, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ipcserver: stat %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ipcserver: read %s: %w", path, err)
	}

	prefix := data
	if len(prefix) > detect.PrefixBudget {
		prefix = prefix[:detect.PrefixBudget]
	}
	format := detect.Detect(path, info.Size(), prefix)

	var log *logmodel.Log
	switch format {
	case detect.Haltech:
		log, err = haltech.Decode(data)
	case detect.ECUMaster:
		log, err = ecumaster.Decode(data)
	case detect.RomRaider:
		log, err = romraider.Decode(data)
	case detect.Locomotive:
		log, err = locomotive.Decode(ctx, data)
	case detect.Speeduino:
		log, err = speeduino.Decode(data)
	case detect.Link:
		log, err = link.Decode(data)
	case detect.AIM:
		log, err = aim.Decode(data)
	case detect.Emerald:
		var lg1, lg2 []byte
		lg1, lg2, err = readEmeraldPair(path, data)
		if err == nil {
			log, err = emerald.Decode(lg1, lg2)
		}
	default:
		return nil, fmt.Errorf("ipcserver: %s: unrecognised format", path)
	}
	if err != nil {
		return nil, err
	}

	for i := range log.Channels {
		log.Channels[i].Name = norm.Normalize(log.Channels[i].Name)
	}
	names := make([]string, len(log.Channels))
	for i, c := range log.Channels {
		names[i] = c.Name
	}
	dedup := logmodel.DeduplicateNames(names)
	for i := range log.Channels {
		log.Channels[i].Name = dedup[i]
	}

	return log, nil
}

// readEmeraldPair resolves the companion file for whichever half of the
// Emerald .lg1/.lg2 pair was named, failing with a message naming the
// missing sibling (spec.md §7, "Companion file missing").
func readEmeraldPair(path string, data []byte) (lg1, lg2 []byte, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	base := strings.TrimSuffix(path, filepath.Ext(path))

	switch ext {
	case ".lg1":
		lg1 = data
		lg2Path := base + ".lg2"
		lg2, err = os.ReadFile(lg2Path)
		if err != nil {
			return nil, nil, fmt.Errorf("ipcserver: companion file missing: %s", lg2Path)
		}
	case ".lg2":
		lg2 = data
		lg1Path := base + ".lg1"
		lg1, err = os.ReadFile(lg1Path)
		if err != nil {
			return nil, nil, fmt.Errorf("ipcserver: companion file missing: %s", lg1Path)
		}
	default:
		return nil, nil, fmt.Errorf("ipcserver: %s: not an emerald file", path)
	}
	return lg1, lg2, nil
}
