// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package normalize implements the channel-name normaliser (spec.md
// §4.10): raw vendor channel names are path-stripped, then resolved
// against a user override dictionary and a built-in vendor dictionary,
// falling back to the identity mapping.
package normalize

import (
	"sort"
	"strings"
)

// builtinDictionary maps a lower-cased vendor channel name fragment to the
// canonical display name used across all eight decoders. Keys are vendor
// strings observed across Haltech, ECUMaster, RomRaider, Link, Speeduino,
// AIM and Emerald logs; entries accumulate as new vendor spellings turn up.
var builtinDictionary = map[string]string{
	"rpm":                  "RPM",
	"engine speed":         "RPM",
	"enginespeed":          "RPM",
	"tps":                  "Throttle Position",
	"throttle":             "Throttle Position",
	"throttle position":    "Throttle Position",
	"map":                  "Manifold Pressure",
	"manifold pressure":    "Manifold Pressure",
	"boost":                "Boost Pressure",
	"boost pressure":       "Boost Pressure",
	"boost target":         "Boost Target",
	"coolant temp":         "Coolant Temperature",
	"coolant temperature":  "Coolant Temperature",
	"ect":                  "Coolant Temperature",
	"iat":                  "Intake Air Temperature",
	"intake air temp":      "Intake Air Temperature",
	"air temp":             "Intake Air Temperature",
	"oil pressure":         "Oil Pressure",
	"oil temp":             "Oil Temperature",
	"oil temperature":      "Oil Temperature",
	"fuel pressure":        "Fuel Pressure",
	"fuel temp":            "Fuel Temperature",
	"afr":                  "Air/Fuel Ratio",
	"lambda":               "Lambda",
	"vehicle speed":        "Vehicle Speed",
	"speed":                "Vehicle Speed",
	"gear":                 "Gear",
	"battery":              "Battery Voltage",
	"battery voltage":      "Battery Voltage",
	"ignition advance":     "Ignition Advance",
	"ignition timing":      "Ignition Timing",
	"inj pulse width":      "Injector Pulse Width",
	"inj duty cycle":       "Injector Duty Cycle",
	"inj duty":             "Injector Duty Cycle",
	"exhaust temp":         "Exhaust Gas Temperature",
	"egt":                  "Exhaust Gas Temperature",
	"barometric pressure":  "Barometric Pressure",
	"baro":                 "Barometric Pressure",
	"wheel speed":          "Wheel Speed",
	"steering angle":       "Steering Angle",
	"lateral g":            "Lateral Acceleration",
	"longitudinal g":       "Longitudinal Acceleration",
	"brake pressure":       "Brake Pressure",
}

// priorityOrder places the most commonly surfaced channels first in UI
// channel lists; everything else sorts alphabetically after these.
var priorityOrder = []string{
	"RPM",
	"Throttle Position",
	"Manifold Pressure",
	"Boost Pressure",
	"Coolant Temperature",
	"Intake Air Temperature",
	"Oil Pressure",
	"Oil Temperature",
	"Air/Fuel Ratio",
	"Lambda",
	"Vehicle Speed",
	"Gear",
}

// Normalizer resolves raw vendor channel names to canonical display names.
type Normalizer struct {
	overrides map[string]string // lower-cased raw -> canonical, user-supplied
}

// New constructs a Normalizer with a user override dictionary. Keys are
// lower-cased so lookups are case-insensitive; values are used as given.
func New(overrides map[string]string) *Normalizer {
	lowered := make(map[string]string, len(overrides))
	for k, v := range overrides {
		lowered[strings.ToLower(k)] = v
	}
	return &Normalizer{overrides: lowered}
}

// canonicalNames holds every value builtinDictionary maps to, so that an
// already-canonical name is never mistaken for a path. Without this guard,
// "Air/Fuel Ratio" (the canonical form of "afr") would be re-stripped to
// "Fuel Ratio" on a second pass, breaking normalisation idempotence.
var canonicalNames = func() map[string]bool {
	m := make(map[string]bool, len(builtinDictionary))
	for _, v := range builtinDictionary {
		m[v] = true
	}
	return m
}()

// pathStrip returns the final path segment of a name that encodes a
// category path with '/' or '.' separators, unchanged otherwise. A name
// that is already a canonical channel name is never stripped, even if it
// contains one of those separators (e.g. "Air/Fuel Ratio").
func pathStrip(raw string) string {
	if canonicalNames[raw] {
		return raw
	}
	cut := raw
	if idx := strings.LastIndexAny(cut, "/."); idx != -1 {
		cut = cut[idx+1:]
	}
	return cut
}

// Normalize resolves a raw channel name to its canonical form: path strip,
// then override lookup, then built-in dictionary lookup, then identity.
func (n *Normalizer) Normalize(raw string) string {
	stripped := pathStrip(raw)
	key := strings.ToLower(stripped)

	if n != nil {
		if canonical, ok := n.overrides[key]; ok {
			return canonical
		}
	}
	if canonical, ok := builtinDictionary[key]; ok {
		return canonical
	}
	return stripped
}

// HasNormalization reports whether raw resolves to something other than
// its own (path-stripped) identity.
func (n *Normalizer) HasNormalization(raw string) bool {
	return n.Normalize(raw) != pathStrip(raw)
}

// DisplayName formats a name for UI presentation: the canonical name,
// followed parenthetically by the raw name when they differ.
func (n *Normalizer) DisplayName(raw string) string {
	canonical := n.Normalize(raw)
	if canonical == raw {
		return canonical
	}
	return canonical + " (" + raw + ")"
}

// SortChannelsByPriority stably sorts names, placing known-canonical names
// first in priorityOrder, then all others alphabetically.
func SortChannelsByPriority(names []string) []string {
	rank := make(map[string]int, len(priorityOrder))
	for i, n := range priorityOrder {
		rank[n] = i
	}

	sorted := append([]string(nil), names...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, iKnown := rank[sorted[i]]
		rj, jKnown := rank[sorted[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return strings.ToLower(sorted[i]) < strings.ToLower(sorted[j])
		}
	})
	return sorted
}
