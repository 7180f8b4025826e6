// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logmodel

// FormatMeta is implemented once per supported decoder. Consumers that do
// not care about per-format metadata treat it as opaque; consumers that do
// switch on the concrete type.
type FormatMeta interface {
	FormatName() string
}

type HaltechMeta struct {
	Version string
	Date    string
}

func (HaltechMeta) FormatName() string { return "Haltech" }

type ECUMasterMeta struct {
	Date string
}

func (ECUMasterMeta) FormatName() string { return "ECUMaster" }

type RomRaiderMeta struct {
	Date string
}

func (RomRaiderMeta) FormatName() string { return "RomRaider" }

type LocomotiveMeta struct {
	Customer string
	Fields   map[string]string
}

func (LocomotiveMeta) FormatName() string { return "Locomotive" }

type SpeeduinoMeta struct {
	Vendor           string // "speeduino" or "rusEFI"
	FormatVersion    int16
	CreationTime     int32
	CaptureDate      string
	NumLoggerFields  int
}

func (SpeeduinoMeta) FormatName() string { return "Speeduino/rusEFI" }

type LinkMeta struct {
	ECUModel        string
	Date            string
	Time            string
	SoftwareVersion string
	Source          string
}

func (LinkMeta) FormatName() string { return "Link" }

type AIMMeta struct {
	Vehicle      string
	Racer        string
	Track        string
	Venue        string
	Championship string
	DateTime     string
	LapCount     int
	UsedNative   bool
}

func (AIMMeta) FormatName() string { return "AIM" }

type EmeraldMeta struct {
	FirstOLEDate    float64
	SourceFile      string
	RecordCount     int
	DurationSeconds float64
	SampleRateHz    float64
}

func (EmeraldMeta) FormatName() string { return "Emerald" }
