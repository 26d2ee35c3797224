// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package model holds the normalized data types the pipeline operates
// on, from decode through storage.
package model

import "time"

// Manufacturer is the device vendor tag that selects the history table
// an Observation is appended to.
type Manufacturer string

const (
	ManufacturerSuntech  Manufacturer = "SUNTECH"
	ManufacturerQueclink Manufacturer = "QUECLINK"
)

// IsValid reports whether m is one of the known manufacturer tags.
func (m Manufacturer) IsValid() bool {
	switch m {
	case ManufacturerSuntech, ManufacturerQueclink:
		return true
	default:
		return false
	}
}

// Observation is the normalized record the pipeline operates on, from
// the moment RecordDecoder produces it until the owning batch commits
// or is abandoned. String fields carry the raw textual form as
// received; numeric conversion happens only at row-preparation time.
type Observation struct {
	UUID         string
	DeviceID     string
	Manufacturer Manufacturer

	// Altitude is decoded from the wire payload like every other field
	// below, but does not appear in the history/current-state column
	// set (spec.md §4.4); row preparation does not read it, so it is
	// not stored as a column.
	Altitude              string
	BackupBatteryVoltage  string
	BackupBatteryPercent  string
	CellID                string
	Course                string
	DeliveryType          string
	EngineStatus          string
	Firmware              string
	FixStatus             string
	GPSDatetime           string
	GPSEpoch              string
	IdleTime              string
	LAC                   string
	Latitude              string
	Longitude             string
	MainBatteryVoltage    string
	MCC                   string
	MNC                   string
	Model                 string
	MsgClass              string
	MsgCounter            string
	AlertType             string
	NetworkStatus         string
	Odometer              string
	RxLvl                 string
	Satellites            string
	Speed                 string
	SpeedTime             string
	TotalDistance         string
	TripDistance          string
	TripHourmeter         string

	// RawBlock is the manufacturer-specific key/value map preserved for
	// traceability; it is never interpreted, only serialized into
	// RawMessage.
	RawBlock map[string]string

	BytesCount    string
	ClientIP      *string
	ClientPort    string
	DecodedEpoch  string
	ReceivedEpoch string
	WorkerID      string

	RawMessage string

	ReceivedAt time.Time
	CreatedAt  time.Time
}

// Valid reports whether the Observation satisfies the invariants
// spec.md §3 requires before it may be handed to the Store: non-empty
// uuid, non-empty device_id, known manufacturer.
func (o *Observation) Valid() bool {
	return o.UUID != "" && o.DeviceID != "" && o.Manufacturer.IsValid()
}

// RowDiagnostic describes one row that participated in a rejected
// bulk-insert statement, per spec.md §4.4.
type RowDiagnostic struct {
	DeviceID    string
	UUID        string
	FieldName   string
	FieldLength int
	FieldLimit  int
	OverLimit   bool
}
