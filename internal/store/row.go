// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import "time"

// Row is an Observation materialized for insertion: numeric strings
// parsed, gps_datetime parsed, values bound to their typed columns.
// Row preparation (internal/batch/rowprep.go) produces these; the
// Store only ever sees already-prepared rows.
type Row struct {
	UUID                 string
	DeviceID             string
	BackupBatteryVoltage *float64
	BackupBatteryPercent *float64
	CellID               string
	Course               *float64
	DeliveryType         string
	EngineStatus         string
	Firmware             string
	FixStatus            string
	GPSDatetime          *time.Time
	GPSEpoch             *int64
	IdleTime             *int32
	LAC                  string
	Latitude             *float64
	Longitude            *float64
	MainBatteryVoltage   *float64
	MCC                  string
	MNC                  string
	Model                string
	MsgClass             string
	MsgCounter           *int32
	AlertType            string
	NetworkStatus        string
	Odometer             *int64
	RxLvl                *int32
	Satellites           *int32
	Speed                *float64
	SpeedTime            string
	TotalDistance        *int64
	TripDistance         *int64
	TripHourmeter        *int32

	BytesCount    *int32
	ClientIP      *string
	ClientPort    *int32
	DecodedEpoch  *int64
	ReceivedEpoch *int64

	RawMessage string

	ReceivedAt time.Time
	CreatedAt  time.Time

	// Manufacturer selects the history table this row appends to; it
	// is not itself a column.
	Manufacturer string
}

// values returns the row's column values in the positional order
// `columns` declares, ready to be passed to squirrel's Values().
func (r *Row) values() []interface{} {
	return []interface{}{
		r.UUID, r.DeviceID, r.BackupBatteryVoltage, r.BackupBatteryPercent,
		r.CellID, r.Course, r.DeliveryType, r.EngineStatus, r.Firmware, r.FixStatus,
		r.GPSDatetime, r.GPSEpoch, r.IdleTime, r.LAC, r.Latitude, r.Longitude,
		r.MainBatteryVoltage, r.MCC, r.MNC, r.Model, r.MsgClass, r.MsgCounter,
		r.AlertType, r.NetworkStatus, r.Odometer, r.RxLvl, r.Satellites, r.Speed,
		r.SpeedTime, r.TotalDistance, r.TripDistance, r.TripHourmeter,
		r.BytesCount, r.ClientIP, r.ClientPort, r.DecodedEpoch, r.ReceivedEpoch,
		r.RawMessage, r.ReceivedAt, r.CreatedAt,
	}
}

// lengthDiagnostics returns every length-bounded field with its value,
// whether or not it exceeds its limit; logChunkDiagnostics compares
// each against fieldLimits.
func (r *Row) lengthDiagnostics() []fieldLength {
	candidates := []fieldLength{
		{"cell_id", r.CellID},
		{"lac", r.LAC},
		{"mcc", r.MCC},
		{"mnc", r.MNC},
		{"model", r.Model},
		{"firmware", r.Firmware},
		{"msg_class", r.MsgClass},
	}
	out := make([]fieldLength, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c)
	}
	return out
}

type fieldLength struct {
	name  string
	value string
}
