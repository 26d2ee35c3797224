// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package batch

import (
	"strconv"
	"strings"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"

	"github.com/siscom/consumer/internal/decode"
	"github.com/siscom/consumer/internal/model"
	"github.com/siscom/consumer/internal/store"
)

// gpsDatetimeLayout is the fixed, timezone-less layout spec.md §9
// mandates; values are interpreted as UTC.
const gpsDatetimeLayout = "2006-01-02 15:04:05"

// boundedFieldLimits mirrors store.fieldLimits for the warn-on-exceed
// check row preparation performs before handing the row to the Store.
var boundedFieldLimits = map[string]int{
	"cell_id":   10,
	"lac":       10,
	"mcc":       10,
	"mnc":       10,
	"model":     50,
	"firmware":  50,
	"msg_class": 20,
}

// prepareRow materializes an Observation into a store.Row: numeric
// strings are parsed (optional leading '+' accepted, empty string
// maps to absent value), gps_datetime is parsed or left null on
// failure, and length-bounded fields are checked and warned about but
// NOT truncated — the value is still forwarded to the Store unchanged,
// matching spec.md §9's resolved open question and the S4 scenario
// (an over-long field warns, then fails at the database, diagnostics
// identify the row; the value itself is never mutated here).
func prepareRow(obs *model.Observation, now time.Time) *store.Row {
	checkBoundedFields(obs)

	row := &store.Row{
		UUID:                 obs.UUID,
		DeviceID:             obs.DeviceID,
		BackupBatteryVoltage: parseFloat(obs.BackupBatteryVoltage),
		BackupBatteryPercent: parseFloat(obs.BackupBatteryPercent),
		CellID:               obs.CellID,
		Course:               parseFloat(obs.Course),
		DeliveryType:         obs.DeliveryType,
		EngineStatus:         obs.EngineStatus,
		Firmware:             obs.Firmware,
		FixStatus:            obs.FixStatus,
		GPSDatetime:          parseGPSDatetime(obs.GPSDatetime),
		GPSEpoch:             parseInt64(obs.GPSEpoch),
		IdleTime:             parseInt32(obs.IdleTime),
		LAC:                  obs.LAC,
		Latitude:             parseFloat(obs.Latitude),
		Longitude:            parseFloat(obs.Longitude),
		MainBatteryVoltage:   parseFloat(obs.MainBatteryVoltage),
		MCC:                  obs.MCC,
		MNC:                  obs.MNC,
		Model:                obs.Model,
		MsgClass:             obs.MsgClass,
		MsgCounter:           parseInt32(obs.MsgCounter),
		AlertType:            obs.AlertType,
		NetworkStatus:        obs.NetworkStatus,
		Odometer:             parseInt64(obs.Odometer),
		RxLvl:                parseInt32(obs.RxLvl),
		Satellites:           parseInt32(obs.Satellites),
		Speed:                parseFloat(obs.Speed),
		SpeedTime:            obs.SpeedTime,
		TotalDistance:        parseInt64(obs.TotalDistance),
		TripDistance:         parseInt64(obs.TripDistance),
		TripHourmeter:        parseInt32(obs.TripHourmeter),

		BytesCount:    parseInt32(obs.BytesCount),
		ClientIP:      obs.ClientIP,
		ClientPort:    parseInt32(obs.ClientPort),
		DecodedEpoch:  parseInt64(obs.DecodedEpoch),
		ReceivedEpoch: parseInt64(obs.ReceivedEpoch),

		RawMessage: rawMessage(obs),

		ReceivedAt: now,
		CreatedAt:  now,

		Manufacturer: string(obs.Manufacturer),
	}

	return row
}

// rawMessage prefers the wire's own textual representation (spec.md
// §3's "the original textual representation") and falls back to the
// manufacturer raw block serialization if none was supplied.
func rawMessage(obs *model.Observation) string {
	if obs.RawMessage != "" {
		return obs.RawMessage
	}
	return decode.SerializeRawBlock(obs.RawBlock)
}

// parseFloat accepts an optional leading '+'; an empty string maps to
// an absent value, not zero; an unparsable value maps to absent with a
// warn log (row-preparation error, per spec.md §7).
func parseFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
	if err != nil {
		cclog.Warnf("batch: unparsable numeric field %q: %s", s, err.Error())
		return nil
	}
	return &v
}

func parseInt64(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(strings.TrimPrefix(s, "+"), 10, 64)
	if err != nil {
		cclog.Warnf("batch: unparsable integer field %q: %s", s, err.Error())
		return nil
	}
	return &v
}

func parseInt32(s string) *int32 {
	v := parseInt64(s)
	if v == nil {
		return nil
	}
	n := int32(*v)
	return &n
}

// parseGPSDatetime parses "YYYY-MM-DD HH:MM:SS" as UTC; an empty
// string or a parse failure both map to null, per spec.md §4.3/§9.
func parseGPSDatetime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(gpsDatetimeLayout, s)
	if err != nil {
		cclog.Warnf("batch: unparsable gps_datetime %q: %s", s, err.Error())
		return nil
	}
	t = t.UTC()
	return &t
}

// checkBoundedFields warns for every length-bounded field on obs that
// exceeds its documented limit. It does not mutate obs; the Store's
// own diagnostics fire again if the resulting statement is rejected.
func checkBoundedFields(obs *model.Observation) {
	candidates := map[string]string{
		"cell_id":   obs.CellID,
		"lac":       obs.LAC,
		"mcc":       obs.MCC,
		"mnc":       obs.MNC,
		"model":     obs.Model,
		"firmware":  obs.Firmware,
		"msg_class": obs.MsgClass,
	}
	for name, value := range candidates {
		if limit, ok := boundedFieldLimits[name]; ok && len(value) > limit {
			cclog.Warnf("batch: field %q excede limite (device_id=%s uuid=%s length=%d limit=%d)",
				name, obs.DeviceID, obs.UUID, len(value), limit)
		}
	}
}
