// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

// columns is the positional column order shared by the history tables
// (communications_suntech, communications_queclink) and the
// current-state table (communications_current_state), per spec.md
// §4.4.
var columns = []string{
	"uuid", "device_id", "backup_battery_voltage", "backup_battery_percent",
	"cell_id", "course", "delivery_type", "engine_status", "firmware", "fix_status",
	"gps_datetime", "gps_epoch", "idle_time", "lac", "latitude", "longitude",
	"main_battery_voltage", "mcc", "mnc", "model", "msg_class", "msg_counter",
	"alert_type", "network_status", "odometer", "rx_lvl", "satellites", "speed",
	"speed_time", "total_distance", "trip_distance", "trip_hourmeter",
	"bytes_count", "client_ip", "client_port", "decoded_epoch", "received_epoch",
	"raw_message", "received_at", "created_at",
}

// historyTable returns the append-only table name for a manufacturer.
func historyTable(mfr string) string {
	switch mfr {
	case "QUECLINK":
		return "communications_queclink"
	default:
		return "communications_suntech"
	}
}

const currentStateTable = "communications_current_state"

// fieldLimits are the advisory length caps spec.md §4.4/§6 documents.
// Exceeding one does not abort the batch, but is recorded as a
// diagnostic and surfaces as a warn log at row-preparation time.
var fieldLimits = map[string]int{
	"cell_id":   10,
	"lac":       10,
	"mcc":       10,
	"mnc":       10,
	"model":     50,
	"firmware":  50,
	"msg_class": 20,
}

const bulkChunkSize = 100
