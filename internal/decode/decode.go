// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package decode turns an opaque binary broker payload into a
// normalized model.Observation. Decoding never parses numeric content
// and never fails on a missing optional key — it is O(map size) and
// its only failure modes are a malformed envelope or a missing
// metadata sub-message, per spec.md §4.1.
package decode

import (
	"fmt"
	"sort"
	"strings"

	"github.com/linkedin/goavro/v2"

	"github.com/siscom/consumer/internal/model"
)

var recordCodec *goavro.Codec

func init() {
	codec, err := goavro.NewCodec(recordSchema)
	if err != nil {
		panic(fmt.Sprintf("decode: invalid record schema: %v", err))
	}
	recordCodec = codec
}

// Decoder turns raw broker payloads into Observations.
type Decoder struct{}

// New returns a ready-to-use Decoder. Decoder holds no state and is
// safe for concurrent use by multiple goroutines, though the pipeline
// only ever calls it from the ConsumerSource path.
func New() *Decoder {
	return &Decoder{}
}

// Decode parses a single length-delimited Avro record into an
// Observation. It is a pure function: no I/O, no locking.
func (d *Decoder) Decode(payload []byte) (*model.Observation, error) {
	native, _, err := recordCodec.NativeFromBinary(payload)
	if err != nil {
		return nil, fmt.Errorf("decode: malformed record: %w", err)
	}

	rec, ok := native.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("decode: record did not decode to a map")
	}

	metadataRaw, ok := rec["metadata"]
	if !ok || metadataRaw == nil {
		return nil, fmt.Errorf("decode: missing metadata")
	}
	metadata, ok := metadataRaw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("decode: metadata is not a record")
	}

	data, _ := rec["data"].(map[string]interface{})

	obs := &model.Observation{
		UUID:       stringField(rec, "uuid"),
		RawMessage: stringField(rec, "raw"),

		AlertType:            dataField(data, "ALERT"),
		Altitude:             dataField(data, "ALTITUDE"),
		BackupBatteryVoltage: dataField(data, "BACKUP_BATTERY_VOLTAGE"),
		BackupBatteryPercent: dataField(data, "PERCENT_BACKUP"),
		CellID:               dataField(data, "CELL_ID"),
		Course:               dataField(data, "COURSE"),
		DeliveryType:         dataField(data, "DELIVERY_TYPE"),
		DeviceID:             dataField(data, "DEVICE_ID"),
		EngineStatus:         dataField(data, "ENGINE_STATUS"),
		Firmware:             dataField(data, "FIRMWARE"),
		FixStatus:            dataField(data, "FIX_"),
		GPSDatetime:          dataField(data, "GPS_DATETIME"),
		GPSEpoch:             dataField(data, "GPS_EPOCH"),
		IdleTime:             dataField(data, "IDLE_TIME"),
		LAC:                  dataField(data, "LAC"),
		Latitude:             dataField(data, "LATITUD"),
		Longitude:            dataField(data, "LONGITUD"),
		MainBatteryVoltage:   dataField(data, "MAIN_BATTERY_VOLTAGE"),
		MCC:                  dataField(data, "MCC"),
		MNC:                  dataField(data, "MNC"),
		Model:                dataField(data, "MODEL"),
		MsgClass:             dataField(data, "MSG_CLASS"),
		MsgCounter:           dataField(data, "MSG_COUNTER"),
		NetworkStatus:        dataField(data, "NETWORK_STATUS"),
		Odometer:             dataField(data, "ODOMETER"),
		RxLvl:                dataField(data, "RX_LVL"),
		Satellites:           dataField(data, "SATELLITES"),
		Speed:                dataField(data, "SPEED"),
		SpeedTime:            dataField(data, "SPEED_TIME"),
		TotalDistance:        dataField(data, "TOTAL_DISTANCE"),
		TripDistance:         dataField(data, "TRIP_DISTANCE"),
		TripHourmeter:        dataField(data, "TRIP_HOURMETER"),

		BytesCount:    longField(metadata, "bytes"),
		ClientIP:      unionStringField(metadata, "client_ip"),
		ClientPort:    intField(metadata, "client_port"),
		DecodedEpoch:  longField(metadata, "decoded_epoch"),
		ReceivedEpoch: longField(metadata, "received_epoch"),
		WorkerID:      intField(metadata, "worker_id"),
	}

	obs.Manufacturer, obs.RawBlock = decodedVariant(rec["decoded"])

	return obs, nil
}

// decodedVariant inspects the "decoded" union and returns the
// Manufacturer it selects along with its raw field map. A missing
// variant falls back to SUNTECH with an empty raw block, per
// spec.md §4.1.
func decodedVariant(decoded interface{}) (model.Manufacturer, map[string]string) {
	union, ok := decoded.(map[string]interface{})
	if !ok || len(union) == 0 {
		return model.ManufacturerSuntech, map[string]string{}
	}

	for branch, value := range union {
		block, _ := value.(map[string]interface{})
		fields, _ := block["fields"].(map[string]interface{})
		raw := make(map[string]string, len(fields))
		for k, v := range fields {
			if s, ok := v.(string); ok {
				raw[k] = s
			}
		}
		switch {
		case strings.HasSuffix(branch, "SuntechBlock"):
			return model.ManufacturerSuntech, raw
		case strings.HasSuffix(branch, "QueclinkBlock"):
			return model.ManufacturerQueclink, raw
		}
	}

	return model.ManufacturerSuntech, map[string]string{}
}

// SerializeRawBlock renders a manufacturer-specific raw field map as
// the deterministic key=value;... textual form stored alongside
// RawMessage, so the same raw block always serializes identically.
func SerializeRawBlock(raw map[string]string) string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+raw[k])
	}
	return strings.Join(parts, ";")
}

func stringField(rec map[string]interface{}, name string) string {
	if v, ok := rec[name].(string); ok {
		return v
	}
	return ""
}

func dataField(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func longField(rec map[string]interface{}, name string) string {
	switch v := rec[name].(type) {
	case int64:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

func intField(rec map[string]interface{}, name string) string {
	switch v := rec[name].(type) {
	case int32:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	default:
		return ""
	}
}

func unionStringField(rec map[string]interface{}, name string) *string {
	v, ok := rec[name]
	if !ok || v == nil {
		return nil
	}
	union, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	s, ok := union["string"].(string)
	if !ok {
		return nil
	}
	return &s
}
