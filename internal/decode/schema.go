// Copyright (C) 2024 The siscom-consumer Authors.
// All rights reserved. This file is part of siscom-consumer.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package decode

// recordSchema is the Avro schema of the binary payload a broker
// delivery carries, per spec.md §4.1: a flat field map, a required
// metadata sub-message, and a "decoded" union that discriminates the
// Manufacturer. Avro's union is the concrete realization of the
// oneof spec.md describes only in prose.
const recordSchema = `{
	"type": "record",
	"name": "KafkaMessage",
	"fields": [
		{"name": "uuid", "type": "string"},
		{"name": "raw", "type": "string"},
		{"name": "data", "type": {"type": "map", "values": "string"}},
		{"name": "metadata", "type": {
			"type": "record",
			"name": "Metadata",
			"fields": [
				{"name": "bytes", "type": "long"},
				{"name": "client_ip", "type": ["null", "string"], "default": null},
				{"name": "client_port", "type": "int"},
				{"name": "decoded_epoch", "type": "long"},
				{"name": "received_epoch", "type": "long"},
				{"name": "worker_id", "type": "int"}
			]
		}},
		{"name": "decoded", "type": [
			"null",
			{"type": "record", "name": "SuntechBlock", "fields": [
				{"name": "fields", "type": {"type": "map", "values": "string"}}
			]},
			{"type": "record", "name": "QueclinkBlock", "fields": [
				{"name": "fields", "type": {"type": "map", "values": "string"}}
			]}
		], "default": null}
	]
}`
