// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides capone's standard CBOR encoding configuration.
//
// Every structured message on the wire (SessionKey, ConnectionInitiation,
// ServiceDescription, SessionRequest, SessionMessage, SessionInitiation,
// SessionResult, SessionTermination, Capability, and the discovery
// request/response pair) is a Go struct with `cbor:"N,keyasint"` tags,
// encoded through this package so that every component serializes
// identically without duplicating configuration.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. Same logical
// data always produces identical bytes.
//
// For buffer-oriented operations (a framed channel's structured-message
// read/write, the discovery probe and response):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (a sequence of CBOR items read from an
// io.Reader or written to an io.Writer):
//
//	encoder := codec.NewEncoder(buf)
//	decoder := codec.NewDecoder(buf)
package codec
