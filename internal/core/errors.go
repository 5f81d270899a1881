// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors. Datapath errors are recovered locally and only surface
// through counters and traces; configuration errors reach the CLI.
var (
	// Queue errors
	ErrQueueFull = errors.New("frr: queue full")

	// Packet decoding errors
	ErrPacketTooShort       = errors.New("frr: packet too short")
	ErrUnsupportedNetwork   = errors.New("frr: unsupported network protocol")
	ErrUnsupportedTransport = errors.New("frr: unsupported transport protocol")

	// Rerouting errors
	ErrNoAlternate   = errors.New("frr: no alternate configured")
	ErrUnknownPolicy = errors.New("frr: unknown rerouting policy")
	ErrLinkDown      = errors.New("frr: link down")

	// Topology errors
	ErrUnknownNode = errors.New("frr: unknown node")
	ErrUnknownLink = errors.New("frr: unknown link")
	ErrNoRoute     = errors.New("frr: no route to destination")

	// Configuration errors
	ErrConfigInvalid = errors.New("frr: invalid configuration")
)
