// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package transport defines the link a master channel talks through.
package transport

import (
	"context"

	"github.com/ffutop/modbus-master/modbus"
)

// Downstream represents a destination for requests (one or more Modbus
// slaves behind a single link). Implementations are driven by one goroutine
// at a time; the link is half-duplex.
type Downstream interface {
	// Send sends a PDU to a specific SlaveID and returns the response PDU.
	Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error)
	Connect(ctx context.Context) error
	Close() error
}
