// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"encoding/binary"
	"sync"

	"github.com/ffutop/modbus-master/modbus"
)

const (
	MaxAddress = 65535
)

// Table names one of the four Modbus data tables.
type Table int

const (
	TableCoils Table = iota
	TableDiscreteInputs
	TableHoldingRegisters
	TableInputRegisters
)

func (t Table) String() string {
	switch t {
	case TableCoils:
		return "coils"
	case TableDiscreteInputs:
		return "discrete_inputs"
	case TableHoldingRegisters:
		return "holding_registers"
	case TableInputRegisters:
		return "input_registers"
	default:
		return "unknown"
	}
}

// Image is the flat data image of a device covering the full 16-bit
// address space of every table. Bits are stored one per byte.
type Image struct {
	mu sync.RWMutex

	Coils            []byte
	DiscreteInputs   []byte
	HoldingRegisters []uint16
	InputRegisters   []uint16
}

// NewImage creates a zeroed image.
func NewImage() *Image {
	return &Image{
		Coils:            make([]byte, MaxAddress+1),
		DiscreteInputs:   make([]byte, MaxAddress+1),
		HoldingRegisters: make([]uint16, MaxAddress+1),
		InputRegisters:   make([]uint16, MaxAddress+1),
	}
}

// ReadBits packs the bits of r from a bit table, first bit in the least
// significant position.
func (m *Image) ReadBits(table Table, r modbus.AddressRange) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.Coils
	if table == TableDiscreteInputs {
		src = m.DiscreteInputs
	}
	result := make([]byte, (int(r.Count)+7)/8)
	for i := 0; i < int(r.Count); i++ {
		if src[int(r.Start)+i] != 0 {
			result[i/8] |= 1 << uint(i%8)
		}
	}
	return result
}

// ReadRegisters returns the registers of r from a register table in
// big-endian order.
func (m *Image) ReadRegisters(table Table, r modbus.AddressRange) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.HoldingRegisters
	if table == TableInputRegisters {
		src = m.InputRegisters
	}
	result := make([]byte, int(r.Count)*2)
	for i := 0; i < int(r.Count); i++ {
		binary.BigEndian.PutUint16(result[i*2:], src[int(r.Start)+i])
	}
	return result
}

// SetBit sets one bit of a bit table.
func (m *Image) SetBit(table Table, address uint16, on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var v byte
	if on {
		v = 1
	}
	if table == TableDiscreteInputs {
		m.DiscreteInputs[address] = v
	} else {
		m.Coils[address] = v
	}
}

// SetRegister sets one register of a register table.
func (m *Image) SetRegister(table Table, address uint16, value uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if table == TableInputRegisters {
		m.InputRegisters[address] = value
	} else {
		m.HoldingRegisters[address] = value
	}
}

// detach copies the tables onto the heap so the image outlives the memory
// it was mapped onto.
func (m *Image) detach() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Coils = append([]byte(nil), m.Coils...)
	m.DiscreteInputs = append([]byte(nil), m.DiscreteInputs...)
	m.HoldingRegisters = append([]uint16(nil), m.HoldingRegisters...)
	m.InputRegisters = append([]uint16(nil), m.InputRegisters...)
}
