// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import "math"

const (
	// MaxRegisters is the largest register count a single read PDU can carry.
	MaxRegisters uint16 = 125
	// MaxBinaryBits is the largest bit count a single read PDU can carry.
	MaxBinaryBits uint16 = 2000
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// AddressRange is a contiguous span of bits or registers.
type AddressRange struct {
	Start uint16
	Count uint16
}

// NewAddressRange builds a range without validating it. Whether the range is
// valid depends on the operation it is used with.
func NewAddressRange(start, count uint16) AddressRange {
	return AddressRange{Start: start, Count: count}
}

// CheckValidityForBits validates the range for coil and discrete input reads.
func (r AddressRange) CheckValidityForBits() error {
	return r.checkValidity(MaxBinaryBits)
}

// CheckValidityForRegisters validates the range for register reads.
func (r AddressRange) CheckValidityForRegisters() error {
	return r.checkValidity(MaxRegisters)
}

func (r AddressRange) checkValidity(maxCount uint16) error {
	if r.Count == 0 {
		return CountOfZero
	}
	last := uint32(r.Start) + uint32(r.Count) - 1
	if last > math.MaxUint16 {
		return AddressOverflow
	}
	if r.Count > maxCount {
		return CountTooBigForType
	}
	return nil
}

// Indexed is one addressed value of a response.
type Indexed[T any] struct {
	Index uint16
	Value T
}

// NewIndexed pairs a value with its address.
func NewIndexed[T any](index uint16, value T) Indexed[T] {
	return Indexed[T]{Index: index, Value: value}
}

// UnitIdentifier addresses one device on a shared link.
type UnitIdentifier struct {
	id byte
}

// NewUnitIdentifier wraps an address byte.
func NewUnitIdentifier(id byte) UnitIdentifier {
	return UnitIdentifier{id: id}
}

// DefaultUnitIdentifier is used when no explicit unit is addressed.
func DefaultUnitIdentifier() UnitIdentifier {
	return UnitIdentifier{id: 0xFF}
}

// Value returns the address byte.
func (u UnitIdentifier) Value() byte {
	return u.id
}
