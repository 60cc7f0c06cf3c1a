// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package modbus holds the protocol vocabulary shared by the master: function
codes, address ranges and their validation rules, unit identifiers and the
error kinds surfaced to callers.
*/
package modbus

import "fmt"

// FunctionCode is the single byte that selects an operation on the wire.
type FunctionCode byte

// Supported function codes.
const (
	FuncCodeReadCoils            FunctionCode = 0x01
	FuncCodeReadDiscreteInputs   FunctionCode = 0x02
	FuncCodeReadHoldingRegisters FunctionCode = 0x03
	FuncCodeReadInputRegisters   FunctionCode = 0x04
	FuncCodeWriteSingleCoil      FunctionCode = 0x05
)

// ErrorDelimiter is the bit a responder sets on the function code byte of an
// exception response.
const ErrorDelimiter byte = 0x80

// Value returns the wire representation of the function code.
func (fc FunctionCode) Value() byte {
	return byte(fc)
}

// Exception returns the function code byte of an exception response to fc.
func (fc FunctionCode) Exception() byte {
	return byte(fc) | ErrorDelimiter
}

func (fc FunctionCode) String() string {
	switch fc {
	case FuncCodeReadCoils:
		return "ReadCoils"
	case FuncCodeReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncCodeReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncCodeReadInputRegisters:
		return "ReadInputRegisters"
	case FuncCodeWriteSingleCoil:
		return "WriteSingleCoil"
	default:
		return fmt.Sprintf("FunctionCode(0x%02X)", byte(fc))
	}
}
