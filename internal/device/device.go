// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package device answers Modbus requests from an in-process data image.
// It backs the loopback downstream used for offline runs and tests.
package device

import (
	"encoding/binary"
	"errors"

	"github.com/ffutop/modbus-master/modbus"
)

const (
	coilOn  = 0xFF00
	coilOff = 0x0000
)

// Device executes requests against an Image and reports writes to its
// Storage.
type Device struct {
	image   *Image
	storage Storage
}

// New creates a device over image. Writes are reported to storage.
func New(image *Image, storage Storage) *Device {
	return &Device{image: image, storage: storage}
}

// Image returns the data image the device answers from.
func (d *Device) Image() *Image {
	return d.image
}

// Process executes req and returns the normal or exception response.
func (d *Device) Process(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	fc := modbus.FunctionCode(req.FunctionCode)
	switch fc {
	case modbus.FuncCodeReadCoils:
		return d.readBits(fc, TableCoils, req.Data)
	case modbus.FuncCodeReadDiscreteInputs:
		return d.readBits(fc, TableDiscreteInputs, req.Data)
	case modbus.FuncCodeReadHoldingRegisters:
		return d.readRegisters(fc, TableHoldingRegisters, req.Data)
	case modbus.FuncCodeReadInputRegisters:
		return d.readRegisters(fc, TableInputRegisters, req.Data)
	case modbus.FuncCodeWriteSingleCoil:
		return d.writeSingleCoil(req)
	default:
		return exception(fc, modbus.ExceptionCodeIllegalFunction)
	}
}

func (d *Device) readBits(fc modbus.FunctionCode, table Table, data []byte) modbus.ProtocolDataUnit {
	r, ok := decodeRange(data)
	if !ok {
		return exception(fc, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := r.CheckValidityForBits(); err != nil {
		return exception(fc, exceptionFor(err))
	}
	return readResponse(fc, d.image.ReadBits(table, r))
}

func (d *Device) readRegisters(fc modbus.FunctionCode, table Table, data []byte) modbus.ProtocolDataUnit {
	r, ok := decodeRange(data)
	if !ok {
		return exception(fc, modbus.ExceptionCodeIllegalDataValue)
	}
	if err := r.CheckValidityForRegisters(); err != nil {
		return exception(fc, exceptionFor(err))
	}
	return readResponse(fc, d.image.ReadRegisters(table, r))
}

func (d *Device) writeSingleCoil(req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	fc := modbus.FuncCodeWriteSingleCoil
	if len(req.Data) != 4 {
		return exception(fc, modbus.ExceptionCodeIllegalDataValue)
	}
	address := binary.BigEndian.Uint16(req.Data[0:2])
	value := binary.BigEndian.Uint16(req.Data[2:4])
	if value != coilOn && value != coilOff {
		return exception(fc, modbus.ExceptionCodeIllegalDataValue)
	}

	d.image.SetBit(TableCoils, address, value == coilOn)
	d.storage.OnWrite(TableCoils, address, 1)

	// echo
	return modbus.ProtocolDataUnit{
		FunctionCode: req.FunctionCode,
		Data:         append([]byte(nil), req.Data...),
	}
}

func decodeRange(data []byte) (modbus.AddressRange, bool) {
	if len(data) != 4 {
		return modbus.AddressRange{}, false
	}
	return modbus.NewAddressRange(binary.BigEndian.Uint16(data[0:2]), binary.BigEndian.Uint16(data[2:4])), true
}

// exceptionFor maps a range rule violation to the code a slave reports.
func exceptionFor(err error) byte {
	if errors.Is(err, modbus.AddressOverflow) {
		return modbus.ExceptionCodeIllegalDataAddress
	}
	return modbus.ExceptionCodeIllegalDataValue
}

func readResponse(fc modbus.FunctionCode, data []byte) modbus.ProtocolDataUnit {
	resp := make([]byte, 1+len(data))
	resp[0] = byte(len(data))
	copy(resp[1:], data)
	return modbus.ProtocolDataUnit{FunctionCode: fc.Value(), Data: resp}
}

func exception(fc modbus.FunctionCode, code byte) modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: fc.Exception(),
		Data:         []byte{code},
	}
}
