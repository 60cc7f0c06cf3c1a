// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package client

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
)

// Result is the single value delivered for a queued request.
type Result[T any] struct {
	Value T
	Err   error
}

// Service binds one operation: its function code, its request and response
// payload types, the validation rule for requests, and the construction of
// the queue envelope. Bindings are stateless.
type Service[Req, Resp any] interface {
	FunctionCode() modbus.FunctionCode
	CheckRequestValidity(req Req) error
	CreateRequest(unit modbus.UnitIdentifier, req Req, reply chan<- Result[Resp]) Request
}

// codec is the wire half of a binding. Only the channel task uses it.
type codec[Req, Resp any] interface {
	FunctionCode() modbus.FunctionCode
	encode(req Req) []byte
	decode(req Req, data []byte) (Resp, error)
}

// ReadCoils reads a range of coils (function code 1).
type ReadCoils struct{}

func (ReadCoils) FunctionCode() modbus.FunctionCode { return modbus.FuncCodeReadCoils }

func (ReadCoils) CheckRequestValidity(r modbus.AddressRange) error {
	return r.CheckValidityForBits()
}

func (s ReadCoils) CreateRequest(unit modbus.UnitIdentifier, r modbus.AddressRange, reply chan<- Result[[]modbus.Indexed[bool]]) Request {
	return newEnvelope[modbus.AddressRange, []modbus.Indexed[bool]](s, unit, r, reply)
}

func (ReadCoils) encode(r modbus.AddressRange) []byte { return encodeRange(r) }

func (ReadCoils) decode(r modbus.AddressRange, data []byte) ([]modbus.Indexed[bool], error) {
	return decodeBits(r, data)
}

// ReadDiscreteInputs reads a range of discrete inputs (function code 2).
type ReadDiscreteInputs struct{}

func (ReadDiscreteInputs) FunctionCode() modbus.FunctionCode {
	return modbus.FuncCodeReadDiscreteInputs
}

func (ReadDiscreteInputs) CheckRequestValidity(r modbus.AddressRange) error {
	return r.CheckValidityForBits()
}

func (s ReadDiscreteInputs) CreateRequest(unit modbus.UnitIdentifier, r modbus.AddressRange, reply chan<- Result[[]modbus.Indexed[bool]]) Request {
	return newEnvelope[modbus.AddressRange, []modbus.Indexed[bool]](s, unit, r, reply)
}

func (ReadDiscreteInputs) encode(r modbus.AddressRange) []byte { return encodeRange(r) }

func (ReadDiscreteInputs) decode(r modbus.AddressRange, data []byte) ([]modbus.Indexed[bool], error) {
	return decodeBits(r, data)
}

// ReadHoldingRegisters reads a range of holding registers (function code 3).
type ReadHoldingRegisters struct{}

func (ReadHoldingRegisters) FunctionCode() modbus.FunctionCode {
	return modbus.FuncCodeReadHoldingRegisters
}

func (ReadHoldingRegisters) CheckRequestValidity(r modbus.AddressRange) error {
	return r.CheckValidityForRegisters()
}

func (s ReadHoldingRegisters) CreateRequest(unit modbus.UnitIdentifier, r modbus.AddressRange, reply chan<- Result[[]modbus.Indexed[uint16]]) Request {
	return newEnvelope[modbus.AddressRange, []modbus.Indexed[uint16]](s, unit, r, reply)
}

func (ReadHoldingRegisters) encode(r modbus.AddressRange) []byte { return encodeRange(r) }

func (ReadHoldingRegisters) decode(r modbus.AddressRange, data []byte) ([]modbus.Indexed[uint16], error) {
	return decodeRegisters(r, data)
}

// ReadInputRegisters reads a range of input registers (function code 4).
type ReadInputRegisters struct{}

func (ReadInputRegisters) FunctionCode() modbus.FunctionCode {
	return modbus.FuncCodeReadInputRegisters
}

func (ReadInputRegisters) CheckRequestValidity(r modbus.AddressRange) error {
	return r.CheckValidityForRegisters()
}

func (s ReadInputRegisters) CreateRequest(unit modbus.UnitIdentifier, r modbus.AddressRange, reply chan<- Result[[]modbus.Indexed[uint16]]) Request {
	return newEnvelope[modbus.AddressRange, []modbus.Indexed[uint16]](s, unit, r, reply)
}

func (ReadInputRegisters) encode(r modbus.AddressRange) []byte { return encodeRange(r) }

func (ReadInputRegisters) decode(r modbus.AddressRange, data []byte) ([]modbus.Indexed[uint16], error) {
	return decodeRegisters(r, data)
}

// WriteSingleCoil writes one coil (function code 5). The device echoes the
// request, which is returned to the caller.
type WriteSingleCoil struct{}

const (
	coilOn  uint16 = 0xFF00
	coilOff uint16 = 0x0000
)

func (WriteSingleCoil) FunctionCode() modbus.FunctionCode {
	return modbus.FuncCodeWriteSingleCoil
}

func (WriteSingleCoil) CheckRequestValidity(v modbus.Indexed[bool]) error {
	return modbus.NewAddressRange(v.Index, 1).CheckValidityForBits()
}

func (s WriteSingleCoil) CreateRequest(unit modbus.UnitIdentifier, v modbus.Indexed[bool], reply chan<- Result[modbus.Indexed[bool]]) Request {
	return newEnvelope[modbus.Indexed[bool], modbus.Indexed[bool]](s, unit, v, reply)
}

func (WriteSingleCoil) encode(v modbus.Indexed[bool]) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], v.Index)
	if v.Value {
		binary.BigEndian.PutUint16(data[2:], coilOn)
	} else {
		binary.BigEndian.PutUint16(data[2:], coilOff)
	}
	return data
}

func (WriteSingleCoil) decode(v modbus.Indexed[bool], data []byte) (modbus.Indexed[bool], error) {
	if len(data) != 4 {
		return modbus.Indexed[bool]{}, fmt.Errorf("%w: response data size '%v' does not match expected '%v'", modbus.ErrBadResponse, len(data), 4)
	}
	index := binary.BigEndian.Uint16(data[0:])
	var value bool
	switch raw := binary.BigEndian.Uint16(data[2:]); raw {
	case coilOn:
		value = true
	case coilOff:
		value = false
	default:
		return modbus.Indexed[bool]{}, fmt.Errorf("%w: coil value '%#04x' is neither ON nor OFF", modbus.ErrBadResponse, raw)
	}
	if index != v.Index || value != v.Value {
		return modbus.Indexed[bool]{}, fmt.Errorf("%w: echo %v=%v does not match request %v=%v", modbus.ErrBadResponse, index, value, v.Index, v.Value)
	}
	return modbus.NewIndexed(index, value), nil
}

func encodeRange(r modbus.AddressRange) []byte {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:], r.Start)
	binary.BigEndian.PutUint16(data[2:], r.Count)
	return data
}

// byteCount checks the leading byte count of a read response and returns the payload.
func byteCount(data []byte, want int) ([]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty response data", modbus.ErrBadResponse)
	}
	if int(data[0]) != want || len(data)-1 != want {
		return nil, fmt.Errorf("%w: response byte count '%v' (%v bytes) does not match expected '%v'", modbus.ErrBadResponse, data[0], len(data)-1, want)
	}
	return data[1:], nil
}

func decodeBits(r modbus.AddressRange, data []byte) ([]modbus.Indexed[bool], error) {
	payload, err := byteCount(data, (int(r.Count)+7)/8)
	if err != nil {
		return nil, err
	}
	values := make([]modbus.Indexed[bool], r.Count)
	for i := range values {
		bit := payload[i/8]>>(uint(i)%8)&1 == 1
		values[i] = modbus.NewIndexed(r.Start+uint16(i), bit)
	}
	return values, nil
}

func decodeRegisters(r modbus.AddressRange, data []byte) ([]modbus.Indexed[uint16], error) {
	payload, err := byteCount(data, int(r.Count)*2)
	if err != nil {
		return nil, err
	}
	values := make([]modbus.Indexed[uint16], r.Count)
	for i := range values {
		values[i] = modbus.NewIndexed(r.Start+uint16(i), binary.BigEndian.Uint16(payload[i*2:]))
	}
	return values, nil
}
