// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/modbus/crc"
)

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5
)

// ApplicationDataUnit is an RTU frame: slave address, PDU and CRC.
type ApplicationDataUnit struct {
	SlaveID byte
	Pdu     modbus.ProtocolDataUnit
}

// Decode parses a raw RTU frame and checks its CRC.
func Decode(raw []byte) (*ApplicationDataUnit, error) {
	length := len(raw)
	if length < MinSize {
		return nil, fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", length, MinSize)
	}

	var sum crc.CRC
	sum.Reset().PushBytes(raw[:length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != sum.Value() {
		return nil, fmt.Errorf("modbus: response crc '%v' does not match expected '%v'", checksum, sum.Value())
	}
	return &ApplicationDataUnit{
		SlaveID: raw[0],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         raw[2 : length-2],
		},
	}, nil
}

// Encode encodes PDU in an RTU frame:
//
//	Slave Address   : 1 byte
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := len(adu.Pdu.Data) + 4
	if length > MaxSize {
		return nil, fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
	}
	raw := make([]byte, length)
	raw[0] = adu.SlaveID
	raw[1] = adu.Pdu.FunctionCode
	copy(raw[2:], adu.Pdu.Data)

	var sum crc.CRC
	sum.Reset().PushBytes(raw[:length-2])
	checksum := sum.Value()
	raw[length-2] = byte(checksum)
	raw[length-1] = byte(checksum >> 8)
	return raw, nil
}

// Verify checks that resp answers req.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if adu.SlaveID != resp.SlaveID {
		return fmt.Errorf("modbus: response slave id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
	}
	if resp.Pdu.FunctionCode&^modbus.ErrorDelimiter != adu.Pdu.FunctionCode {
		return fmt.Errorf("modbus: response function code '%v' does not match request '%v'", resp.Pdu.FunctionCode, adu.Pdu.FunctionCode)
	}
	return nil
}
