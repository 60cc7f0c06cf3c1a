// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/modbus-master/modbus"
)

const (
	mbapSize   = 7
	tcpMinSize = 8
	tcpMaxSize = 260
)

// ApplicationDataUnit is a Modbus TCP frame: MBAP header followed by the PDU.
type ApplicationDataUnit struct {
	TransactionID uint16
	ProtocolID    uint16
	SlaveID       byte
	Pdu           modbus.ProtocolDataUnit
}

func Decode(raw []byte) (*ApplicationDataUnit, error) {
	if len(raw) < tcpMinSize {
		return nil, fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", len(raw), tcpMinSize)
	}
	length := int(binary.BigEndian.Uint16(raw[4:]))
	if length != len(raw)-6 {
		return nil, fmt.Errorf("modbus: length in MBAP header '%v' does not match frame length '%v'", length, len(raw)-6)
	}
	return &ApplicationDataUnit{
		TransactionID: binary.BigEndian.Uint16(raw[0:]),
		ProtocolID:    binary.BigEndian.Uint16(raw[2:]),
		SlaveID:       raw[6],
		Pdu: modbus.ProtocolDataUnit{
			FunctionCode: raw[7],
			Data:         raw[8:],
		},
	}, nil
}

// Encode encodes the PDU in a TCP frame:
//
//	Transaction Identifier : 2 bytes
//	Protocol Identifier    : 2 bytes
//	Length                 : 2 bytes
//	Unit Identifier        : 1 byte
//	Function               : 1 byte
//	Data                   : 0 up to 252 bytes
func (adu *ApplicationDataUnit) Encode() ([]byte, error) {
	length := len(adu.Pdu.Data) + tcpMinSize
	if length > tcpMaxSize {
		return nil, fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, tcpMaxSize)
	}
	raw := make([]byte, length)
	binary.BigEndian.PutUint16(raw[0:], adu.TransactionID)
	binary.BigEndian.PutUint16(raw[2:], adu.ProtocolID)
	// unit identifier + function code + data
	binary.BigEndian.PutUint16(raw[4:], uint16(2+len(adu.Pdu.Data)))
	raw[6] = adu.SlaveID
	raw[7] = adu.Pdu.FunctionCode
	copy(raw[8:], adu.Pdu.Data)
	return raw, nil
}

// Verify checks that resp answers adu.
func (adu *ApplicationDataUnit) Verify(resp *ApplicationDataUnit) error {
	if resp.TransactionID != adu.TransactionID {
		return fmt.Errorf("modbus: response transaction id '%v' does not match request '%v'", resp.TransactionID, adu.TransactionID)
	}
	if resp.ProtocolID != adu.ProtocolID {
		return fmt.Errorf("modbus: response protocol id '%v' does not match request '%v'", resp.ProtocolID, adu.ProtocolID)
	}
	if resp.SlaveID != adu.SlaveID {
		return fmt.Errorf("modbus: response unit id '%v' does not match request '%v'", resp.SlaveID, adu.SlaveID)
	}
	return nil
}
