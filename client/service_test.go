// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package client

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ffutop/modbus-master/modbus"
)

func TestServices_FunctionCodes(t *testing.T) {
	codes := []struct {
		got  modbus.FunctionCode
		want modbus.FunctionCode
	}{
		{ReadCoils{}.FunctionCode(), modbus.FuncCodeReadCoils},
		{ReadDiscreteInputs{}.FunctionCode(), modbus.FuncCodeReadDiscreteInputs},
		{ReadHoldingRegisters{}.FunctionCode(), modbus.FuncCodeReadHoldingRegisters},
		{ReadInputRegisters{}.FunctionCode(), modbus.FuncCodeReadInputRegisters},
		{WriteSingleCoil{}.FunctionCode(), modbus.FuncCodeWriteSingleCoil},
	}
	for _, c := range codes {
		if c.got != c.want {
			t.Errorf("function code %v, want %v", c.got, c.want)
		}
	}
}

func TestServices_Validation(t *testing.T) {
	r := modbus.NewAddressRange(0, 2000)
	if err := (ReadCoils{}).CheckRequestValidity(r); err != nil {
		t.Errorf("ReadCoils: %v", err)
	}
	if err := (ReadDiscreteInputs{}).CheckRequestValidity(r); err != nil {
		t.Errorf("ReadDiscreteInputs: %v", err)
	}
	if err := (ReadHoldingRegisters{}).CheckRequestValidity(r); err != modbus.CountTooBigForType {
		t.Errorf("ReadHoldingRegisters: %v", err)
	}
	if err := (ReadInputRegisters{}).CheckRequestValidity(r); err != modbus.CountTooBigForType {
		t.Errorf("ReadInputRegisters: %v", err)
	}
	for _, index := range []uint16{0, 1, 65535} {
		if err := (WriteSingleCoil{}).CheckRequestValidity(modbus.NewIndexed(index, true)); err != nil {
			t.Errorf("WriteSingleCoil(%d): %v", index, err)
		}
	}
}

func TestDecodeBits(t *testing.T) {
	// coils 20..29 = 1 0 1 1 0 0 1 1 | 1 0
	values, err := ReadCoils{}.decode(modbus.NewAddressRange(20, 10), []byte{0x02, 0xCD, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	want := []bool{true, false, true, true, false, false, true, true, true, false}
	if len(values) != len(want) {
		t.Fatalf("got %d values, want %d", len(values), len(want))
	}
	for i, v := range values {
		if v.Index != uint16(20+i) || v.Value != want[i] {
			t.Errorf("value %d = %+v, want {%d %v}", i, v, 20+i, want[i])
		}
	}
}

func TestDecodeRegisters(t *testing.T) {
	values, err := ReadInputRegisters{}.decode(modbus.NewAddressRange(8, 3), []byte{0x06, 0x02, 0x2B, 0x00, 0x00, 0x00, 0x64})
	if err != nil {
		t.Fatal(err)
	}
	want := []modbus.Indexed[uint16]{{Index: 8, Value: 555}, {Index: 9, Value: 0}, {Index: 10, Value: 100}}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecode_BadByteCount(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"Empty", func() error {
			_, err := ReadHoldingRegisters{}.decode(modbus.NewAddressRange(0, 1), nil)
			return err
		}()},
		{"ShortRegisters", func() error {
			_, err := ReadHoldingRegisters{}.decode(modbus.NewAddressRange(0, 2), []byte{0x02, 0x00, 0x01})
			return err
		}()},
		{"CountDisagreesWithData", func() error {
			_, err := ReadHoldingRegisters{}.decode(modbus.NewAddressRange(0, 1), []byte{0x02, 0x00, 0x01, 0x00})
			return err
		}()},
		{"ShortBits", func() error {
			_, err := ReadDiscreteInputs{}.decode(modbus.NewAddressRange(0, 9), []byte{0x01, 0xFF})
			return err
		}()},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, modbus.ErrBadResponse) {
			t.Errorf("%s: expected ErrBadResponse, got %v", tt.name, tt.err)
		}
	}
}

func TestWriteSingleCoil_Codec(t *testing.T) {
	svc := WriteSingleCoil{}
	if got := svc.encode(modbus.NewIndexed(0xAC, true)); !bytes.Equal(got, []byte{0x00, 0xAC, 0xFF, 0x00}) {
		t.Errorf("encode ON = %X", got)
	}
	if got := svc.encode(modbus.NewIndexed(0x0102, false)); !bytes.Equal(got, []byte{0x01, 0x02, 0x00, 0x00}) {
		t.Errorf("encode OFF = %X", got)
	}

	echo, err := svc.decode(modbus.NewIndexed(0xAC, true), []byte{0x00, 0xAC, 0xFF, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if echo != modbus.NewIndexed(0xAC, true) {
		t.Errorf("echo = %+v", echo)
	}

	bad := [][]byte{
		{0x00, 0xAC, 0xFF},             // short
		{0x00, 0xAD, 0xFF, 0x00},       // other address
		{0x00, 0xAC, 0x00, 0x00},       // other value
		{0x00, 0xAC, 0x12, 0x34},       // not a coil value
		{0x00, 0xAC, 0xFF, 0x00, 0x00}, // long
	}
	for _, data := range bad {
		if _, err := svc.decode(modbus.NewIndexed(0xAC, true), data); !errors.Is(err, modbus.ErrBadResponse) {
			t.Errorf("decode(%X): expected ErrBadResponse, got %v", data, err)
		}
	}
}

func TestEnvelope_DeliversOnce(t *testing.T) {
	reply := make(chan Result[[]modbus.Indexed[bool]], 1)
	req := ReadCoils{}.CreateRequest(modbus.NewUnitIdentifier(1), modbus.NewAddressRange(0, 1), reply)

	req.Complete(modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x01, 0x01}}, nil)
	req.Complete(modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x01, 0x00}}, nil)
	req.Abandon()

	first, ok := <-reply
	if !ok || first.Err != nil || len(first.Value) != 1 || !first.Value[0].Value {
		t.Fatalf("unexpected first result: %+v, %v", first, ok)
	}
	if _, ok := <-reply; ok {
		t.Error("a second value was delivered")
	}
}

func TestEnvelope_UnexpectedFunctionCode(t *testing.T) {
	reply := make(chan Result[[]modbus.Indexed[uint16]], 1)
	req := ReadInputRegisters{}.CreateRequest(modbus.NewUnitIdentifier(1), modbus.NewAddressRange(0, 1), reply)
	req.Complete(modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x02, 0x00, 0x00}}, nil)

	if r := <-reply; !errors.Is(r.Err, modbus.ErrBadResponse) {
		t.Errorf("expected ErrBadResponse, got %v", r.Err)
	}
}
