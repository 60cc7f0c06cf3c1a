// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ffutop/modbus-master/modbus"
)

var ErrRequestTimedOut = errors.New("modbus: request timed out")

type InvalidLengthError struct {
	Length byte
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("invalid length received: %d", e.Length)
}

// CalculateResponseLength returns the expected length of the response to
// the request frame adu.
func CalculateResponseLength(adu []byte) int {
	length := MinSize
	if len(adu) < 6 {
		return length
	}
	count := int(binary.BigEndian.Uint16(adu[4:]))
	switch modbus.FunctionCode(adu[1]) {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		length += 1 + (count+7)/8
	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		length += 1 + count*2
	case modbus.FuncCodeWriteSingleCoil:
		length += 4
	}
	return length
}

// frameReader reads single bytes and enforces the response deadline.
type frameReader struct {
	r        io.Reader
	deadline time.Time
	buf      [1]byte
}

func (fr *frameReader) next() (byte, error) {
	if time.Now().After(fr.deadline) {
		return 0, ErrRequestTimedOut
	}
	if _, err := io.ReadFull(fr.r, fr.buf[:]); err != nil {
		return 0, err
	}
	return fr.buf[0], nil
}

func (fr *frameReader) read(dst []byte) error {
	for i := range dst {
		b, err := fr.next()
		if err != nil {
			return err
		}
		dst[i] = b
	}
	return nil
}

// ReadResponse reads one RTU response frame from r. Bytes preceding the
// expected slave address and function code are discarded.
func ReadResponse(slaveID, functionCode byte, r io.Reader, deadline time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("reader is nil")
	}
	fr := &frameReader{r: r, deadline: deadline}

	var fc byte
	b, err := fr.next()
	for {
		if err != nil {
			return nil, err
		}
		if b != slaveID {
			b, err = fr.next()
			continue
		}
		if fc, err = fr.next(); err != nil {
			return nil, err
		}
		if fc == functionCode || fc == functionCode|modbus.ErrorDelimiter {
			break
		}
		// the rejected byte may itself start the frame
		b = fc
	}

	frame := make([]byte, 2, MaxSize)
	frame[0], frame[1] = slaveID, fc

	var body int
	switch {
	case fc&modbus.ErrorDelimiter != 0:
		body = 1
	case modbus.FunctionCode(fc) == modbus.FuncCodeWriteSingleCoil:
		body = 4
	case modbus.FunctionCode(fc) == modbus.FuncCodeReadCoils,
		modbus.FunctionCode(fc) == modbus.FuncCodeReadDiscreteInputs,
		modbus.FunctionCode(fc) == modbus.FuncCodeReadHoldingRegisters,
		modbus.FunctionCode(fc) == modbus.FuncCodeReadInputRegisters:
		length, err := fr.next()
		if err != nil {
			return nil, err
		}
		if length == 0 || int(length) > MaxSize-5 {
			return nil, &InvalidLengthError{Length: length}
		}
		frame = append(frame, length)
		body = int(length)
	default:
		return nil, fmt.Errorf("functioncode not handled: %d", functionCode)
	}

	start := len(frame)
	frame = frame[:start+body+2]
	if err := fr.read(frame[start:]); err != nil {
		return nil, err
	}
	return frame, nil
}
