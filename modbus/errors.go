// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"errors"
	"fmt"
)

// InvalidRequestReason tells why a request was rejected before reaching the wire.
type InvalidRequestReason byte

const (
	CountOfZero InvalidRequestReason = iota + 1
	AddressOverflow
	CountTooBigForType
)

func (r InvalidRequestReason) Error() string {
	switch r {
	case CountOfZero:
		return "count of zero"
	case AddressOverflow:
		return "address overflow"
	case CountTooBigForType:
		return "count too big for type"
	default:
		return fmt.Sprintf("invalid request reason %d", byte(r))
	}
}

// InvalidRequestError is returned for requests that violate a protocol range rule.
type InvalidRequestError struct {
	Reason InvalidRequestReason
}

func (e *InvalidRequestError) Error() string {
	return "modbus: invalid request: " + e.Reason.Error()
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Reason
}

var (
	// ErrShutdown is returned when the task owning the link is gone, either
	// before the request was queued or while its reply was pending.
	ErrShutdown = errors.New("modbus: channel task shut down")
	// ErrBadResponse is wrapped by errors describing responses that do not
	// match their request.
	ErrBadResponse = errors.New("modbus: bad response")
)

// Exception codes carried by exception responses.
const (
	ExceptionCodeIllegalFunction                    byte = 0x01
	ExceptionCodeIllegalDataAddress                 byte = 0x02
	ExceptionCodeIllegalDataValue                   byte = 0x03
	ExceptionCodeServerDeviceFailure                byte = 0x04
	ExceptionCodeAcknowledge                        byte = 0x05
	ExceptionCodeServerDeviceBusy                   byte = 0x06
	ExceptionCodeMemoryParityError                  byte = 0x08
	ExceptionCodeGatewayPathUnavailable             byte = 0x0A
	ExceptionCodeGatewayTargetDeviceFailedToRespond byte = 0x0B
)

// ExceptionError is a device-reported exception response.
type ExceptionError struct {
	FunctionCode  FunctionCode
	ExceptionCode byte
}

func (e *ExceptionError) Error() string {
	var name string
	switch e.ExceptionCode {
	case ExceptionCodeIllegalFunction:
		name = "illegal function"
	case ExceptionCodeIllegalDataAddress:
		name = "illegal data address"
	case ExceptionCodeIllegalDataValue:
		name = "illegal data value"
	case ExceptionCodeServerDeviceFailure:
		name = "server device failure"
	case ExceptionCodeAcknowledge:
		name = "acknowledge"
	case ExceptionCodeServerDeviceBusy:
		name = "server device busy"
	case ExceptionCodeMemoryParityError:
		name = "memory parity error"
	case ExceptionCodeGatewayPathUnavailable:
		name = "gateway path unavailable"
	case ExceptionCodeGatewayTargetDeviceFailedToRespond:
		name = "gateway target device failed to respond"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception '%v' (%s), function '%v'", e.ExceptionCode, name, e.FunctionCode)
}
