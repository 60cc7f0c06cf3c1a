// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package client

import (
	"fmt"
	"sync"

	"github.com/ffutop/modbus-master/modbus"
)

// Request is the queue envelope of one validated operation. It is tagged by
// its function code and owns the producer side of the caller's reply handle.
//
// The consumer of the queue must finish every Request with exactly one call
// to Complete or Abandon. Further calls are ignored.
type Request interface {
	FunctionCode() modbus.FunctionCode
	Unit() modbus.UnitIdentifier
	// Payload returns the validated request payload.
	Payload() any
	// PDU encodes the request for the wire.
	PDU() modbus.ProtocolDataUnit
	// Complete decodes resp, or forwards err, to the caller.
	Complete(resp modbus.ProtocolDataUnit, err error)
	// Abandon drops the reply handle without a value. The caller observes
	// modbus.ErrShutdown.
	Abandon()
}

type envelope[Req, Resp any] struct {
	codec codec[Req, Resp]
	unit  modbus.UnitIdentifier
	req   Req

	once  sync.Once
	reply chan<- Result[Resp]
}

func newEnvelope[Req, Resp any](c codec[Req, Resp], unit modbus.UnitIdentifier, req Req, reply chan<- Result[Resp]) *envelope[Req, Resp] {
	return &envelope[Req, Resp]{
		codec: c,
		unit:  unit,
		req:   req,
		reply: reply,
	}
}

func (e *envelope[Req, Resp]) FunctionCode() modbus.FunctionCode { return e.codec.FunctionCode() }

func (e *envelope[Req, Resp]) Unit() modbus.UnitIdentifier { return e.unit }

func (e *envelope[Req, Resp]) Payload() any { return e.req }

func (e *envelope[Req, Resp]) PDU() modbus.ProtocolDataUnit {
	return modbus.ProtocolDataUnit{
		FunctionCode: e.codec.FunctionCode().Value(),
		Data:         e.codec.encode(e.req),
	}
}

func (e *envelope[Req, Resp]) Complete(resp modbus.ProtocolDataUnit, err error) {
	if err != nil {
		e.deliver(Result[Resp]{Err: err})
		return
	}
	value, err := e.decode(resp)
	e.deliver(Result[Resp]{Value: value, Err: err})
}

func (e *envelope[Req, Resp]) decode(resp modbus.ProtocolDataUnit) (Resp, error) {
	var zero Resp
	fc := e.codec.FunctionCode()
	switch resp.FunctionCode {
	case fc.Value():
		return e.codec.decode(e.req, resp.Data)
	case fc.Exception():
		if len(resp.Data) != 1 {
			return zero, fmt.Errorf("%w: exception response data size '%v' does not match expected '%v'", modbus.ErrBadResponse, len(resp.Data), 1)
		}
		return zero, &modbus.ExceptionError{FunctionCode: fc, ExceptionCode: resp.Data[0]}
	default:
		return zero, fmt.Errorf("%w: response function code '%v' does not match request '%v'", modbus.ErrBadResponse, resp.FunctionCode, fc.Value())
	}
}

func (e *envelope[Req, Resp]) Abandon() {
	e.once.Do(func() {
		close(e.reply)
	})
}

func (e *envelope[Req, Resp]) deliver(r Result[Resp]) {
	e.once.Do(func() {
		// reply has capacity 1 and this is the only send
		e.reply <- r
		close(e.reply)
	})
}
