// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package client

import (
	"context"
	"errors"

	"github.com/ffutop/modbus-master/modbus"
)

// Session issues operations to one unit through a channel's shared queue.
// A Session keeps no per-request state and is safe for concurrent use.
type Session struct {
	unit  modbus.UnitIdentifier
	queue chan<- Request
	done  <-chan struct{}
}

func newSession(unit modbus.UnitIdentifier, queue chan<- Request, done <-chan struct{}) *Session {
	return &Session{unit: unit, queue: queue, done: done}
}

// Unit returns the unit identifier attached to every request of the session.
func (s *Session) Unit() modbus.UnitIdentifier {
	return s.unit
}

// ReadCoils reads a range of coils.
func (s *Session) ReadCoils(ctx context.Context, r modbus.AddressRange) ([]modbus.Indexed[bool], error) {
	return call[modbus.AddressRange, []modbus.Indexed[bool]](ctx, s, ReadCoils{}, r)
}

// ReadDiscreteInputs reads a range of discrete inputs.
func (s *Session) ReadDiscreteInputs(ctx context.Context, r modbus.AddressRange) ([]modbus.Indexed[bool], error) {
	return call[modbus.AddressRange, []modbus.Indexed[bool]](ctx, s, ReadDiscreteInputs{}, r)
}

// ReadHoldingRegisters reads a range of holding registers.
func (s *Session) ReadHoldingRegisters(ctx context.Context, r modbus.AddressRange) ([]modbus.Indexed[uint16], error) {
	return call[modbus.AddressRange, []modbus.Indexed[uint16]](ctx, s, ReadHoldingRegisters{}, r)
}

// ReadInputRegisters reads a range of input registers.
func (s *Session) ReadInputRegisters(ctx context.Context, r modbus.AddressRange) ([]modbus.Indexed[uint16], error) {
	return call[modbus.AddressRange, []modbus.Indexed[uint16]](ctx, s, ReadInputRegisters{}, r)
}

// WriteSingleCoil sets one coil and returns the value echoed by the device.
func (s *Session) WriteSingleCoil(ctx context.Context, v modbus.Indexed[bool]) (modbus.Indexed[bool], error) {
	return call[modbus.Indexed[bool], modbus.Indexed[bool]](ctx, s, WriteSingleCoil{}, v)
}

// call validates req, queues it and waits for its reply. Invalid requests
// never reach the queue.
func call[Req, Resp any](ctx context.Context, s *Session, svc Service[Req, Resp], req Req) (Resp, error) {
	var zero Resp

	if err := svc.CheckRequestValidity(req); err != nil {
		var reason modbus.InvalidRequestReason
		if errors.As(err, &reason) {
			return zero, &modbus.InvalidRequestError{Reason: reason}
		}
		return zero, err
	}

	// a call canceled or shut out before submission never reaches the queue
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	select {
	case <-s.done:
		return zero, modbus.ErrShutdown
	default:
	}

	reply := make(chan Result[Resp], 1)
	request := svc.CreateRequest(s.unit, req, reply)

	select {
	case s.queue <- request:
	case <-s.done:
		return zero, modbus.ErrShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case result, ok := <-reply:
		if !ok {
			return zero, modbus.ErrShutdown
		}
		return result.Value, result.Err
	case <-s.done:
		// the task may have replied just before it stopped
		select {
		case result, ok := <-reply:
			if ok {
				return result.Value, result.Err
			}
		default:
		}
		return zero, modbus.ErrShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
