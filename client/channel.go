// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

/*
Package client implements a Modbus master on top of a transport.Downstream.

Callers obtain a Session per unit from a Channel. Each Session call validates
its request, puts an envelope on the channel's bounded queue and waits for the
reply. The channel task, started with Channel.Run, is the only goroutine
touching the link: it takes envelopes in FIFO order and performs one exchange
at a time, so requests from many sessions never interleave on the wire.
*/
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/transport"
)

const (
	defaultQueueSize = 16
	defaultTimeout   = time.Second
)

var errAlreadyRunning = errors.New("client: channel task already started")

// Channel owns one link and the request queue feeding it.
type Channel struct {
	Name string
	// Timeout bounds one request/response exchange. Zero disables it.
	Timeout time.Duration
	// RqstPause is the minimum quiet time between two exchanges.
	RqstPause time.Duration

	downstream transport.Downstream
	queue      chan Request
	done       chan struct{}
	started    atomic.Bool
}

// NewChannel creates a channel over downstream. queueSize bounds the number
// of requests waiting for the link; callers block once it is full.
func NewChannel(downstream transport.Downstream, queueSize int) *Channel {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Channel{
		Timeout:    defaultTimeout,
		downstream: downstream,
		queue:      make(chan Request, queueSize),
		done:       make(chan struct{}),
	}
}

// Session returns a handle issuing requests to unit over this channel.
func (c *Channel) Session(unit modbus.UnitIdentifier) *Session {
	return newSession(unit, c.queue, c.done)
}

// Done is closed once the channel task has stopped.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Run drains the queue until ctx is canceled. Requests still queued when Run
// returns are abandoned and their callers see modbus.ErrShutdown. Run may be
// called only once.
func (c *Channel) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errAlreadyRunning
	}
	defer c.shutdown()

	slog.Info("Channel task started", "channel", c.Name)
	if err := c.downstream.Connect(ctx); err != nil {
		// the downstream reconnects on the next exchange
		slog.Error("Failed to connect downstream", "channel", c.Name, "err", err)
	}

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-c.queue:
			if ctx.Err() != nil || !c.pause(ctx, last) {
				req.Abandon()
				return nil
			}
			c.exchange(ctx, req)
			last = time.Now()
		}
	}
}

// pause waits until RqstPause has passed since last. It reports false if ctx
// ended first.
func (c *Channel) pause(ctx context.Context, last time.Time) bool {
	wait := c.RqstPause - time.Since(last)
	if c.RqstPause <= 0 || wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *Channel) exchange(ctx context.Context, req Request) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	unit := req.Unit().Value()
	resp, err := c.downstream.Send(ctx, unit, req.PDU())
	if err != nil {
		slog.Error("Downstream request failed", "channel", c.Name, "unit", unit, "func", req.FunctionCode(), "err", err)
	} else {
		slog.Debug("Downstream request done", "channel", c.Name, "unit", unit, "func", req.FunctionCode())
	}
	req.Complete(resp, err)
}

func (c *Channel) shutdown() {
	close(c.done)
	for {
		select {
		case req := <-c.queue:
			req.Abandon()
		default:
			if err := c.downstream.Close(); err != nil {
				slog.Error("Failed to close downstream", "channel", c.Name, "err", err)
			}
			slog.Info("Channel task stopped", "channel", c.Name)
			return
		}
	}
}
