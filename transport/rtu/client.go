// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/modbus"
	rtupacket "github.com/ffutop/modbus-master/modbus/rtu"
)

// Client is a Modbus RTU master on a serial line.
type Client struct {
	serialPort
}

// NewClient allocates and initializes a RTU Client.
func NewClient(cfg config.SerialConfig) *Client {
	client := &Client{}

	client.Config.Address = cfg.Device
	client.Config.BaudRate = cfg.BaudRate
	client.Config.DataBits = cfg.DataBits
	client.Config.StopBits = cfg.StopBits
	client.Config.Parity = cfg.Parity
	client.Config.Timeout = cfg.Timeout
	if cfg.RS485 {
		client.Config.RS485.Enabled = true
		client.Config.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
		client.Config.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
		client.Config.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
		client.Config.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
		client.Config.RS485.RxDuringTx = cfg.RxDuringTx
	}

	client.IdleTimeout = serialIdleTimeout
	return client
}

// Send wraps pdu in an RTU frame, writes it and reads the matching response.
func (mb *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	adu := &rtupacket.ApplicationDataUnit{
		SlaveID: slaveID,
		Pdu:     pdu,
	}
	aduBytes, err := adu.Encode()
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to encode ADU: %w", err)
	}

	respBytes, err := mb.exchange(ctx, aduBytes)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	respAdu, err := rtupacket.Decode(respBytes)
	if err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("failed to decode response ADU: %w", err)
	}
	if err := adu.Verify(respAdu); err != nil {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("verification failed: %w", err)
	}
	return respAdu.Pdu, nil
}

func (mb *Client) exchange(ctx context.Context, aduRequest []byte) ([]byte, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if err := mb.connect(ctx); err != nil {
		return nil, err
	}
	mb.lastActivity = time.Now()
	mb.startCloseTimer()

	slog.Debug("send to modbus slave", "request", hex.EncodeToString(aduRequest))
	if _, err := mb.port.Write(aduRequest); err != nil {
		return nil, err
	}

	bytesToRead := rtupacket.CalculateResponseLength(aduRequest)
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(mb.calculateDelay(len(aduRequest) + bytesToRead)):
	}

	data, err := rtupacket.ReadResponse(aduRequest[0], aduRequest[1], mb.port, time.Now().Add(mb.Config.Timeout))
	if err != nil {
		return nil, err
	}
	slog.Debug("recv from modbus slave", "response", hex.EncodeToString(data))
	return data, nil
}

// calculateDelay returns the line time of chars characters plus the 3.5
// character inter-frame gap.
func (mb *Client) calculateDelay(chars int) time.Duration {
	var characterDelay, frameDelay int

	if mb.BaudRate <= 0 || mb.BaudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / mb.BaudRate
		frameDelay = 35000000 / mb.BaudRate
	}
	return time.Duration(characterDelay*chars+frameDelay) * time.Microsecond
}
