// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package local

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/device"
	"github.com/ffutop/modbus-master/modbus"
)

// Client implements Downstream on top of an in-process device. Every unit id
// addresses the same device.
type Client struct {
	device  *device.Device
	storage device.Storage
}

// NewClient opens the configured storage and creates the device over it.
func NewClient(cfg config.LocalConfig) (*Client, error) {
	storage, err := device.Open(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	image, err := storage.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load device image: %w", err)
	}
	slog.Info("Local device ready", "storage", cfg.Storage.Type)

	return &Client{
		device:  device.New(image, storage),
		storage: storage,
	}, nil
}

// Image exposes the data image, e.g. to seed read-only tables.
func (c *Client) Image() *device.Image {
	return c.device.Image()
}

// Send processes the PDU locally.
func (c *Client) Send(ctx context.Context, slaveID byte, pdu modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if err := ctx.Err(); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return c.device.Process(pdu), nil
}

// Connect is a no-op for the local device.
func (c *Client) Connect(ctx context.Context) error {
	return nil
}

// Close releases the storage.
func (c *Client) Close() error {
	return c.storage.Close()
}
