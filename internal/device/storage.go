// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"fmt"
	"log/slog"
)

// Storage keeps a device image between runs.
type Storage interface {
	// Load returns the stored image, or a zeroed one if nothing is stored yet.
	Load() (*Image, error)

	// OnWrite is called after every write to the image.
	OnWrite(table Table, address, quantity uint16)

	Close() error
}

// MemoryStorage keeps nothing.
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load() (*Image, error) {
	return NewImage(), nil
}

func (ms *MemoryStorage) OnWrite(table Table, address, quantity uint16) {}

func (ms *MemoryStorage) Close() error {
	return nil
}

// Open returns the storage of the given type. An empty type selects memory.
func Open(kind, path string) (Storage, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStorage(), nil
	case "mmap":
		if path == "" {
			return nil, fmt.Errorf("device: mmap storage needs a path")
		}
		slog.Info("Using mmap device storage", "path", path)
		return NewMmapStorage(path), nil
	default:
		return nil, fmt.Errorf("device: unknown storage type %q", kind)
	}
}
