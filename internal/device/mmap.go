// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package device

import (
	"fmt"
	"log/slog"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

const (
	sizeCoils    = MaxAddress + 1
	sizeDiscrete = MaxAddress + 1
	sizeHolding  = (MaxAddress + 1) * 2
	sizeInput    = (MaxAddress + 1) * 2
	totalSize    = sizeCoils + sizeDiscrete + sizeHolding + sizeInput

	offsetCoils    = 0
	offsetDiscrete = offsetCoils + sizeCoils
	offsetHolding  = offsetDiscrete + sizeDiscrete
	offsetInput    = offsetHolding + sizeHolding
)

// MmapStorage keeps the image in a memory-mapped file laid out as
// coils, discrete inputs, holding registers, input registers.
// Registers are stored in host byte order.
type MmapStorage struct {
	path  string
	file  *os.File
	data  mmap.MMap
	image *Image
}

func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

// Load maps the file, creating or resizing it as needed. The returned image
// aliases the mapping until Close, which moves it onto the heap.
func (ms *MmapStorage) Load() (*Image, error) {
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(totalSize) {
		if err := f.Truncate(int64(totalSize)); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data
	ms.image = mapImage(data)
	return ms.image, nil
}

// OnWrite flushes the mapping to disk.
func (ms *MmapStorage) OnWrite(table Table, address, quantity uint16) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "table", table, "address", address, "err", err)
	}
}

// Close unmaps and closes the file. The image from Load stays usable but is
// no longer persisted.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.image != nil {
		ms.image.detach()
		ms.image = nil
	}
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}

func mapImage(data []byte) *Image {
	holding := data[offsetHolding : offsetHolding+sizeHolding]
	input := data[offsetInput : offsetInput+sizeInput]
	return &Image{
		Coils:            data[offsetCoils : offsetCoils+sizeCoils],
		DiscreteInputs:   data[offsetDiscrete : offsetDiscrete+sizeDiscrete],
		HoldingRegisters: unsafe.Slice((*uint16)(unsafe.Pointer(&holding[0])), sizeHolding/2),
		InputRegisters:   unsafe.Slice((*uint16)(unsafe.Pointer(&input[0])), sizeInput/2),
	}
}
