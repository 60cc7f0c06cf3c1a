// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.
package tcp

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ffutop/modbus-master/modbus"
)

// serve accepts connections on a loopback listener and answers every request
// frame with reply(request).
func serve(t *testing.T, reply func(req []byte) []byte) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					header := make([]byte, 6)
					if _, err := io.ReadFull(c, header); err != nil {
						return
					}
					body := make([]byte, binary.BigEndian.Uint16(header[4:]))
					if _, err := io.ReadFull(c, body); err != nil {
						return
					}
					resp := reply(append(header, body...))
					if resp == nil {
						return
					}
					c.Write(resp)
				}
			}(conn)
		}
	}()
	return listener.Addr().String()
}

func TestClient_Send(t *testing.T) {
	addr := serve(t, func(req []byte) []byte {
		// ReadHoldingRegisters (0x03) -> Return 2 bytes: AA BB
		respPDU := []byte{req[7], 0x02, 0xAA, 0xBB}
		resp := make([]byte, 7+len(respPDU))
		copy(resp, req[:4])
		binary.BigEndian.PutUint16(resp[4:], uint16(1+len(respPDU)))
		resp[6] = req[6]
		copy(resp[7:], respPDU)
		return resp
	})

	client := NewClient(addr)
	client.Timeout = 1 * time.Second
	defer client.Close()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x01, 0x00, 0x01}}
	for i := 0; i < 3; i++ {
		resp, err := client.Send(context.Background(), 1, pdu)
		if err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		if resp.FunctionCode != 0x03 {
			t.Errorf("Expected funcCode 0x03, got %02X", resp.FunctionCode)
		}
		if !bytes.Equal(resp.Data, []byte{0x02, 0xAA, 0xBB}) {
			t.Errorf("Data mismatch: %X", resp.Data)
		}
	}
}

func TestClient_TransactionIDMismatch(t *testing.T) {
	addr := serve(t, func(req []byte) []byte {
		resp := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x05, req[6], 0x03, 0x02, 0x00, 0x01}
		binary.BigEndian.PutUint16(resp, binary.BigEndian.Uint16(req)+100)
		return resp
	})

	client := NewClient(addr)
	client.Timeout = 1 * time.Second
	defer client.Close()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x03, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	if _, err := client.Send(context.Background(), 1, pdu); err == nil {
		t.Error("Expected verification error, got nil")
	}
}

func TestClient_Timeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			// Read but never write back
			buf := make([]byte, 16)
			conn.Read(buf)
			time.Sleep(2 * time.Second)
			conn.Close()
		}
	}()

	client := NewClient(listener.Addr().String())
	client.Timeout = 200 * time.Millisecond
	defer client.Close()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	start := time.Now()
	if _, err := client.Send(context.Background(), 1, pdu); err == nil {
		t.Error("Expected timeout error, got nil")
	}
	if time.Since(start) > time.Second {
		t.Errorf("Send did not honour the timeout")
	}
}

func TestClient_MalformedResponse(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer listener.Close()

	go func() {
		conn, _ := listener.Accept()
		if conn != nil {
			buf := make([]byte, 512)
			conn.Read(buf)
			conn.Write([]byte{0x00, 0x01, 0x00}) // Too short header
			conn.Close()
		}
	}()

	client := NewClient(listener.Addr().String())
	client.Timeout = 1 * time.Second
	defer client.Close()

	pdu := modbus.ProtocolDataUnit{FunctionCode: 0x01, Data: []byte{0x00, 0x00, 0x00, 0x01}}
	if _, err := client.Send(context.Background(), 1, pdu); err == nil {
		t.Error("Expected error on malformed response")
	}
}

func TestADU_EncodeDecode(t *testing.T) {
	adu := &ApplicationDataUnit{
		TransactionID: 0x1234,
		SlaveID:       0x11,
		Pdu:           modbus.ProtocolDataUnit{FunctionCode: 0x05, Data: []byte{0x00, 0xAC, 0xFF, 0x00}},
	}
	raw, err := adu.Encode()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x12, 0x34, 0x00, 0x00, 0x00, 0x06, 0x11, 0x05, 0x00, 0xAC, 0xFF, 0x00}
	if !bytes.Equal(raw, want) {
		t.Fatalf("Encode mismatch.\nWant: %X\nGot:  %X", want, raw)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if err := adu.Verify(decoded); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
	if _, err := Decode(raw[:len(raw)-1]); err == nil {
		t.Error("expected length mismatch error")
	}
}
