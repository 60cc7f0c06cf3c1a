// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package poller

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ffutop/modbus-master/client"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/device"
	"github.com/ffutop/modbus-master/modbus"
	"github.com/ffutop/modbus-master/transport/local"
)

func TestParseUnitIDs(t *testing.T) {
	tests := []struct {
		input   string
		want    []byte
		wantErr bool
	}{
		{input: "1", want: []byte{1}},
		{input: "1,2", want: []byte{1, 2}},
		{input: " 1 , 5-7 ", want: []byte{1, 5, 6, 7}},
		{input: "0,255", want: []byte{0, 255}},
		{input: "", wantErr: true},
		{input: " , ", wantErr: true},
		{input: "7-5", wantErr: true},
		{input: "1-2-3", wantErr: true},
		{input: "256", wantErr: true},
		{input: "a", wantErr: true},
	}

	for _, tt := range tests {
		ids, err := ParseUnitIDs(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseUnitIDs(%q): expected an error, got %v", tt.input, ids)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseUnitIDs(%q): %v", tt.input, err)
			continue
		}
		var got []byte
		for _, id := range ids {
			got = append(got, id.Value())
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseUnitIDs(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func newLocalChannel(t *testing.T) (*client.Channel, *local.Client) {
	t.Helper()
	ds, err := local.NewClient(config.LocalConfig{})
	if err != nil {
		t.Fatal(err)
	}
	ch := client.NewChannel(ds, 4)
	ctx, cancel := context.WithCancel(context.Background())
	go ch.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-ch.Done()
	})
	return ch, ds
}

func TestJob_Execute(t *testing.T) {
	ch, ds := newLocalChannel(t)
	ds.Image().SetRegister(device.TableInputRegisters, 40, 99)
	ds.Image().SetBit(device.TableDiscreteInputs, 3, true)
	s := ch.Session(modbus.NewUnitIdentifier(1))
	ctx := context.Background()

	tests := []struct {
		cfg  config.PollConfig
		want any
	}{
		{
			cfg:  config.PollConfig{Function: "read_input_registers", UnitIDs: "1", Start: 40, Count: 1},
			want: []modbus.Indexed[uint16]{{Index: 40, Value: 99}},
		},
		{
			cfg:  config.PollConfig{Function: "read_discrete_inputs", UnitIDs: "1", Start: 2, Count: 2},
			want: []modbus.Indexed[bool]{{Index: 2}, {Index: 3, Value: true}},
		},
		{
			cfg:  config.PollConfig{Function: "write_single_coil", UnitIDs: "1", Start: 6, Value: true},
			want: modbus.Indexed[bool]{Index: 6, Value: true},
		},
		{
			cfg:  config.PollConfig{Function: "read_coils", UnitIDs: "1", Start: 6, Count: 1},
			want: []modbus.Indexed[bool]{{Index: 6, Value: true}},
		},
		{
			cfg:  config.PollConfig{Function: "read_holding_registers", UnitIDs: "1", Start: 0, Count: 2},
			want: []modbus.Indexed[uint16]{{Index: 0}, {Index: 1}},
		},
	}

	for _, tt := range tests {
		job, err := NewJob(tt.cfg)
		if err != nil {
			t.Fatal(err)
		}
		got, err := job.Execute(ctx, s)
		if err != nil {
			t.Errorf("%s: %v", tt.cfg.Function, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", tt.cfg.Function, diff)
		}
	}
}

func TestJob_ExecuteInvalidRange(t *testing.T) {
	ch, _ := newLocalChannel(t)
	job, err := NewJob(config.PollConfig{Function: "read_holding_registers", UnitIDs: "1", Start: 0, Count: 0})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := job.Execute(context.Background(), ch.Session(modbus.NewUnitIdentifier(1))); err == nil {
		t.Error("expected an error for a count of zero")
	}
}

func TestPoller_Start(t *testing.T) {
	ch, ds := newLocalChannel(t)
	p, err := New("test", ch, []config.PollConfig{
		{Name: "on", Function: "write_single_coil", UnitIDs: "1-3", Start: 11, Value: true, Interval: 10 * time.Millisecond},
		{Name: "read", Function: "read_holding_registers", UnitIDs: "4", Start: 0, Count: 10, Interval: 10 * time.Millisecond},
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for ds.Image().ReadBits(device.TableCoils, modbus.NewAddressRange(11, 1))[0] == 0 {
		if time.Now().After(deadline) {
			t.Fatal("the poll never wrote coil 11")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestNew_BadUnitIDs(t *testing.T) {
	ch, _ := newLocalChannel(t)
	if _, err := New("test", ch, []config.PollConfig{{Name: "x", Function: "read_coils", UnitIDs: "300", Interval: time.Second}}); err == nil {
		t.Error("expected an error for unit id 300")
	}
}
