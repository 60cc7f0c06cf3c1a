// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package poller issues configured operations periodically through a channel.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ffutop/modbus-master/client"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/modbus"
)

// ParseUnitIDs parses a list of unit ids (e.g. "1,2,5-10").
func ParseUnitIDs(input string) ([]modbus.UnitIdentifier, error) {
	var ids []modbus.UnitIdentifier
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := parseID(ranges[0])
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := parseID(ranges[1])
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := start; i <= end; i++ {
				ids = append(ids, modbus.NewUnitIdentifier(byte(i)))
			}
		} else {
			id, err := parseID(part)
			if err != nil {
				return nil, fmt.Errorf("invalid id: %w", err)
			}
			ids = append(ids, modbus.NewUnitIdentifier(byte(id)))
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no unit ids in %q", input)
	}
	return ids, nil
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if id < 0 || id > 255 {
		return 0, fmt.Errorf("id out of range: %d", id)
	}
	return id, nil
}

// Job is one configured operation.
type Job struct {
	Name     string
	Function string
	Units    []modbus.UnitIdentifier
	Range    modbus.AddressRange
	Value    bool
	Interval time.Duration
}

// NewJob builds a job from its configuration.
func NewJob(cfg config.PollConfig) (*Job, error) {
	units, err := ParseUnitIDs(cfg.UnitIDs)
	if err != nil {
		return nil, fmt.Errorf("poll %q: %w", cfg.Name, err)
	}
	return &Job{
		Name:     cfg.Name,
		Function: cfg.Function,
		Units:    units,
		Range:    modbus.NewAddressRange(cfg.Start, cfg.Count),
		Value:    cfg.Value,
		Interval: cfg.Interval,
	}, nil
}

// Execute issues the job's operation once through s and returns the decoded
// values.
func (j *Job) Execute(ctx context.Context, s *client.Session) (any, error) {
	switch j.Function {
	case "read_coils":
		return s.ReadCoils(ctx, j.Range)
	case "read_discrete_inputs":
		return s.ReadDiscreteInputs(ctx, j.Range)
	case "read_holding_registers":
		return s.ReadHoldingRegisters(ctx, j.Range)
	case "read_input_registers":
		return s.ReadInputRegisters(ctx, j.Range)
	case "write_single_coil":
		return s.WriteSingleCoil(ctx, modbus.NewIndexed(j.Range.Start, j.Value))
	default:
		return nil, fmt.Errorf("unknown function %q", j.Function)
	}
}

// Poller runs a set of jobs against one channel.
type Poller struct {
	Name    string
	channel *client.Channel
	jobs    []*Job
}

// New creates a poller for the polls of one channel.
func New(name string, ch *client.Channel, polls []config.PollConfig) (*Poller, error) {
	p := &Poller{Name: name, channel: ch}
	for _, cfg := range polls {
		job, err := NewJob(cfg)
		if err != nil {
			return nil, err
		}
		p.jobs = append(p.jobs, job)
	}
	return p, nil
}

// Start runs every job until ctx is canceled.
func (p *Poller) Start(ctx context.Context) error {
	var wg conc.WaitGroup
	for _, job := range p.jobs {
		job := job
		wg.Go(func() {
			slog.Info("Starting poll", "poller", p.Name, "job", job.Name, "interval", job.Interval)
			p.run(ctx, job)
		})
	}
	wg.Wait()
	return nil
}

func (p *Poller) run(ctx context.Context, job *Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		p.poll(ctx, job)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll issues job to all its units at once; the channel serializes them.
func (p *Poller) poll(ctx context.Context, job *Job) {
	var wg conc.WaitGroup
	for _, unit := range job.Units {
		s := p.channel.Session(unit)
		wg.Go(func() {
			values, err := job.Execute(ctx, s)
			if err != nil {
				slog.Error("Poll failed", "poller", p.Name, "job", job.Name, "unit", s.Unit().Value(), "err", err)
				return
			}
			slog.Info("Poll done", "poller", p.Name, "job", job.Name, "unit", s.Unit().Value(), "values", values)
		})
	}
	wg.Wait()
}
