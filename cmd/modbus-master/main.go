// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-master/client"
	"github.com/ffutop/modbus-master/internal/config"
	"github.com/ffutop/modbus-master/internal/poller"
	"github.com/ffutop/modbus-master/transport"
	"github.com/ffutop/modbus-master/transport/local"
	"github.com/ffutop/modbus-master/transport/rtu"
	"github.com/ffutop/modbus-master/transport/rtuovertcp"
	"github.com/ffutop/modbus-master/transport/tcp"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Configuration file path.")
	logLevel := pflag.StringP("log_level", "v", "", "Log verbosity level (debug, info, warn, error), overrides the config file.")
	pflag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus Master...")

	var channels []*client.Channel
	var pollers []*poller.Poller
	for _, chCfg := range cfg.Channels {
		ch, err := newChannel(chCfg)
		if err != nil {
			slog.Error("Failed to create channel", "channel", chCfg.Name, "err", err)
			continue
		}
		p, err := poller.New(chCfg.Name, ch, chCfg.Polls)
		if err != nil {
			slog.Error("Failed to create poller", "channel", chCfg.Name, "err", err)
			continue
		}
		channels = append(channels, ch)
		pollers = append(pollers, p)
	}

	if len(channels) == 0 {
		slog.Error("No valid channels configured. Exiting.")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg conc.WaitGroup
	for _, ch := range channels {
		ch := ch
		wg.Go(func() {
			if err := ch.Run(ctx); err != nil {
				slog.Error("Channel stopped with error", "channel", ch.Name, "err", err)
			}
		})
	}
	for _, p := range pollers {
		p := p
		wg.Go(func() {
			if err := p.Start(ctx); err != nil {
				slog.Error("Poller stopped with error", "poller", p.Name, "err", err)
			}
		})
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()
	slog.Info("Goodbye.")
}

// newChannel creates the downstream of cfg and the channel owning it.
func newChannel(cfg config.ChannelConfig) (*client.Channel, error) {
	var ds transport.Downstream
	timeout, pause := cfg.Downstream.Tcp.Timeout, cfg.Downstream.Tcp.RqstPause

	switch cfg.Downstream.Type {
	case "tcp":
		t := tcp.NewClient(cfg.Downstream.Tcp.Address)
		t.Timeout = timeout
		ds = t
	case "rtu-over-tcp":
		t := rtuovertcp.NewClient(cfg.Downstream.Tcp.Address)
		t.Timeout = timeout
		ds = t
	case "rtu":
		ds = rtu.NewClient(cfg.Downstream.Serial)
		// the port enforces the response timeout itself
		timeout, pause = 2*cfg.Downstream.Serial.Timeout, cfg.Downstream.Serial.RqstPause
	case "local":
		l, err := local.NewClient(cfg.Downstream.Local)
		if err != nil {
			return nil, err
		}
		ds = l
		pause = 0
	default:
		return nil, fmt.Errorf("unknown downstream type %q", cfg.Downstream.Type)
	}

	ch := client.NewChannel(ds, cfg.QueueSize)
	ch.Name = cfg.Name
	ch.Timeout = timeout
	ch.RqstPause = pause
	return ch, nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
