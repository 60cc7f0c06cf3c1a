// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config defines the global configuration structure
type Config struct {
	Channels []ChannelConfig `mapstructure:"channels"`
	Log      LogConfig       `mapstructure:"log"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// ChannelConfig defines one link to a bus or device and the jobs using it.
type ChannelConfig struct {
	Name       string           `mapstructure:"name"`
	QueueSize  int              `mapstructure:"queue_size"`
	Downstream DownstreamConfig `mapstructure:"downstream"`
	Polls      []PollConfig     `mapstructure:"polls"`
}

// DownstreamConfig defines the slave side of a channel
type DownstreamConfig struct {
	Type   string       `mapstructure:"type"`   // "tcp", "rtu", "rtu-over-tcp", "local"
	Tcp    TcpConfig    `mapstructure:"tcp"`    // Used if Type is "tcp" or "rtu-over-tcp"
	Serial SerialConfig `mapstructure:"serial"` // Used if Type is "rtu"
	Local  LocalConfig  `mapstructure:"local"`  // Used if Type is "local"
}

// LocalConfig defines settings for the in-process device
type LocalConfig struct {
	Storage StorageConfig `mapstructure:"storage"`
}

// StorageConfig defines where the in-process device keeps its image
type StorageConfig struct {
	Type string `mapstructure:"type"` // "memory", "mmap"
	Path string `mapstructure:"path"` // File path for "mmap"
}

// TcpConfig defines TCP settings
type TcpConfig struct {
	Address   string        `mapstructure:"address"` // e.g. "192.168.1.100:502"
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"`
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device    string        `mapstructure:"device"`
	BaudRate  int           `mapstructure:"baud_rate"`
	DataBits  int           `mapstructure:"data_bits"`
	Parity    string        `mapstructure:"parity"`
	StopBits  int           `mapstructure:"stop_bits"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RqstPause time.Duration `mapstructure:"rqst_pause"` // Pause between requests

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// PollConfig defines a periodic operation issued to a list of units.
type PollConfig struct {
	Name     string        `mapstructure:"name"`
	UnitIDs  string        `mapstructure:"unit_ids"` // "1", "1,2", "1-10"
	Function string        `mapstructure:"function"` // see Functions
	Start    uint16        `mapstructure:"start"`
	Count    uint16        `mapstructure:"count"`
	Interval time.Duration `mapstructure:"interval"`
	Value    bool          `mapstructure:"value"` // Used by write_single_coil
}

// Functions lists the operation names a poll may use.
var Functions = []string{
	"read_coils",
	"read_discrete_inputs",
	"read_holding_registers",
	"read_input_registers",
	"write_single_coil",
}

// LoadConfig loads configuration from file
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-master/")
		v.AddConfigPath("$HOME/.modbus-master")
		v.AddConfigPath(".")
	}

	// Set defaults
	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("failed to find config file: %w", err)
		}

		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	for i := range config.Channels {
		ch := &config.Channels[i]
		if ch.Name == "" {
			ch.Name = fmt.Sprintf("channel-%d", i)
		}
		if err := validateChannel(ch); err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		fixupSerial(&ch.Downstream.Serial)
		fixupTcp(&ch.Downstream.Tcp)
	}

	return &config, nil
}

func validateChannel(ch *ChannelConfig) error {
	switch ch.Downstream.Type {
	case "tcp", "rtu-over-tcp":
		if ch.Downstream.Tcp.Address == "" {
			return fmt.Errorf("downstream %s needs tcp.address", ch.Downstream.Type)
		}
	case "rtu":
		if ch.Downstream.Serial.Device == "" {
			return fmt.Errorf("downstream rtu needs serial.device")
		}
	case "local":
	default:
		return fmt.Errorf("unknown downstream type %q", ch.Downstream.Type)
	}

	for j := range ch.Polls {
		p := &ch.Polls[j]
		if p.Name == "" {
			p.Name = fmt.Sprintf("%s-%d", p.Function, j)
		}
		if !slices.Contains(Functions, p.Function) {
			return fmt.Errorf("poll %q: unknown function %q", p.Name, p.Function)
		}
		if strings.TrimSpace(p.UnitIDs) == "" {
			return fmt.Errorf("poll %q: unit_ids is empty", p.Name)
		}
		if p.Interval <= 0 {
			return fmt.Errorf("poll %q: interval must be positive", p.Name)
		}
	}
	return nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout == 0 {
		s.Timeout = 500 * time.Millisecond
	}
	if s.RqstPause == 0 {
		s.RqstPause = 100 * time.Millisecond
	}
}

func fixupTcp(t *TcpConfig) {
	if t.Timeout == 0 {
		t.Timeout = time.Second
	}
}
