package amqp

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the file form of the engine options.
//
//	[connection]
//	container_id   = "worker-1"
//	hostname       = "broker.local"
//	idle_timeout   = "30s"
//	max_frame_size = 65536
//	max_sessions   = 16
//
//	[session]
//	incoming_window = 5000
//	outgoing_window = 5000
//	max_links       = 64
//
//	[sender]
//	settle_mode          = "mixed"
//	receiver_settle_mode = "first"
//
//	[receiver]
//	settle_mode      = "second"
//	credit           = 100
//	max_message_size = 1048576
type Config struct {
	Connection ConnectionConfig `toml:"connection"`
	Session    SessionConfig    `toml:"session"`
	Sender     LinkConfig       `toml:"sender"`
	Receiver   LinkConfig       `toml:"receiver"`
}

// ConnectionConfig maps the [connection] table.
type ConnectionConfig struct {
	ContainerID  string         `toml:"container_id"`
	HostName     string         `toml:"hostname"`
	IdleTimeout  string         `toml:"idle_timeout"`
	MaxFrameSize uint32         `toml:"max_frame_size"`
	MaxSessions  uint16         `toml:"max_sessions"`
	Timeout      string         `toml:"timeout"`
	CloseTimeout string         `toml:"close_timeout"`
	Properties   map[string]any `toml:"properties"`
}

// SessionConfig maps the [session] table.
type SessionConfig struct {
	IncomingWindow uint32 `toml:"incoming_window"`
	OutgoingWindow uint32 `toml:"outgoing_window"`
	MaxLinks       uint32 `toml:"max_links"`
}

// LinkConfig maps the [sender] and [receiver] tables.
type LinkConfig struct {
	Name               string   `toml:"name"`
	SettleMode         string   `toml:"settle_mode"`
	ReceiverSettleMode string   `toml:"receiver_settle_mode"`
	SenderSettleMode   string   `toml:"sender_settle_mode"`
	Credit             uint32   `toml:"credit"`
	MaxMessageSize     uint64   `toml:"max_message_size"`
	Durability         string   `toml:"durability"`
	ExpiryPolicy       string   `toml:"expiry_policy"`
	ExpiryTimeout      uint32   `toml:"expiry_timeout"`
	Capabilities       []string `toml:"capabilities"`
}

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("load amqp config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("load amqp config: %w", err)
	}
	return &cfg, nil
}

// ParseConfig reads a TOML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse amqp config: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("parse amqp config: %w", err)
	}
	return &cfg, nil
}

func checkUndecoded(meta toml.MetaData) error {
	var unknown []string
	for _, key := range meta.Undecoded() {
		// free-form table
		if len(key) > 1 && key[0] == "connection" && key[1] == "properties" {
			continue
		}
		unknown = append(unknown, key.String())
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown keys: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// ConnOptions converts the [connection] table.
func (c *Config) ConnOptions() (*ConnOptions, error) {
	cc := c.Connection
	opts := &ConnOptions{
		ContainerID:  strings.TrimSpace(cc.ContainerID),
		HostName:     strings.TrimSpace(cc.HostName),
		MaxFrameSize: cc.MaxFrameSize,
		MaxSessions:  cc.MaxSessions,
		Properties:   cc.Properties,
	}
	var err error
	if opts.IdleTimeout, err = parseDuration("idle_timeout", cc.IdleTimeout); err != nil {
		return nil, err
	}
	if opts.Timeout, err = parseDuration("timeout", cc.Timeout); err != nil {
		return nil, err
	}
	if opts.CloseTimeout, err = parseDuration("close_timeout", cc.CloseTimeout); err != nil {
		return nil, err
	}
	if opts.MaxFrameSize != 0 && opts.MaxFrameSize < minMaxFrameSize {
		return nil, fmt.Errorf("invalid max_frame_size %d", opts.MaxFrameSize)
	}
	return opts, nil
}

// SessionOptions converts the [session] table.
func (c *Config) SessionOptions() *SessionOptions {
	return &SessionOptions{
		IncomingWindow: c.Session.IncomingWindow,
		OutgoingWindow: c.Session.OutgoingWindow,
		MaxLinks:       c.Session.MaxLinks,
	}
}

// SenderOptions converts the [sender] table.
func (c *Config) SenderOptions() (*SenderOptions, error) {
	lc := c.Sender
	opts := &SenderOptions{
		Name:          lc.Name,
		ExpiryTimeout: lc.ExpiryTimeout,
		Capabilities:  lc.Capabilities,
	}
	var err error
	if lc.SettleMode != "" {
		if opts.SettlementMode, err = parseSenderSettleMode(lc.SettleMode); err != nil {
			return nil, err
		}
	}
	if lc.ReceiverSettleMode != "" {
		if opts.RequestedReceiverSettleMode, err = parseReceiverSettleMode(lc.ReceiverSettleMode); err != nil {
			return nil, err
		}
	}
	if opts.Durability, err = parseDurability(lc.Durability); err != nil {
		return nil, err
	}
	opts.ExpiryPolicy = ExpiryPolicy(lc.ExpiryPolicy)
	if opts.ExpiryPolicy != "" {
		if err := opts.ExpiryPolicy.Validate(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

// ReceiverOptions converts the [receiver] table.
func (c *Config) ReceiverOptions() (*ReceiverOptions, error) {
	lc := c.Receiver
	opts := &ReceiverOptions{
		Name:           lc.Name,
		Credit:         lc.Credit,
		MaxMessageSize: lc.MaxMessageSize,
		ExpiryTimeout:  lc.ExpiryTimeout,
		Capabilities:   lc.Capabilities,
	}
	var err error
	if lc.SettleMode != "" {
		if opts.SettlementMode, err = parseReceiverSettleMode(lc.SettleMode); err != nil {
			return nil, err
		}
	}
	if lc.SenderSettleMode != "" {
		if opts.RequestedSenderSettleMode, err = parseSenderSettleMode(lc.SenderSettleMode); err != nil {
			return nil, err
		}
	}
	if opts.Durability, err = parseDurability(lc.Durability); err != nil {
		return nil, err
	}
	opts.ExpiryPolicy = ExpiryPolicy(lc.ExpiryPolicy)
	if opts.ExpiryPolicy != "" {
		if err := opts.ExpiryPolicy.Validate(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func parseDuration(key, v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func parseSenderSettleMode(v string) (*SenderSettleMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "unsettled":
		return ModeUnsettled.Ptr(), nil
	case "settled":
		return ModeSettled.Ptr(), nil
	case "mixed":
		return ModeMixed.Ptr(), nil
	default:
		return nil, fmt.Errorf("invalid sender settle mode %q", v)
	}
}

func parseReceiverSettleMode(v string) (*ReceiverSettleMode, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "first":
		return ModeFirst.Ptr(), nil
	case "second":
		return ModeSecond.Ptr(), nil
	default:
		return nil, fmt.Errorf("invalid receiver settle mode %q", v)
	}
}

func parseDurability(v string) (Durability, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "none":
		return DurabilityNone, nil
	case "configuration":
		return DurabilityConfiguration, nil
	case "unsettled-state", "unsettled_state":
		return DurabilityUnsettledState, nil
	default:
		return 0, fmt.Errorf("invalid durability %q", v)
	}
}
