// Package config loads and validates the per-router TOML configuration
// file (spec.md §6). Per spec.md §1, the loader itself is an external
// collaborator of the routing engine; this package exists to supply the
// RouterConfig struct the core components are built against.
package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	defaultHelloIntervalSec = 5
	defaultLSAIntervalSec   = 10
	defaultDeadIntervalSec  = 20
	defaultUDPPort          = 5000
	defaultControlSocket    = "/var/run/p-ospf.sock"

	keyLen = 32
)

// InterfaceConfig mirrors one `[[interfaces]]` table in the TOML file.
type InterfaceConfig struct {
	Name         string `toml:"name"`
	CapacityMbps uint32 `toml:"capacity_mbps"`
	LinkActive   bool   `toml:"link_active"`
}

// RouterConfig is the fully validated, defaulted configuration for one
// router instance (spec.md §6).
type RouterConfig struct {
	Interfaces []InterfaceConfig `toml:"interfaces"`
	KeyB64     string            `toml:"key"`

	HelloIntervalSec int    `toml:"hello_interval_sec"`
	LSAIntervalSec   int    `toml:"lsa_interval_sec"`
	DeadIntervalSec  int    `toml:"dead_interval_sec"`
	UDPPort          int    `toml:"udp_port"`
	ControlSocket    string `toml:"control_socket_path"`

	// RouterID overrides the default (first admin-active interface's IPv4) when set.
	RouterID string `toml:"router_id"`

	// Key is the decoded 32-byte AES-256 key.
	Key [32]byte `toml:"-"`
}

// Load reads, decodes, defaults, and validates path. Unknown TOML keys are
// warnings, not errors (spec.md §6); BurntSushi/toml's MetaData reports
// them via Undecoded() so callers can log instead of fail.
func Load(path string) (*RouterConfig, []string, error) {
	var cfg RouterConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	var warnings []string
	for _, key := range meta.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown config key %q", key.String()))
	}

	if err := cfg.applyDefaultsAndValidate(); err != nil {
		return nil, warnings, err
	}

	return &cfg, warnings, nil
}

func (c *RouterConfig) applyDefaultsAndValidate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("config: at least one [[interfaces]] entry is required")
	}
	for i, ifc := range c.Interfaces {
		if ifc.Name == "" {
			return fmt.Errorf("config: interfaces[%d] is missing name", i)
		}
	}

	if c.KeyB64 == "" {
		return fmt.Errorf("config: key is required")
	}
	raw, err := base64.StdEncoding.DecodeString(c.KeyB64)
	if err != nil {
		return fmt.Errorf("config: key is not valid base64: %w", err)
	}
	if len(raw) != keyLen {
		return fmt.Errorf("config: key must decode to %d bytes, got %d", keyLen, len(raw))
	}
	copy(c.Key[:], raw)

	if c.HelloIntervalSec <= 0 {
		c.HelloIntervalSec = defaultHelloIntervalSec
	}
	if c.LSAIntervalSec <= 0 {
		c.LSAIntervalSec = defaultLSAIntervalSec
	}
	if c.DeadIntervalSec <= 0 {
		c.DeadIntervalSec = defaultDeadIntervalSec
	}
	if c.UDPPort <= 0 {
		c.UDPPort = defaultUDPPort
	}
	if c.ControlSocket == "" {
		c.ControlSocket = defaultControlSocket
	}

	return nil
}

func (c *RouterConfig) HelloInterval() time.Duration {
	return time.Duration(c.HelloIntervalSec) * time.Second
}

func (c *RouterConfig) LSAInterval() time.Duration {
	return time.Duration(c.LSAIntervalSec) * time.Second
}

func (c *RouterConfig) DeadInterval() time.Duration {
	return time.Duration(c.DeadIntervalSec) * time.Second
}

// LSDBMaxAge is the LSDB entry expiry window: 3 × lsa_interval (spec.md §4.4).
func (c *RouterConfig) LSDBMaxAge() time.Duration {
	return 3 * c.LSAInterval()
}
