// Package config loads the adapter's YAML configuration, the way
// tonylturner-cipdip's internal/manifest loads a run manifest: a plain
// struct with yaml tags, read once at startup with gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the external interface surface named in spec.md §6, plus the
// identity/interface values the ambient Identity and TCP/IP Interface
// objects report.
type Config struct {
	TCPAddr  string `yaml:"tcp_addr"`
	UDPAddr  string `yaml:"udp_addr"`
	TickMs   int64  `yaml:"tick_ms"`
	BufferSize       int `yaml:"buffer_size"`
	TimeToLive       int `yaml:"time_to_live"`
	MaxTCPSockets    int `yaml:"max_tcp_sockets"`
	StartingMulticastAddress string `yaml:"starting_multicast_address"`

	MetricsAddr string `yaml:"metrics_addr"`

	Identity IdentityConfig `yaml:"identity"`
	Interface InterfaceConfig `yaml:"interface"`

	Assemblies []AssemblyConfig `yaml:"assemblies"`
}

// IdentityConfig carries the Identity Object's reported attributes.
type IdentityConfig struct {
	VendorID     uint16 `yaml:"vendor_id"`
	DeviceType   uint16 `yaml:"device_type"`
	ProductCode  uint16 `yaml:"product_code"`
	RevisionMaj  uint8  `yaml:"revision_major"`
	RevisionMin  uint8  `yaml:"revision_minor"`
	SerialNumber uint32 `yaml:"serial_number"`
	ProductName  string `yaml:"product_name"`
}

// InterfaceConfig carries the TCP/IP Interface Object's reported values.
type InterfaceConfig struct {
	IPAddress   string `yaml:"ip_address"`
	NetworkMask string `yaml:"network_mask"`
	Gateway     string `yaml:"gateway"`
	HostName    string `yaml:"host_name"`
}

// AssemblyConfig declares one statically-provisioned Assembly instance.
type AssemblyConfig struct {
	InstanceID uint32 `yaml:"instance_id"`
	Size       int    `yaml:"size"`
}

// Default returns the configuration the adapter runs with when no file is
// given: the well-known EtherNet/IP ports, a 10ms connection-manager tick,
// and a buffer sized for one encapsulation frame plus header.
func Default() Config {
	return Config{
		TCPAddr:                  "0.0.0.0:44818",
		UDPAddr:                  "0.0.0.0:2222",
		TickMs:                   10,
		BufferSize:               540,
		TimeToLive:               1,
		MaxTCPSockets:            10,
		StartingMulticastAddress: "239.192.1.0",
		MetricsAddr:              "127.0.0.1:9600",
		Identity: IdentityConfig{
			VendorID:    0x0001,
			DeviceType:  0x0C, // Communications Adapter
			ProductCode: 1,
			RevisionMaj: 1,
			ProductName: "cipforge-adapter",
		},
		Interface: InterfaceConfig{
			HostName: "cipforge-adapter",
		},
	}
}

// Load reads and parses a YAML configuration file, starting from Default so
// an omitted field keeps its default rather than zeroing out.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
