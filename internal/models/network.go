// internal/models/network.go

package models

// NetworkConfig opisuje gościa reprezentowanego przez maszynę w scenariuszach testowych
type NetworkConfig struct {
	IPv4       string `json:"ipv4,omitempty" yaml:"ipv4,omitempty"`
	IPv6       string `json:"ipv6,omitempty" yaml:"ipv6,omitempty"`
	PCI        string `json:"pci,omitempty" yaml:"pci,omitempty"`
	UnderlayIP string `json:"underlay_ip,omitempty" yaml:"underlay_ip,omitempty"`
	VNI        uint32 `json:"vni,omitempty" yaml:"vni,omitempty"`
}
