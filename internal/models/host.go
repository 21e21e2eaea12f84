// internal/models/host.go

package models

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Role określa klasę maszyny w katalogu
type Role string

const (
	RoleHypervisor Role = "hypervisor"
	RoleVM         Role = "vm"
)

const (
	DefaultPort       = 22
	DefaultMaxRetries = 10
)

func (r Role) Valid() bool {
	return r == RoleHypervisor || r == RoleVM
}

// Host opisuje deklaratywnie jedną zdalną maszynę
type Host struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Role        Role           `json:"role" yaml:"role"`
	Address     string         `json:"host_address" yaml:"host_address"`
	Port        int            `json:"port,omitempty" yaml:"port,omitempty"`
	Login       string         `json:"user_name" yaml:"user_name"`
	Key         Key            `json:"key,omitempty" yaml:"key,omitempty"`
	Parent      string         `json:"parent,omitempty" yaml:"parent,omitempty"`
	MaxRetries  int            `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	Network     *NetworkConfig `json:"network,omitempty" yaml:"network,omitempty"`
}

// Addr zwraca adres w formacie host:port
func (h *Host) Addr() string {
	port := h.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(h.Address, strconv.Itoa(port))
}

// Validate sprawdza poprawność danych Host
func (h *Host) Validate() error {
	if strings.TrimSpace(h.Name) == "" {
		return errors.New("machine name cannot be empty")
	}
	if strings.TrimSpace(h.Address) == "" {
		return fmt.Errorf("machine %q: host address cannot be empty", h.Name)
	}
	if h.Login == "" {
		return fmt.Errorf("machine %q: user name cannot be empty", h.Name)
	}
	if h.Port < 0 || h.Port > 65535 {
		return fmt.Errorf("machine %q: invalid port %d", h.Name, h.Port)
	}
	if !h.Role.Valid() {
		return fmt.Errorf("machine %q: invalid role %q", h.Name, h.Role)
	}
	if h.Parent == h.Name {
		return fmt.Errorf("machine %q cannot be its own parent", h.Name)
	}
	if h.MaxRetries < 0 {
		return fmt.Errorf("machine %q: max retries cannot be negative", h.Name)
	}
	return nil
}

// Clone tworzy kopię hosta
func (h *Host) Clone() *Host {
	clone := *h
	if h.Network != nil {
		network := *h.Network
		clone.Network = &network
	}
	return &clone
}
