// internal/models/config.go

package models

import (
	"fmt"
	"time"
)

const (
	DefaultPidFile      = "/tmp/pids.txt"
	DefaultLogDir       = "/tmp"
	DefaultSudo         = "sudo"
	DefaultInitialDelay = time.Second
	DefaultDockerSocket = "/var/run/docker.sock"
)

// Tryby czyszczenia kontenerów
const (
	ContainerCleanupCLI  = "cli"
	ContainerCleanupAPI  = "api"
	ContainerCleanupNone = "none"
)

// Tryby transferu plików
const (
	TransferSFTP = "sftp"
	TransferSCP  = "scp"
)

// Polityki weryfikacji klucza hosta
const (
	HostKeyInsecure   = "insecure"
	HostKeyKnownHosts = "known_hosts"
	HostKeyAcceptNew  = "accept-new"
)

// Config to cała deklaratywna konfiguracja sesji testowej
type Config struct {
	KeyFile             string        `json:"key_file,omitempty" yaml:"key_file,omitempty"`
	PidFile             string        `json:"pid_file,omitempty" yaml:"pid_file,omitempty"`
	LogDir              string        `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	Sudo                string        `json:"sudo,omitempty" yaml:"sudo,omitempty"`
	InitialDelay        time.Duration `json:"initial_delay,omitempty" yaml:"initial_delay,omitempty"`
	ConnectTimeout      time.Duration `json:"connect_timeout,omitempty" yaml:"connect_timeout,omitempty"`
	HostKeyPolicy       string        `json:"host_key_policy,omitempty" yaml:"host_key_policy,omitempty"`
	KnownHostsFile      string        `json:"known_hosts_file,omitempty" yaml:"known_hosts_file,omitempty"`
	ContainerCleanup    string        `json:"container_cleanup,omitempty" yaml:"container_cleanup,omitempty"`
	DockerSocket        string        `json:"docker_socket,omitempty" yaml:"docker_socket,omitempty"`
	Transfer            string        `json:"transfer,omitempty" yaml:"transfer,omitempty"`
	TeardownParallelism int           `json:"teardown_parallelism,omitempty" yaml:"teardown_parallelism,omitempty"`
	Machines            []Host        `json:"machines" yaml:"machines"`
}

// ApplyDefaults uzupełnia brakujące wartości domyślne
func (c *Config) ApplyDefaults() {
	if c.PidFile == "" {
		c.PidFile = DefaultPidFile
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.Sudo == "" {
		c.Sudo = DefaultSudo
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HostKeyPolicy == "" {
		c.HostKeyPolicy = HostKeyInsecure
	}
	if c.ContainerCleanup == "" {
		c.ContainerCleanup = ContainerCleanupCLI
	}
	if c.DockerSocket == "" {
		c.DockerSocket = DefaultDockerSocket
	}
	if c.Transfer == "" {
		c.Transfer = TransferSFTP
	}
	if c.TeardownParallelism <= 0 {
		c.TeardownParallelism = 1
	}
	for i := range c.Machines {
		host := &c.Machines[i]
		if host.Port == 0 {
			host.Port = DefaultPort
		}
		if host.MaxRetries == 0 {
			host.MaxRetries = DefaultMaxRetries
		}
		if host.Key.Path == "" {
			host.Key.Path = c.KeyFile
		}
		if host.Role == "" {
			host.Role = RoleHypervisor
			if host.Parent != "" {
				host.Role = RoleVM
			}
		}
	}
}

// Validate sprawdza spójność całej konfiguracji: unikalne nazwy, istniejący rodzice, brak cykli
func (c *Config) Validate() error {
	switch c.ContainerCleanup {
	case "", ContainerCleanupCLI, ContainerCleanupAPI, ContainerCleanupNone:
	default:
		return fmt.Errorf("unknown container cleanup mode %q", c.ContainerCleanup)
	}
	switch c.Transfer {
	case "", TransferSFTP, TransferSCP:
	default:
		return fmt.Errorf("unknown transfer mode %q", c.Transfer)
	}
	switch c.HostKeyPolicy {
	case "", HostKeyInsecure, HostKeyAcceptNew:
	case HostKeyKnownHosts:
		if c.KnownHostsFile == "" {
			return fmt.Errorf("host key policy %q requires known_hosts_file", c.HostKeyPolicy)
		}
	default:
		return fmt.Errorf("unknown host key policy %q", c.HostKeyPolicy)
	}

	byName := make(map[string]*Host, len(c.Machines))
	for i := range c.Machines {
		host := &c.Machines[i]
		if err := host.Validate(); err != nil {
			return err
		}
		if err := host.Key.Validate(); err != nil {
			return fmt.Errorf("machine %q: %v", host.Name, err)
		}
		if _, exists := byName[host.Name]; exists {
			return fmt.Errorf("duplicate machine name %q", host.Name)
		}
		byName[host.Name] = host
	}

	for _, host := range byName {
		if host.Parent == "" {
			continue
		}
		if _, ok := byName[host.Parent]; !ok {
			return fmt.Errorf("machine %q: unknown parent %q", host.Name, host.Parent)
		}
		// Wykrywanie cykli w łańcuchu proxy
		seen := map[string]bool{host.Name: true}
		for parent := host.Parent; parent != ""; parent = byName[parent].Parent {
			if seen[parent] {
				return fmt.Errorf("machine %q: proxy chain contains a cycle", host.Name)
			}
			seen[parent] = true
		}
	}

	return nil
}

// FindHost szuka hosta po nazwie
func (c *Config) FindHost(name string) (*Host, bool) {
	for i := range c.Machines {
		if c.Machines[i].Name == name {
			return &c.Machines[i], true
		}
	}
	return nil, false
}
