// internal/machine/build.go

package machine

import (
	"fmt"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"
)

// Build tworzy katalog maszyn z konfiguracji; rodzice powstają przed dziećmi
func Build(cfg *models.Config, opts Options) (*Directory, error) {
	hosts := make(map[string]*models.Host, len(cfg.Machines))
	for i := range cfg.Machines {
		host := &cfg.Machines[i]
		if _, exists := hosts[host.Name]; exists {
			return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("duplicate machine name %q", host.Name), nil)
		}
		hosts[host.Name] = host
	}

	dir := NewDirectory()
	dir.SetTeardownParallelism(cfg.TeardownParallelism)

	created := make(map[string]*RemoteMachine, len(hosts))
	visiting := make(map[string]bool)

	var create func(name string) (*RemoteMachine, error)
	create = func(name string) (*RemoteMachine, error) {
		if m, ok := created[name]; ok {
			return m, nil
		}
		host, ok := hosts[name]
		if !ok {
			return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("unknown parent machine %q", name), nil)
		}
		if visiting[name] {
			return nil, apperr.New(apperr.ValidationError, fmt.Sprintf("proxy chain of machine %q contains a cycle", name), nil)
		}
		visiting[name] = true
		defer delete(visiting, name)

		var parent *RemoteMachine
		if host.Parent != "" {
			p, err := create(host.Parent)
			if err != nil {
				return nil, err
			}
			parent = p
		}

		m, err := New(host, parent, opts)
		if err != nil {
			return nil, err
		}
		if err := dir.Register(m); err != nil {
			return nil, err
		}
		created[name] = m
		return m, nil
	}

	for i := range cfg.Machines {
		if _, err := create(cfg.Machines[i].Name); err != nil {
			return nil, err
		}
	}
	return dir, nil
}
