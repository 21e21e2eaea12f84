// internal/machine/directory.go

package machine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	apperr "sshOrchestrator/internal/error"
	"sshOrchestrator/internal/models"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Directory to rejestr maszyn jednej sesji testowej, osobno hypervisory i maszyny wirtualne
type Directory struct {
	mu          sync.RWMutex
	hypervisors map[string]*RemoteMachine
	vms         map[string]*RemoteMachine
	parallelism int
}

func NewDirectory() *Directory {
	return &Directory{
		hypervisors: make(map[string]*RemoteMachine),
		vms:         make(map[string]*RemoteMachine),
		parallelism: 1,
	}
}

// SetTeardownParallelism ogranicza liczbę maszyn zatrzymywanych równolegle
func (d *Directory) SetTeardownParallelism(n int) {
	if n < 1 {
		n = 1
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parallelism = n
}

// Register dodaje maszynę; nazwa musi być unikalna w obu mapach
func (d *Directory) Register(m *RemoteMachine) error {
	if m == nil {
		return apperr.New(apperr.ValidationError, "machine cannot be nil", nil)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := m.Name()
	if _, ok := d.hypervisors[name]; ok {
		return apperr.New(apperr.ValidationError, fmt.Sprintf("machine %q already registered as hypervisor", name), nil)
	}
	if _, ok := d.vms[name]; ok {
		return apperr.New(apperr.ValidationError, fmt.Sprintf("machine %q already registered as vm", name), nil)
	}

	if m.Role() == models.RoleVM {
		d.vms[name] = m
	} else {
		d.hypervisors[name] = m
	}
	return nil
}

// Lookup zwraca maszynę o podanej nazwie; brak maszyny jest błędem
func (d *Directory) Lookup(name string) (*RemoteMachine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if m, ok := d.hypervisors[name]; ok {
		return m, nil
	}
	if m, ok := d.vms[name]; ok {
		return m, nil
	}
	return nil, d.notFound(name)
}

// Hypervisor zwraca maszynę tylko z mapy hypervisorów
func (d *Directory) Hypervisor(name string) (*RemoteMachine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if m, ok := d.hypervisors[name]; ok {
		return m, nil
	}
	return nil, d.notFound(name)
}

// VM zwraca maszynę tylko z mapy maszyn wirtualnych
func (d *Directory) VM(name string) (*RemoteMachine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if m, ok := d.vms[name]; ok {
		return m, nil
	}
	return nil, d.notFound(name)
}

func (d *Directory) notFound(name string) error {
	err := apperr.New(apperr.NotFoundError, fmt.Sprintf("machine %q not found", name), nil)
	log.Error("Machine lookup failed", "machine", name)
	return err
}

// AttachNetworkConfig przypisuje konfigurację sieci do maszyny
func (d *Directory) AttachNetworkConfig(name string, cfg *models.NetworkConfig) error {
	m, err := d.Lookup(name)
	if err != nil {
		return err
	}
	if cfg == nil {
		err := apperr.New(apperr.ValidationError, fmt.Sprintf("empty network config for machine %q", name), nil)
		log.Error("Cannot attach network config", "machine", name, "err", err)
		return err
	}
	m.SetNetworkConfig(cfg)
	return nil
}

// NetworkConfig zwraca konfigurację sieci maszyny
func (d *Directory) NetworkConfig(name string) (*models.NetworkConfig, error) {
	m, err := d.Lookup(name)
	if err != nil {
		return nil, err
	}
	cfg := m.NetworkConfig()
	if cfg == nil {
		err := apperr.New(apperr.NotFoundError, fmt.Sprintf("machine %q has no network config", name), nil)
		log.Error("Network config lookup failed", "machine", name)
		return nil, err
	}
	return cfg, nil
}

func (d *Directory) Hypervisors() []*RemoteMachine {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedMachines(d.hypervisors)
}

func (d *Directory) VMs() []*RemoteMachine {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return sortedMachines(d.vms)
}

// All zwraca wszystkie maszyny posortowane po nazwie
func (d *Directory) All() []*RemoteMachine {
	d.mu.RLock()
	defer d.mu.RUnlock()

	all := make(map[string]*RemoteMachine, len(d.hypervisors)+len(d.vms))
	for name, m := range d.hypervisors {
		all[name] = m
	}
	for name, m := range d.vms {
		all[name] = m
	}
	return sortedMachines(all)
}

func sortedMachines(machines map[string]*RemoteMachine) []*RemoteMachine {
	list := make([]*RemoteMachine, 0, len(machines))
	for _, m := range machines {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name() < list[j].Name()
	})
	return list
}

// levels grupuje maszyny według głębokości w łańcuchu proxy
func (d *Directory) levels() [][]*RemoteMachine {
	var levels [][]*RemoteMachine
	for _, m := range d.All() {
		depth := m.Depth()
		for len(levels) <= depth {
			levels = append(levels, nil)
		}
		levels[depth] = append(levels[depth], m)
	}
	return levels
}

// StartOrder zwraca maszyny w kolejności uruchamiania: najpierw korzenie
func (d *Directory) StartOrder() []*RemoteMachine {
	var order []*RemoteMachine
	for _, level := range d.levels() {
		order = append(order, level...)
	}
	return order
}

// Phase to etap uruchamiania maszyny zgłaszany przez StartAllWithProgress
type Phase int

const (
	PhaseConnecting Phase = iota
	PhaseConnected
	PhaseFailed
	PhaseSkipped
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseFailed:
		return "failed"
	case PhaseSkipped:
		return "skipped"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// StartEvent opisuje zmianę stanu jednej maszyny
type StartEvent struct {
	Machine string
	Phase   Phase
	Err     error
}

// StartAll uruchamia maszyny od korzeni w dół
func (d *Directory) StartAll(ctx context.Context) error {
	return d.StartAllWithProgress(ctx, nil)
}

// StartAllWithProgress uruchamia maszyny od korzeni w dół, zgłaszając postęp do notify.
// Maszyny, których rodzic nie wystartował, są pomijane.
func (d *Directory) StartAllWithProgress(ctx context.Context, notify func(StartEvent)) error {
	if notify == nil {
		notify = func(StartEvent) {}
	}

	failed := make(map[*RemoteMachine]bool)
	var errs []error

	for _, level := range d.levels() {
		for _, m := range level {
			if p := m.Parent(); p != nil && failed[p] {
				failed[m] = true
				err := apperr.New(apperr.ConnectionError,
					fmt.Sprintf("machine %q skipped: parent %q not started", m.Name(), p.Name()), nil)
				errs = append(errs, err)
				notify(StartEvent{Machine: m.Name(), Phase: PhaseSkipped, Err: err})
				continue
			}

			notify(StartEvent{Machine: m.Name(), Phase: PhaseConnecting})
			if err := m.Start(ctx); err != nil {
				failed[m] = true
				errs = append(errs, err)
				notify(StartEvent{Machine: m.Name(), Phase: PhaseFailed, Err: err})
				continue
			}
			notify(StartEvent{Machine: m.Name(), Phase: PhaseConnected})
		}
	}
	return errors.Join(errs...)
}

// StopAll zatrzymuje maszyny od liści w górę; w obrębie poziomu równolegle
func (d *Directory) StopAll(ctx context.Context) error {
	d.mu.RLock()
	parallelism := d.parallelism
	d.mu.RUnlock()

	var (
		mu   sync.Mutex
		errs []error
	)

	levels := d.levels()
	for i := len(levels) - 1; i >= 0; i-- {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(parallelism)
		for _, m := range levels[i] {
			m := m
			g.Go(func() error {
				if err := m.Stop(gctx); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
	}
	return errors.Join(errs...)
}

// DisconnectAll zamyka połączenia od liści w górę, bez kończenia procesów i kontenerów
func (d *Directory) DisconnectAll() {
	levels := d.levels()
	for i := len(levels) - 1; i >= 0; i-- {
		for _, m := range levels[i] {
			if err := m.Connection().Disconnect(); err != nil {
				m.logger.Warn("Failed to disconnect", "err", err)
			}
		}
	}
}
