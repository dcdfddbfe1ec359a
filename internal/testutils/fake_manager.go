package testutils

import (
	"context"
	"sync"

	"github.com/srg/devices-monitor/internal/device"
)

// FakeAdapter is an in-memory device.Adapter returning a fixed peripheral list.
type FakeAdapter struct {
	mu sync.Mutex

	Name        string
	peripherals []device.Peripheral
	InfoErr     error
	StartErr    error
	StopErr     error
	ListErr     error

	StartCalls int
	StopCalls  int
	Filters    []device.ScanFilter
}

// NewFakeAdapter creates an adapter that discovers peripherals on every scan.
func NewFakeAdapter(name string, peripherals ...*FakePeripheral) *FakeAdapter {
	a := &FakeAdapter{Name: name}
	for _, p := range peripherals {
		a.peripherals = append(a.peripherals, p)
	}
	return a
}

func (a *FakeAdapter) Info(context.Context) (string, error) {
	if a.InfoErr != nil {
		return "", a.InfoErr
	}
	return a.Name, nil
}

func (a *FakeAdapter) StartScan(_ context.Context, filter device.ScanFilter) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StartCalls++
	a.Filters = append(a.Filters, filter)
	return a.StartErr
}

func (a *FakeAdapter) StopScan(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.StopCalls++
	return a.StopErr
}

func (a *FakeAdapter) Peripherals(context.Context) ([]device.Peripheral, error) {
	if a.ListErr != nil {
		return nil, a.ListErr
	}
	return a.peripherals, nil
}

// FakeManager is an in-memory device.Manager.
type FakeManager struct {
	adapters []device.Adapter
	Err      error
	Closed   bool
}

// NewFakeManager creates a manager exposing adapters in order.
func NewFakeManager(adapters ...*FakeAdapter) *FakeManager {
	m := &FakeManager{}
	for _, a := range adapters {
		m.adapters = append(m.adapters, a)
	}
	return m
}

func (m *FakeManager) Adapters(context.Context) ([]device.Adapter, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.adapters, nil
}

func (m *FakeManager) Close() error {
	m.Closed = true
	return nil
}

var (
	_ device.Manager = (*FakeManager)(nil)
	_ device.Adapter = (*FakeAdapter)(nil)
)

// AddAdapter appends an adapter to the manager.
func (m *FakeManager) AddAdapter(a *FakeAdapter) {
	m.adapters = append(m.adapters, a)
}
