package goble

import (
	"context"
	"errors"
	"fmt"
	"runtime/pprof"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/device"
)

// DefaultAdapterName is the name of the single adapter exposed by go-ble.
const DefaultAdapterName = "default"

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = newPlatformDevice

// ----------------------------
// Manager
// ----------------------------

// Manager exposes the platform BLE device as a single adapter.
type Manager struct {
	logger  *logrus.Logger
	mu      sync.Mutex
	adapter *Adapter
}

// NewManager creates a go-ble manager. The platform device is opened on the first Adapters call.
func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{logger: logger}
}

// Adapters returns the platform device as the only adapter.
func (m *Manager) Adapters(_ context.Context) ([]device.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adapter == nil {
		dev, err := DeviceFactory()
		if err != nil {
			m.logger.WithField("error", err).Error("Failed to create BLE device")
			return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
		}
		m.adapter = newAdapter(dev, m.logger)
	}
	return []device.Adapter{m.adapter}, nil
}

// Close disconnects the peripherals connected by this process and stops the device.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.adapter == nil {
		return nil
	}
	m.adapter.disconnectAll()
	err := m.adapter.dev.Stop()
	m.adapter = nil
	return NormalizeError(err)
}

// ----------------------------
// Adapter
// ----------------------------

// Adapter wraps a ble.Device. Advertisements are collected into a concurrent
// map keyed by address while a scan runs.
type Adapter struct {
	dev         ble.Device
	logger      *logrus.Logger
	peripherals *hashmap.Map[string, *Peripheral]
	seq         atomic.Uint64

	scanMutex sync.Mutex
	cancel    context.CancelFunc
	done      chan error
}

func newAdapter(dev ble.Device, logger *logrus.Logger) *Adapter {
	return &Adapter{
		dev:         dev,
		logger:      logger,
		peripherals: hashmap.New[string, *Peripheral](),
	}
}

// Info returns the adapter name.
func (a *Adapter) Info(_ context.Context) (string, error) {
	return DefaultAdapterName, nil
}

// StartScan runs ble.Device.Scan in the background until StopScan or ctx ends.
// Peripherals from earlier scans are kept only while connected.
func (a *Adapter) StartScan(ctx context.Context, filter device.ScanFilter) error {
	a.scanMutex.Lock()
	defer a.scanMutex.Unlock()

	if a.cancel != nil {
		return device.ErrScanInProgress
	}

	a.forgetIdle()

	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	a.cancel = cancel
	a.done = done

	handler := func(adv ble.Advertisement) {
		a.handleAdvertisement(adv, filter)
	}

	labels := pprof.Labels("goroutine_name", "goble-scan")
	go pprof.Do(scanCtx, labels, func(ctx context.Context) {
		done <- a.dev.Scan(ctx, true, handler)
	})

	a.logger.Info("Starting BLE scan...")
	return nil
}

// StopScan cancels the running scan and waits for it to return.
func (a *Adapter) StopScan(ctx context.Context) error {
	a.scanMutex.Lock()
	defer a.scanMutex.Unlock()

	if a.cancel == nil {
		return nil
	}
	a.cancel()
	cancelled := a.done
	a.cancel, a.done = nil, nil

	var err error
	select {
	case err = <-cancelled:
	case <-ctx.Done():
		return ctx.Err()
	}

	a.logger.WithField("device_count", a.peripherals.Len()).Info("BLE scan completed")
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", NormalizeError(err))
	}
	return nil
}

// handleAdvertisement updates an existing or adds a new peripheral
func (a *Adapter) handleAdvertisement(adv ble.Advertisement, filter device.ScanFilter) {
	services := advertisedServices(adv)
	address := adv.Addr().String()

	if existing, ok := a.peripherals.Get(address); ok {
		existing.update(adv, services)
		return
	}
	if !matchesFilter(services, filter) {
		return
	}

	p, loaded := a.peripherals.GetOrInsert(address, newPeripheral(a, address, a.seq.Add(1)))
	p.update(adv, services)
	if !loaded {
		a.logger.WithFields(logrus.Fields{
			"device":  p.localName(),
			"address": address,
			"rssi":    adv.RSSI(),
		}).Info("Discovered new device")
	}
}

// Peripherals returns the peripherals seen so far, in discovery order.
func (a *Adapter) Peripherals(_ context.Context) ([]device.Peripheral, error) {
	found := make([]*Peripheral, 0, a.peripherals.Len())
	a.peripherals.Range(func(_ string, p *Peripheral) bool {
		found = append(found, p)
		return true
	})
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })

	result := make([]device.Peripheral, 0, len(found))
	for _, p := range found {
		result = append(result, p)
	}
	return result, nil
}

// forgetIdle drops the peripherals of previous scans that this process is
// not connected to, so Peripherals only lists what the new scan sees.
func (a *Adapter) forgetIdle() {
	var idle []string
	a.peripherals.Range(func(address string, p *Peripheral) bool {
		if connected, _ := p.IsConnected(context.Background()); !connected {
			idle = append(idle, address)
		}
		return true
	})
	for _, address := range idle {
		a.peripherals.Del(address)
	}
}

func (a *Adapter) disconnectAll() {
	a.peripherals.Range(func(address string, p *Peripheral) bool {
		if err := p.Disconnect(); err != nil && !errors.Is(err, device.ErrNotConnected) {
			a.logger.WithFields(logrus.Fields{
				"address": address,
				"error":   err,
			}).Warn("Failed to disconnect")
		}
		return true
	})
}

var (
	_ device.Manager = (*Manager)(nil)
	_ device.Adapter = (*Adapter)(nil)
)
