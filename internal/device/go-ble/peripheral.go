package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/device"
)

// Peripheral is a device seen in advertisements. go-ble has no view of
// connections made by other processes, so a Peripheral only reports itself
// connected after Connect.
type Peripheral struct {
	adapter *Adapter
	address string
	seq     uint64

	mu       sync.RWMutex
	name     string
	rssi     int
	advSvcs  []uuid.UUID
	client   ble.Client
	services []device.Service
}

func newPeripheral(a *Adapter, address string, seq uint64) *Peripheral {
	return &Peripheral{adapter: a, address: address, seq: seq}
}

func (p *Peripheral) update(adv ble.Advertisement, services []uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name := adv.LocalName(); name != "" {
		p.name = name
	}
	p.rssi = adv.RSSI()
	if len(services) > 0 {
		p.advSvcs = services
	}
}

func (p *Peripheral) localName() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// Address returns the platform address (MAC on linux, UUID on darwin).
func (p *Peripheral) Address() string {
	return p.address
}

// Properties returns the latest advertisement data.
func (p *Peripheral) Properties(_ context.Context) (*device.Properties, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return &device.Properties{
		Address:   p.address,
		LocalName: p.name,
		RSSI:      p.rssi,
		Services:  append([]uuid.UUID(nil), p.advSvcs...),
	}, nil
}

// IsConnected reports whether this process holds a connection to the peripheral.
func (p *Peripheral) IsConnected(_ context.Context) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.client != nil, nil
}

// Connect dials the peripheral.
func (p *Peripheral) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return device.ErrAlreadyConnected
	}

	p.adapter.logger.WithField("address", p.address).Info("Connecting to BLE device...")
	client, err := p.adapter.dev.Dial(ctx, ble.NewAddr(p.address))
	if err != nil {
		p.adapter.logger.WithFields(logrus.Fields{
			"address": p.address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", p.address, NormalizeError(err))
	}
	p.client = client
	return nil
}

// Disconnect cancels the connection made by Connect.
func (p *Peripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return device.ErrNotConnected
	}
	err := p.client.CancelConnection()
	p.client = nil
	p.services = nil
	return NormalizeError(err)
}

// DiscoverServices discovers the full GATT profile of the connected peripheral.
func (p *Peripheral) DiscoverServices(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return fmt.Errorf("%w: %s", device.ErrNotConnected, p.address)
	}

	p.adapter.logger.WithField("address", p.address).Debug("Discovering services and characteristics...")
	profile, err := p.client.DiscoverProfile(true)
	if err != nil {
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	services := make([]device.Service, 0, len(profile.Services))
	for _, bleSvc := range profile.Services {
		svcUUID, err := toUUID(bleSvc.UUID)
		if err != nil {
			p.adapter.logger.WithField("error", err).Warn("Skipping service with malformed UUID")
			continue
		}
		svc := device.Service{UUID: svcUUID, Primary: true}
		for _, bleChar := range bleSvc.Characteristics {
			charUUID, err := toUUID(bleChar.UUID)
			if err != nil {
				continue
			}
			svc.Characteristics = append(svc.Characteristics, device.Characteristic{
				UUID:    charUUID,
				Service: svcUUID,
				Handle:  bleChar,
			})
		}
		services = append(services, svc)
	}
	p.services = services

	p.adapter.logger.WithFields(logrus.Fields{
		"address":  p.address,
		"services": len(services),
	}).Debug("Profile discovered successfully")
	return nil
}

// Services returns the services found by DiscoverServices.
func (p *Peripheral) Services() []device.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.services
}

type readResult struct {
	data []byte
	err  error
}

// Read reads a characteristic. go-ble reads are not cancellable; a cancelled
// ctx returns early and the pending read result is dropped.
func (p *Peripheral) Read(ctx context.Context, char device.Characteristic) ([]byte, error) {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		return nil, fmt.Errorf("%w: %s", device.ErrNotConnected, p.address)
	}
	bleChar, ok := char.Handle.(*ble.Characteristic)
	if !ok {
		return nil, fmt.Errorf("%w: characteristic %s has no go-ble handle", device.ErrUnsupported, device.ShortUUID(char.UUID))
	}

	result := make(chan readResult, 1)
	go func() {
		data, err := client.ReadCharacteristic(bleChar)
		result <- readResult{data: data, err: err}
	}()

	select {
	case r := <-result:
		if r.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", device.ShortUUID(char.UUID), NormalizeError(r.err))
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: reading characteristic %s: %v", device.ErrTimeout, device.ShortUUID(char.UUID), ctx.Err())
	}
}

var _ device.Peripheral = (*Peripheral)(nil)
