package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/srg/devices-monitor/internal/device"
)

// CharacteristicConfig represents a characteristic of a fake peripheral.
// Text takes precedence over Value when set.
type CharacteristicConfig struct {
	UUID  string `json:"uuid"`
	Value []byte `json:"value,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ServiceConfig represents a service of a fake peripheral.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the GATT profile of a fake peripheral.
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// FakePeripheral is an in-memory device.Peripheral.
type FakePeripheral struct {
	mu sync.Mutex

	address     string
	props       *device.Properties
	propsErr    error
	connected   bool
	connectErr  error
	discoverErr error
	readErrs    map[uuid.UUID]error

	profile  []device.Service
	values   map[string][]byte
	services []device.Service

	ConnectCalls  int
	DiscoverCalls int
	Reads         []uuid.UUID
}

func charKey(service, char uuid.UUID) string {
	return service.String() + "/" + char.String()
}

func (p *FakePeripheral) Address() string { return p.address }

func (p *FakePeripheral) Properties(context.Context) (*device.Properties, error) {
	if p.propsErr != nil {
		return nil, p.propsErr
	}
	if p.props == nil {
		return nil, nil
	}
	props := *p.props
	return &props, nil
}

func (p *FakePeripheral) IsConnected(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected, nil
}

func (p *FakePeripheral) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls++
	if p.connectErr != nil {
		return p.connectErr
	}
	if p.connected {
		return device.ErrAlreadyConnected
	}
	p.connected = true
	return nil
}

func (p *FakePeripheral) DiscoverServices(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DiscoverCalls++
	if !p.connected {
		return device.ErrNotConnected
	}
	if p.discoverErr != nil {
		return p.discoverErr
	}
	p.services = p.profile
	return nil
}

func (p *FakePeripheral) Services() []device.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.services
}

func (p *FakePeripheral) Read(_ context.Context, char device.Characteristic) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reads = append(p.Reads, char.UUID)
	if err := p.readErrs[char.UUID]; err != nil {
		return nil, err
	}
	key, ok := char.Handle.(string)
	if !ok {
		return nil, device.ErrUnsupported
	}
	return p.values[key], nil
}

// PeripheralBuilder builds FakePeripheral instances.
type PeripheralBuilder struct {
	p       *FakePeripheral
	profile DeviceProfileConfig
}

// NewPeripheralBuilder creates a builder for a disconnected peripheral without services.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{
		p: &FakePeripheral{
			address:  address,
			props:    &device.Properties{Address: address},
			readErrs: map[uuid.UUID]error{},
		},
	}
}

// NewStatusPeripheral builds a connected peripheral exposing Device Information
// (manufacturer, model) and Battery (level) services.
func NewStatusPeripheral(address, name, manufacturer, model string, battery byte) *PeripheralBuilder {
	return NewPeripheralBuilder(address).
		WithName(name).
		Connected().
		WithService("180a").
		WithTextCharacteristic("2a29", manufacturer).
		WithTextCharacteristic("2a24", model).
		WithService("180f").
		WithCharacteristic("2a19", []byte{battery})
}

func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.p.props.LocalName = name
	return b
}

func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.p.props.RSSI = rssi
	return b
}

// WithoutProperties makes Properties return no data.
func (b *PeripheralBuilder) WithoutProperties() *PeripheralBuilder {
	b.p.props = nil
	return b
}

func (b *PeripheralBuilder) WithPropertiesError(err error) *PeripheralBuilder {
	b.p.propsErr = err
	return b
}

func (b *PeripheralBuilder) Connected() *PeripheralBuilder {
	b.p.connected = true
	return b
}

func (b *PeripheralBuilder) WithConnectError(err error) *PeripheralBuilder {
	b.p.connectErr = err
	return b
}

func (b *PeripheralBuilder) WithDiscoverError(err error) *PeripheralBuilder {
	b.p.discoverErr = err
	return b
}

func (b *PeripheralBuilder) WithReadError(charUUID string, err error) *PeripheralBuilder {
	b.p.readErrs[mustParseUUID(charUUID)] = err
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.profile.Services[len(b.profile.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{UUID: uuid, Value: value})
	return b
}

// WithTextCharacteristic adds a string characteristic to the last added service
func (b *PeripheralBuilder) WithTextCharacteristic(uuid, text string) *PeripheralBuilder {
	return b.WithCharacteristic(uuid, []byte(text))
}

// FromJSON replaces the device profile with one described in JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// Build creates the FakePeripheral with the configured profile
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := b.p
	p.profile = nil
	p.values = map[string][]byte{}

	for _, svcConfig := range b.profile.Services {
		svcUUID := mustParseUUID(svcConfig.UUID)
		svc := device.Service{UUID: svcUUID, Primary: true}
		for _, charConfig := range svcConfig.Characteristics {
			charUUID := mustParseUUID(charConfig.UUID)
			key := charKey(svcUUID, charUUID)
			value := charConfig.Value
			if charConfig.Text != "" {
				value = []byte(charConfig.Text)
			}
			p.values[key] = value
			svc.Characteristics = append(svc.Characteristics, device.Characteristic{
				UUID:    charUUID,
				Service: svcUUID,
				Handle:  key,
			})
		}
		p.profile = append(p.profile, svc)
	}
	return p
}

func mustParseUUID(s string) uuid.UUID {
	u, err := device.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("invalid UUID %q: %v", s, err))
	}
	return u
}

var _ device.Peripheral = (*FakePeripheral)(nil)
