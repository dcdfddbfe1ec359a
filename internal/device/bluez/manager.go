package bluez

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/device"
)

// DefaultResolvePollInterval is how often DiscoverServices re-checks ServicesResolved.
const DefaultResolvePollInterval = 250 * time.Millisecond

// Manager lists BlueZ adapters on a D-Bus connection.
type Manager struct {
	bus          Bus
	logger       *logrus.Logger
	pollInterval time.Duration
}

// NewManager creates a Manager on top of bus. The Manager owns the bus and closes it on Close.
func NewManager(bus Bus, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		bus:          bus,
		logger:       logger,
		pollInterval: DefaultResolvePollInterval,
	}
}

// Adapters returns every object implementing org.bluez.Adapter1, sorted by object path.
func (m *Manager) Adapters(ctx context.Context) ([]device.Adapter, error) {
	objects, err := m.bus.ManagedObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}

	paths := make([]dbus.ObjectPath, 0)
	for p, ifaces := range objects {
		if _, ok := ifaces[adapterIface]; ok {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	adapters := make([]device.Adapter, 0, len(paths))
	for _, p := range paths {
		adapters = append(adapters, &Adapter{manager: m, path: p, props: objects[p][adapterIface]})
	}
	m.logger.WithField("adapters", len(adapters)).Debug("Listed BlueZ adapters")
	return adapters, nil
}

// Close releases the bus connection.
func (m *Manager) Close() error {
	return m.bus.Close()
}

// ----------------------------
// Adapter
// ----------------------------

// Adapter is a BlueZ controller such as /org/bluez/hci0.
type Adapter struct {
	manager *Manager
	path    dbus.ObjectPath
	props   map[string]dbus.Variant
}

// Path returns the D-Bus object path of the adapter.
func (a *Adapter) Path() dbus.ObjectPath {
	return a.path
}

// Info describes the adapter as "hci0 (AA:BB:CC:DD:EE:FF, alias)".
func (a *Adapter) Info(_ context.Context) (string, error) {
	name := path.Base(string(a.path))
	address, _ := variantValue[string](a.props, "Address")
	alias, _ := variantValue[string](a.props, "Alias")

	details := make([]string, 0, 2)
	if address != "" {
		details = append(details, address)
	}
	if alias != "" {
		details = append(details, alias)
	}
	if len(details) == 0 {
		return name, nil
	}
	return fmt.Sprintf("%s (%s)", name, strings.Join(details, ", ")), nil
}

// StartScan sets an LE discovery filter and starts discovery.
func (a *Adapter) StartScan(ctx context.Context, filter device.ScanFilter) error {
	opts := map[string]dbus.Variant{
		"Transport": dbus.MakeVariant("le"),
	}
	if len(filter.Services) > 0 {
		uuids := make([]string, 0, len(filter.Services))
		for _, u := range filter.Services {
			uuids = append(uuids, u.String())
		}
		opts["UUIDs"] = dbus.MakeVariant(uuids)
	}

	if call := a.manager.bus.Call(ctx, a.path, adapterIface+".SetDiscoveryFilter", opts); call.Err != nil {
		return fmt.Errorf("failed to set discovery filter on %s: %w", a.path, NormalizeError(call.Err))
	}
	if call := a.manager.bus.Call(ctx, a.path, adapterIface+".StartDiscovery"); call.Err != nil {
		return fmt.Errorf("failed to start discovery on %s: %w", a.path, NormalizeError(call.Err))
	}

	a.manager.logger.WithField("adapter", a.path).Debug("Discovery started")
	return nil
}

// StopScan stops discovery.
func (a *Adapter) StopScan(ctx context.Context) error {
	if call := a.manager.bus.Call(ctx, a.path, adapterIface+".StopDiscovery"); call.Err != nil {
		return fmt.Errorf("failed to stop discovery on %s: %w", a.path, NormalizeError(call.Err))
	}
	a.manager.logger.WithField("adapter", a.path).Debug("Discovery stopped")
	return nil
}

// Peripherals returns the org.bluez.Device1 objects of this adapter, sorted by object path.
// BlueZ also lists devices that are paired or connected without being in range of the scan.
func (a *Adapter) Peripherals(ctx context.Context) ([]device.Peripheral, error) {
	objects, err := a.manager.bus.ManagedObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list peripherals: %w", err)
	}

	prefix := string(a.path) + "/"
	paths := make([]dbus.ObjectPath, 0)
	for p, ifaces := range objects {
		if _, ok := ifaces[deviceIface]; !ok {
			continue
		}
		if strings.HasPrefix(string(p), prefix) {
			paths = append(paths, p)
		}
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	peripherals := make([]device.Peripheral, 0, len(paths))
	for _, p := range paths {
		address, ok := variantValue[string](objects[p][deviceIface], "Address")
		if !ok {
			address = AddrFromPath(p)
		}
		peripherals = append(peripherals, &Peripheral{manager: a.manager, path: p, address: address})
	}
	return peripherals, nil
}

// ----------------------------
// Peripheral
// ----------------------------

// Peripheral is a org.bluez.Device1 object.
type Peripheral struct {
	manager  *Manager
	path     dbus.ObjectPath
	address  string
	services []device.Service
}

// Address returns the MAC address of the peripheral.
func (p *Peripheral) Address() string {
	return p.address
}

func (p *Peripheral) deviceProps(ctx context.Context) (map[string]dbus.Variant, error) {
	objects, err := p.manager.bus.ManagedObjects(ctx)
	if err != nil {
		return nil, err
	}
	return objects[p.path][deviceIface], nil
}

// Properties returns nil, nil when BlueZ no longer knows the device.
func (p *Peripheral) Properties(ctx context.Context) (*device.Properties, error) {
	props, err := p.deviceProps(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read properties of %s: %w", p.address, err)
	}
	if props == nil {
		return nil, nil
	}

	result := &device.Properties{Address: p.address}
	if name, ok := variantValue[string](props, "Alias"); ok {
		result.LocalName = name
	} else if name, ok := variantValue[string](props, "Name"); ok {
		result.LocalName = name
	}
	if rssi, ok := variantValue[int16](props, "RSSI"); ok {
		result.RSSI = int(rssi)
	}
	if uuids, ok := variantValue[[]string](props, "UUIDs"); ok {
		for _, s := range uuids {
			if u, err := uuid.Parse(s); err == nil {
				result.Services = append(result.Services, u)
			}
		}
	}
	return result, nil
}

// IsConnected reports the Connected property of the device.
func (p *Peripheral) IsConnected(ctx context.Context) (bool, error) {
	props, err := p.deviceProps(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read connection state of %s: %w", p.address, err)
	}
	if props == nil {
		return false, fmt.Errorf("%w: peripheral %s disappeared", device.ErrNotConnected, p.address)
	}
	connected, _ := variantValue[bool](props, "Connected")
	return connected, nil
}

// Connect calls Device1.Connect.
func (p *Peripheral) Connect(ctx context.Context) error {
	p.manager.logger.WithField("address", p.address).Info("Connecting to BLE device...")
	if call := p.manager.bus.Call(ctx, p.path, deviceIface+".Connect"); call.Err != nil {
		return fmt.Errorf("failed to connect to device with address %q: %w", p.address, NormalizeError(call.Err))
	}
	return nil
}

// DiscoverServices waits until BlueZ has resolved the GATT database of the
// device, bounded by ctx, and then collects its services and characteristics.
func (p *Peripheral) DiscoverServices(ctx context.Context) error {
	ticker := time.NewTicker(p.manager.pollInterval)
	defer ticker.Stop()

	for {
		objects, err := p.manager.bus.ManagedObjects(ctx)
		if err != nil {
			return fmt.Errorf("failed to discover services of %s: %w", p.address, err)
		}
		props, ok := objects[p.path][deviceIface]
		if !ok {
			return fmt.Errorf("%w: peripheral %s disappeared", device.ErrNotConnected, p.address)
		}
		if resolved, _ := variantValue[bool](props, "ServicesResolved"); resolved {
			p.services = collectServices(objects, p.path)
			p.manager.logger.WithFields(logrus.Fields{
				"address":  p.address,
				"services": len(p.services),
			}).Debug("Profile discovered successfully")
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: services of %s not resolved: %v", device.ErrTimeout, p.address, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Services returns the services found by DiscoverServices.
func (p *Peripheral) Services() []device.Service {
	return p.services
}

// Read calls GattCharacteristic1.ReadValue on the characteristic object path.
func (p *Peripheral) Read(ctx context.Context, char device.Characteristic) ([]byte, error) {
	charPath, ok := char.Handle.(dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("%w: characteristic %s has no BlueZ object path", device.ErrUnsupported, device.ShortUUID(char.UUID))
	}

	call := p.manager.bus.Call(ctx, charPath, gattCharIface+".ReadValue", map[string]dbus.Variant{})
	if call.Err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", device.ShortUUID(char.UUID), NormalizeError(call.Err))
	}

	var data []byte
	if err := call.Store(&data); err != nil {
		return nil, fmt.Errorf("failed to decode read result: %w", err)
	}
	return data, nil
}

// collectServices builds the GATT tree of the device at devicePath.
// Services and characteristics are ordered by object path, which follows handle order.
func collectServices(objects ManagedObjects, devicePath dbus.ObjectPath) []device.Service {
	prefix := string(devicePath) + "/"

	svcPaths := make([]dbus.ObjectPath, 0)
	charPaths := make([]dbus.ObjectPath, 0)
	for p, ifaces := range objects {
		if !strings.HasPrefix(string(p), prefix) {
			continue
		}
		if _, ok := ifaces[gattServiceIface]; ok {
			svcPaths = append(svcPaths, p)
		}
		if _, ok := ifaces[gattCharIface]; ok {
			charPaths = append(charPaths, p)
		}
	}
	sort.Slice(svcPaths, func(i, j int) bool { return svcPaths[i] < svcPaths[j] })
	sort.Slice(charPaths, func(i, j int) bool { return charPaths[i] < charPaths[j] })

	index := make(map[dbus.ObjectPath]int, len(svcPaths))
	services := make([]device.Service, 0, len(svcPaths))
	for _, sp := range svcPaths {
		props := objects[sp][gattServiceIface]
		raw, _ := variantValue[string](props, "UUID")
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		primary, _ := variantValue[bool](props, "Primary")
		index[sp] = len(services)
		services = append(services, device.Service{UUID: id, Primary: primary})
	}

	for _, cp := range charPaths {
		props := objects[cp][gattCharIface]
		raw, _ := variantValue[string](props, "UUID")
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		svcPath, ok := variantValue[dbus.ObjectPath](props, "Service")
		if !ok {
			svcPath = dbus.ObjectPath(path.Dir(string(cp)))
		}
		i, ok := index[svcPath]
		if !ok {
			continue
		}
		services[i].Characteristics = append(services[i].Characteristics, device.Characteristic{
			UUID:    id,
			Service: services[i].UUID,
			Handle:  cp,
		})
	}
	return services
}

// AddrFromPath extracts the MAC from a device path: .../dev_AA_BB_CC_DD_EE_FF -> AA:BB:CC:DD:EE:FF.
func AddrFromPath(p dbus.ObjectPath) string {
	base := path.Base(string(p))
	if !strings.HasPrefix(base, "dev_") {
		return ""
	}
	return strings.ReplaceAll(strings.TrimPrefix(base, "dev_"), "_", ":")
}

var (
	_ device.Manager    = (*Manager)(nil)
	_ device.Adapter    = (*Adapter)(nil)
	_ device.Peripheral = (*Peripheral)(nil)
)
