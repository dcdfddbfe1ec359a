package goble

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// fakeAdvertisement overrides the ble.Advertisement methods the adapter reads.
type fakeAdvertisement struct {
	ble.Advertisement
	name     string
	addr     string
	rssi     int
	services []ble.UUID
}

func (a *fakeAdvertisement) LocalName() string   { return a.name }
func (a *fakeAdvertisement) Addr() ble.Addr      { return ble.NewAddr(a.addr) }
func (a *fakeAdvertisement) RSSI() int           { return a.rssi }
func (a *fakeAdvertisement) Services() []ble.UUID { return a.services }

// fakeClient overrides the ble.Client methods used for GATT access.
type fakeClient struct {
	ble.Client
	profile   *ble.Profile
	readErr   error
	cancelled bool
}

func (c *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) { return c.profile, nil }

func (c *fakeClient) ReadCharacteristic(char *ble.Characteristic) ([]byte, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return char.Value, nil
}

func (c *fakeClient) CancelConnection() error {
	c.cancelled = true
	return nil
}

// fakeDevice replays advertisements on Scan and hands out fake clients on Dial.
type fakeDevice struct {
	ble.Device
	mu      sync.Mutex
	ads     []ble.Advertisement
	scanErr error
	clients map[string]*fakeClient
	dialed  []string
	stopped bool
}

func (d *fakeDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	for _, adv := range d.ads {
		h(adv)
	}
	if d.scanErr != nil {
		return d.scanErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Dial(_ context.Context, a ble.Addr) (ble.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialed = append(d.dialed, a.String())
	c, ok := d.clients[a.String()]
	if !ok {
		return nil, errors.New("can't dial: device not connected")
	}
	return c, nil
}

func (d *fakeDevice) Stop() error {
	d.stopped = true
	return nil
}

type GoBLETestSuite struct {
	suite.Suite
	helper          *testutils.TestHelper
	originalFactory func() (ble.Device, error)
	dev             *fakeDevice
	client          *fakeClient
}

func (s *GoBLETestSuite) SetupSuite() {
	s.originalFactory = DeviceFactory
}

func (s *GoBLETestSuite) TearDownSuite() {
	DeviceFactory = s.originalFactory
}

func (s *GoBLETestSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.client = &fakeClient{
		profile: &ble.Profile{Services: []*ble.Service{
			{
				UUID: ble.UUID16(0x180A),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.UUID16(0x2A29), Value: []byte("Logitech")},
					{UUID: ble.UUID16(0x2A24), Value: []byte("MX Master 3")},
				},
			},
			{
				UUID: ble.UUID16(0x180F),
				Characteristics: []*ble.Characteristic{
					{UUID: ble.UUID16(0x2A19), Value: []byte{77}},
				},
			},
		}},
	}
	s.dev = &fakeDevice{
		ads: []ble.Advertisement{
			&fakeAdvertisement{name: "Mouse", addr: "aa:bb:cc:dd:ee:ff", rssi: -40, services: []ble.UUID{ble.UUID16(0x180F)}},
			&fakeAdvertisement{name: "Sensor", addr: "11:22:33:44:55:66", rssi: -70, services: []ble.UUID{ble.UUID16(0x181A)}},
			&fakeAdvertisement{name: "", addr: "aa:bb:cc:dd:ee:ff", rssi: -42},
		},
		clients: map[string]*fakeClient{"aa:bb:cc:dd:ee:ff": s.client},
	}
	DeviceFactory = func() (ble.Device, error) { return s.dev, nil }
}

func (s *GoBLETestSuite) scan(filter device.ScanFilter) (*Manager, []device.Peripheral) {
	mgr := NewManager(s.helper.Logger)
	adapters, err := mgr.Adapters(context.Background())
	s.Require().NoError(err, "adapter creation MUST succeed")
	s.Require().Len(adapters, 1, "go-ble MUST expose a single adapter")

	s.Require().NoError(adapters[0].StartScan(context.Background(), filter))
	s.Require().NoError(adapters[0].StopScan(context.Background()))

	peripherals, err := adapters[0].Peripherals(context.Background())
	s.Require().NoError(err)
	return mgr, peripherals
}

func (s *GoBLETestSuite) TestScan_DeduplicatesInDiscoveryOrder() {
	// GOAL: Verify advertisements are merged by address and listed in discovery order
	//
	// TEST SCENARIO: 3 advertisements from 2 addresses → 2 peripherals, name kept from first advertisement

	_, peripherals := s.scan(device.ScanFilter{})

	s.Require().Len(peripherals, 2, "duplicate advertisements MUST be merged")
	s.Equal("aa:bb:cc:dd:ee:ff", peripherals[0].Address())
	s.Equal("11:22:33:44:55:66", peripherals[1].Address())

	props, err := peripherals[0].Properties(context.Background())
	s.Require().NoError(err)
	s.Equal("Mouse", props.LocalName, "empty names MUST NOT overwrite a known name")
	s.Equal(-42, props.RSSI, "RSSI MUST follow the latest advertisement")
	s.Equal([]uuid.UUID{device.BatteryService}, props.Services)

	connected, err := peripherals[0].IsConnected(context.Background())
	s.Require().NoError(err)
	s.False(connected, "scanned peripherals MUST NOT report connected before Connect")
}

func (s *GoBLETestSuite) TestScan_Filter() {
	_, peripherals := s.scan(device.ScanFilter{Services: []uuid.UUID{device.UUID16(0x181A)}})

	s.Require().Len(peripherals, 1)
	s.Equal("11:22:33:44:55:66", peripherals[0].Address())
}

func (s *GoBLETestSuite) TestScan_ForgetsPeripheralsOutOfRange() {
	// GOAL: Verify a new scan only lists peripherals still advertising, plus connected ones
	//
	// TEST SCENARIO: scan 1 sees mouse+sensor, mouse connected → scan 2 sees nothing new → only mouse listed

	mgr := NewManager(s.helper.Logger)
	adapters, err := mgr.Adapters(context.Background())
	s.Require().NoError(err)
	adapter := adapters[0]

	s.Require().NoError(adapter.StartScan(context.Background(), device.ScanFilter{}))
	s.Require().NoError(adapter.StopScan(context.Background()))
	peripherals, err := adapter.Peripherals(context.Background())
	s.Require().NoError(err)
	s.Require().Len(peripherals, 2)
	s.Require().NoError(peripherals[0].Connect(context.Background()))

	s.dev.ads = []ble.Advertisement{
		&fakeAdvertisement{name: "Keyboard", addr: "22:22:22:22:22:22", rssi: -50},
	}
	s.Require().NoError(adapter.StartScan(context.Background(), device.ScanFilter{}))
	s.Require().NoError(adapter.StopScan(context.Background()))

	peripherals, err = adapter.Peripherals(context.Background())
	s.Require().NoError(err)
	s.Require().Len(peripherals, 2, "peripherals out of range MUST be dropped by a new scan")
	s.Equal("aa:bb:cc:dd:ee:ff", peripherals[0].Address(), "connected peripherals MUST be kept")
	s.Equal("22:22:22:22:22:22", peripherals[1].Address())
}

func (s *GoBLETestSuite) TestScan_AlreadyRunning() {
	mgr := NewManager(s.helper.Logger)
	adapters, err := mgr.Adapters(context.Background())
	s.Require().NoError(err)

	s.Require().NoError(adapters[0].StartScan(context.Background(), device.ScanFilter{}))
	defer func() { _ = adapters[0].StopScan(context.Background()) }()

	err = adapters[0].StartScan(context.Background(), device.ScanFilter{})
	s.ErrorIs(err, device.ErrScanInProgress, "second StartScan MUST fail")
}

func (s *GoBLETestSuite) TestScan_NormalizesBluetoothOffError() {
	// GOAL: Verify scan errors are normalized to device sentinels
	//
	// TEST SCENARIO: darwin powered-off error from Scan → StopScan returns ErrBluetoothOff

	s.dev.scanErr = errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")

	mgr := NewManager(s.helper.Logger)
	adapters, err := mgr.Adapters(context.Background())
	s.Require().NoError(err)
	s.Require().NoError(adapters[0].StartScan(context.Background(), device.ScanFilter{}))

	err = adapters[0].StopScan(context.Background())
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *GoBLETestSuite) TestConnectDiscoverRead() {
	// GOAL: Verify the connect → discover → read path over go-ble
	//
	// TEST SCENARIO: Connect mouse → services 180a/180f discovered → battery read returns [77]

	mgr, peripherals := s.scan(device.ScanFilter{})
	mouse := peripherals[0]

	s.Require().NoError(mouse.Connect(context.Background()), "connect MUST succeed")
	connected, err := mouse.IsConnected(context.Background())
	s.Require().NoError(err)
	s.True(connected)

	s.ErrorIs(mouse.Connect(context.Background()), device.ErrAlreadyConnected)

	s.Require().NoError(mouse.DiscoverServices(context.Background()))
	services := mouse.Services()
	s.Require().Len(services, 2)
	s.Equal(device.DeviceInformationService, services[0].UUID)
	s.Equal(device.BatteryService, services[1].UUID)

	char, err := device.GetCharacteristic(services, device.BatteryService, device.BatteryLevelChar)
	s.Require().NoError(err)
	data, err := mouse.Read(context.Background(), char)
	s.Require().NoError(err)
	s.Equal([]byte{77}, data)

	char, err = device.GetCharacteristic(services, device.DeviceInformationService, device.ModelNumberChar)
	s.Require().NoError(err)
	data, err = mouse.Read(context.Background(), char)
	s.Require().NoError(err)
	s.Equal("MX Master 3", string(data))

	s.Require().NoError(mgr.Close())
	s.True(s.client.cancelled, "Close MUST cancel connections made by the process")
	s.True(s.dev.stopped, "Close MUST stop the device")
}

func (s *GoBLETestSuite) TestConnect_Failure() {
	_, peripherals := s.scan(device.ScanFilter{})

	err := peripherals[1].Connect(context.Background())
	s.ErrorIs(err, device.ErrNotConnected, "dial errors MUST be normalized")

	err = peripherals[1].DiscoverServices(context.Background())
	s.ErrorIs(err, device.ErrNotConnected, "discovery without connection MUST fail")
}

func (s *GoBLETestSuite) TestRead_Error() {
	s.client.readErr = errors.New("device not connected")
	_, peripherals := s.scan(device.ScanFilter{})
	mouse := peripherals[0]
	s.Require().NoError(mouse.Connect(context.Background()))
	s.Require().NoError(mouse.DiscoverServices(context.Background()))

	char, err := device.GetCharacteristic(mouse.Services(), device.BatteryService, device.BatteryLevelChar)
	s.Require().NoError(err)

	_, err = mouse.Read(context.Background(), char)
	s.ErrorIs(err, device.ErrNotConnected)

	_, err = mouse.Read(context.Background(), device.Characteristic{UUID: device.BatteryLevelChar, Handle: "bogus"})
	s.ErrorIs(err, device.ErrUnsupported)
}

func (s *GoBLETestSuite) TestDeviceFactoryError() {
	DeviceFactory = func() (ble.Device, error) { return nil, errors.New("can't init hci: no such device") }

	_, err := NewManager(s.helper.Logger).Adapters(context.Background())
	s.ErrorIs(err, device.ErrNotInitialized)
}

func (s *GoBLETestSuite) TestToUUID() {
	u, err := toUUID(ble.UUID16(0x2A19))
	s.Require().NoError(err)
	s.Equal(device.BatteryLevelChar, u)

	u, err = toUUID(ble.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e"))
	s.Require().NoError(err)
	s.Equal("6e400001-b5a3-f393-e0a9-e50e24dcca9e", u.String())

	_, err = toUUID(ble.UUID{1, 2, 3})
	s.Error(err)
}

func TestGoBLETestSuite(t *testing.T) {
	suite.Run(t, new(GoBLETestSuite))
}
