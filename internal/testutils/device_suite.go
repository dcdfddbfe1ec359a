package testutils

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/notify"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// FakeDeviceSuite provides a reusable test suite with a fake device manager,
// an in-memory log recorder and a mock notifier.
//
// Usage:
//
//	type PollerSuite struct {
//	    testutils.FakeDeviceSuite
//	}
//
//	func (s *PollerSuite) TestSomething() {
//	    s.WithAdapter("hci0", testutils.NewStatusPeripheral("AA:BB:CC:DD:EE:FF", "Mouse", "Logitech", "MX", 77))
//	    s.ExpectNotification("Mouse: Logitech MX battery 77%")
//	    ...
//	}
//
// Notifier expectations are asserted after each test.
type FakeDeviceSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Manager  *FakeManager
	Recorder *MemoryRecorder
	Notifier *MockNotifier
}

// SetupTest resets the fakes before each test.
func (s *FakeDeviceSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Manager = NewFakeManager()
	s.Recorder = &MemoryRecorder{}
	s.Notifier = &MockNotifier{}
}

// TearDownTest verifies the notifier expectations.
func (s *FakeDeviceSuite) TearDownTest() {
	s.Notifier.AssertExpectations(s.T())
}

// WithAdapter adds an adapter discovering the given peripherals.
func (s *FakeDeviceSuite) WithAdapter(name string, peripherals ...*PeripheralBuilder) *FakeAdapter {
	built := make([]*FakePeripheral, 0, len(peripherals))
	for _, b := range peripherals {
		built = append(built, b.Build())
	}
	adapter := NewFakeAdapter(name, built...)
	s.Manager.AddAdapter(adapter)
	return adapter
}

// ExpectNotification expects exactly one notification with body.
func (s *FakeDeviceSuite) ExpectNotification(body string) *mock.Call {
	return s.Notifier.On("Notify", mock.Anything, notify.New(body)).Return(nil).Once()
}
