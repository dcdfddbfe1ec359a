package main

import (
	"bytes"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/notify"
	"github.com/srg/devices-monitor/internal/testutils"
	"github.com/srg/devices-monitor/pkg/config"
)

// CommandTestSuite extends FakeDeviceSuite with command testing utilities.
// Command tests run against fake devices and a mock notifier.
type CommandTestSuite struct {
	testutils.FakeDeviceSuite

	origManager    func(string, *logrus.Logger) (device.Manager, error)
	origNotifier   func() (notify.Notifier, error)
	origIsTerminal func() bool
}

func (s *CommandTestSuite) SetupSuite() {
	color.NoColor = true
	s.origManager = newManager
	s.origNotifier = newNotifier
	s.origIsTerminal = isTerminal
}

func (s *CommandTestSuite) TearDownSuite() {
	newManager = s.origManager
	newNotifier = s.origNotifier
	isTerminal = s.origIsTerminal
}

func (s *CommandTestSuite) SetupTest() {
	s.FakeDeviceSuite.SetupTest()

	*passConfig = *config.DefaultConfig()
	watchImmediate = true
	s.Require().NoError(rootCmd.PersistentFlags().Set("log-level", ""))
	s.Require().NoError(rootCmd.PersistentFlags().Set("verbose", "false"))

	newManager = func(string, *logrus.Logger) (device.Manager, error) { return s.Manager, nil }
	newNotifier = func() (notify.Notifier, error) { return s.Notifier, nil }
	isTerminal = func() bool { return false }
}

// ExecuteCommand runs a cobra command with args, returns output and error.
func (s *CommandTestSuite) ExecuteCommand(cmd *cobra.Command, args ...string) (string, error) {
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}
