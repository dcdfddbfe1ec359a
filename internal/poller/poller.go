// Package poller runs one scan-and-report pass over the host Bluetooth adapters:
// it scans, reads manufacturer, model and battery level from the connected
// peripherals, appends a CSV row and raises a desktop notification.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/notify"
)

// Progress phases reported to OnProgress callbacks.
const (
	PhaseScanning  = "Scanning"
	PhaseReading   = "Reading"
	PhaseReporting = "Reporting"
)

// Recorder persists one rendered report.
type Recorder interface {
	Append(ts time.Time, msg string) error
}

// Options tune a pass.
type Options struct {
	// ScanDuration is how long each adapter scans before peripherals are listed.
	ScanDuration time.Duration `default:"2s"`

	// Connect connects to peripherals that are not connected yet.
	// Peripherals that fail to connect are skipped.
	Connect bool `default:"false"`

	// SkipIncomplete skips peripherals missing an expected GATT feature
	// instead of aborting the pass.
	SkipIncomplete bool `default:"false"`
}

// AdapterReport is the outcome of one adapter.
type AdapterReport struct {
	Adapter     string
	Peripherals int      // peripherals discovered by the scan
	Statuses    *Statuses
	Skipped     []string // addresses skipped for an incomplete GATT layout
	Message     string   // rendered text, empty when nothing was reported
}

// Reported tells whether a row and a notification were produced.
func (r *AdapterReport) Reported() bool {
	return r.Message != ""
}

// Result is the outcome of a pass.
type Result struct {
	RunID   string
	Reports []*AdapterReport
}

// Poller runs passes against a device.Manager.
type Poller struct {
	manager  device.Manager
	recorder Recorder
	notifier notify.Notifier
	logger   *logrus.Logger
	opts     Options
	progress func(phase string)
	now      func() time.Time
}

// New creates a Poller. Zero Options fields take their defaults.
func New(manager device.Manager, recorder Recorder, notifier notify.Notifier, logger *logrus.Logger, opts Options) *Poller {
	defaults.SetDefaults(&opts)
	if logger == nil {
		logger = logrus.New()
	}
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Poller{
		manager:  manager,
		recorder: recorder,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		progress: func(string) {},
		now:      time.Now,
	}
}

// OnProgress registers a callback receiving the phase of the adapter being processed.
func (p *Poller) OnProgress(fn func(phase string)) {
	if fn == nil {
		fn = func(string) {}
	}
	p.progress = fn
}

// Run performs one pass. Adapters and peripherals are processed strictly in
// sequence; the first fatal error ends the pass and is returned together with
// the reports gathered so far.
func (p *Poller) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: NewRunID(p.now())}
	logger := p.logger.WithField("run_id", result.RunID)

	adapters, err := p.manager.Adapters(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list adapters: %w", err)
	}
	if len(adapters) == 0 {
		logger.Error("No Bluetooth adapters found")
		return result, nil
	}

	for _, adapter := range adapters {
		report, err := p.pollAdapter(ctx, logger, adapter)
		if report != nil {
			result.Reports = append(result.Reports, report)
		}
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (p *Poller) pollAdapter(ctx context.Context, logger *logrus.Entry, adapter device.Adapter) (*AdapterReport, error) {
	info, err := adapter.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get adapter info: %w", err)
	}
	logger = logger.WithField("adapter", info)
	logger.Debugf("Starting scan on %s...", info)

	p.progress(PhaseScanning)
	peripherals, err := p.scan(ctx, adapter)
	if err != nil {
		return nil, fmt.Errorf("scan on %s failed: %w", info, err)
	}

	report := &AdapterReport{
		Adapter:     info,
		Peripherals: len(peripherals),
		Statuses:    NewStatuses(),
	}
	if len(peripherals) == 0 {
		logger.Error("BLE peripheral devices were not found")
		return report, nil
	}

	p.progress(PhaseReading)
	for _, peripheral := range peripherals {
		status, ok, err := p.pollPeripheral(ctx, logger, peripheral)
		if err != nil {
			if p.opts.SkipIncomplete && errors.Is(err, device.ErrFeatureMissing) {
				logger.WithFields(logrus.Fields{
					"address": peripheral.Address(),
					"error":   err,
				}).Warn("Skipping peripheral with incomplete GATT layout")
				report.Skipped = append(report.Skipped, peripheral.Address())
				continue
			}
			return report, err
		}
		if ok {
			report.Statuses.Set(status.Address, status)
		}
	}

	p.progress(PhaseReporting)
	message := Render(report.Statuses)
	if err := p.recorder.Append(p.now(), message); err != nil {
		return report, fmt.Errorf("failed to write log: %w", err)
	}
	if err := p.notifier.Notify(ctx, notify.New(message)); err != nil {
		return report, err
	}
	report.Message = message

	logger.WithField("devices", report.Statuses.Len()).Info(message)
	return report, nil
}

// scan runs a scan for the configured dwell period and lists the peripherals found.
func (p *Poller) scan(ctx context.Context, adapter device.Adapter) ([]device.Peripheral, error) {
	if err := adapter.StartScan(ctx, device.ScanFilter{}); err != nil {
		return nil, fmt.Errorf("can't start scan: %w", err)
	}

	timer := time.NewTimer(p.opts.ScanDuration)
	defer timer.Stop()

	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// the scan must stop even when ctx is already cancelled
	stopErr := adapter.StopScan(context.WithoutCancel(ctx))
	if waitErr != nil {
		return nil, waitErr
	}
	if stopErr != nil {
		return nil, fmt.Errorf("can't stop scan: %w", stopErr)
	}

	return adapter.Peripherals(ctx)
}

// pollPeripheral reads the status of a connected peripheral. ok is false when
// the peripheral is not connected and was not connected by this pass.
func (p *Poller) pollPeripheral(ctx context.Context, logger *logrus.Entry, peripheral device.Peripheral) (DeviceStatus, bool, error) {
	props, err := peripheral.Properties(ctx)
	if err != nil {
		return DeviceStatus{}, false, fmt.Errorf("failed to get properties of %s: %w", peripheral.Address(), err)
	}
	if props == nil {
		return DeviceStatus{}, false, fmt.Errorf("%w: %s", device.ErrMalformedPeripheral, peripheral.Address())
	}
	name := props.DisplayName()
	logger = logger.WithFields(logrus.Fields{
		"address": peripheral.Address(),
		"device":  name,
	})

	connected, err := peripheral.IsConnected(ctx)
	if err != nil {
		return DeviceStatus{}, false, fmt.Errorf("failed to get connection state of %s: %w", name, err)
	}
	if !connected {
		if !p.opts.Connect {
			logger.Debug("Peripheral is not connected")
			return DeviceStatus{}, false, nil
		}
		logger.Info("Connecting to peripheral...")
		if err := peripheral.Connect(ctx); err != nil {
			logger.WithField("error", err).Warn("Error connecting to peripheral, skipping")
			return DeviceStatus{}, false, nil
		}
	}

	if err := peripheral.DiscoverServices(ctx); err != nil {
		return DeviceStatus{}, false, fmt.Errorf("failed to discover services of %s: %w", name, err)
	}
	logger.Debug("Discovered peripheral services")

	services := peripheral.Services()
	manufacturer, err := p.readChar(ctx, peripheral, services, device.DeviceInformationService, device.ManufacturerNameChar)
	if err != nil {
		return DeviceStatus{}, false, err
	}
	model, err := p.readChar(ctx, peripheral, services, device.DeviceInformationService, device.ModelNumberChar)
	if err != nil {
		return DeviceStatus{}, false, err
	}
	battery, err := p.readChar(ctx, peripheral, services, device.BatteryService, device.BatteryLevelChar)
	if err != nil {
		return DeviceStatus{}, false, err
	}
	level, err := parseBattery(battery)
	if err != nil {
		return DeviceStatus{}, false, fmt.Errorf("%s: %w", name, err)
	}

	status := DeviceStatus{
		Address:      peripheral.Address(),
		Name:         name,
		Manufacturer: decodeText(manufacturer),
		Model:        decodeText(model),
		BatteryLevel: level,
	}
	logger.WithField("battery", status.BatteryLevel).Info("Battery value read")
	return status, true, nil
}

func (p *Poller) readChar(ctx context.Context, peripheral device.Peripheral, services []device.Service, service, char uuid.UUID) ([]byte, error) {
	c, err := device.GetCharacteristic(services, service, char)
	if err != nil {
		var nf *device.NotFoundError
		if errors.As(err, &nf) {
			nf.Device = peripheral.Address()
		}
		return nil, err
	}
	data, err := peripheral.Read(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s of %s: %w", device.ShortUUID(char), peripheral.Address(), err)
	}
	return data, nil
}
