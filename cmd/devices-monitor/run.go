package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/devices-monitor/internal/csvlog"
	"github.com/srg/devices-monitor/internal/device"
	"github.com/srg/devices-monitor/internal/devicefactory"
	"github.com/srg/devices-monitor/internal/notify"
	"github.com/srg/devices-monitor/internal/poller"
	"github.com/srg/devices-monitor/pkg/config"
	"golang.org/x/term"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single scan-and-report pass",
	Long: `Scans every Bluetooth adapter, reads the status of connected devices,
appends one CSV row per adapter and raises a desktop notification.

Examples:
  # Default pass (2s scan, log in the documents directory)
  devices-monitor run

  # Longer scan with a custom log file
  devices-monitor run --scan-duration 5s --log-file /tmp/devices.csv

  # Connect to devices that are in range but not connected
  devices-monitor run --connect --skip-incomplete`,
	Args: cobra.NoArgs,
	RunE: runPass,
}

var passConfig = config.DefaultConfig()

// Hooks overridable in tests.
var (
	newManager  = devicefactory.NewManager
	newNotifier = notify.NewPlatformNotifier
	isTerminal  = func() bool { return term.IsTerminal(int(os.Stdout.Fd())) }
)

func addPassFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&passConfig.Backend, "backend", passConfig.Backend,
		fmt.Sprintf("Bluetooth backend (%s); goble only sees devices connected with --connect", strings.Join(devicefactory.Backends, ", ")))
	flags.DurationVarP(&passConfig.ScanDuration, "scan-duration", "d", passConfig.ScanDuration, "Scan duration per adapter")
	flags.StringVar(&passConfig.LogFile, "log-file", passConfig.LogFile, "CSV log file (default <documents>/"+csvlog.FileName+")")
	flags.BoolVar(&passConfig.Connect, "connect", passConfig.Connect, "Connect to devices that are not connected yet (needed by the goble backend)")
	flags.BoolVar(&passConfig.SkipIncomplete, "skip-incomplete", passConfig.SkipIncomplete, "Skip devices without Device Information or Battery service instead of failing")
	flags.BoolVar(&passConfig.NoNotify, "no-notify", passConfig.NoNotify, "Do not raise desktop notifications")
}

// session holds what a pass needs and releases it on Close.
type session struct {
	poller   *poller.Poller
	manager  device.Manager
	notifier notify.Notifier
	logPath  string
}

func newSession(cfg *config.Config, logger *logrus.Logger) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logPath, err := cfg.LogPath()
	if err != nil {
		return nil, err
	}

	manager, err := newManager(cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	notifier := notify.Discard
	if !cfg.NoNotify {
		notifier = notify.NewLazy(func() (notify.Notifier, error) {
			n, err := newNotifier()
			if err != nil {
				return nil, fmt.Errorf("desktop notifications unavailable (use --no-notify): %w", err)
			}
			return n, nil
		})
	}

	return &session{
		poller:   poller.New(manager, csvlog.New(logPath), notifier, logger, cfg.PollerOptions()),
		manager:  manager,
		notifier: notifier,
		logPath:  logPath,
	}, nil
}

func (s *session) Close() error {
	if c, ok := s.notifier.(io.Closer); ok {
		_ = c.Close()
	}
	return s.manager.Close()
}

// interruptContext returns a context cancelled on Ctrl+C or SIGTERM.
func interruptContext(out io.Writer) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(out, "\nCtrl+C pressed, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}

func runPass(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd, "verbose", passConfig)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	sess, err := newSession(passConfig, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	out := cmd.OutOrStdout()
	if hint := backendHint(passConfig); hint != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), hint)
	}

	ctx, cancel := interruptContext(out)
	defer cancel()

	stop := func() {}
	if isTerminal() {
		stop = showScanProgress(out, sess.poller, passConfig)
	}

	result, err := sess.poller.Run(ctx)
	stop()
	printSummary(out, result, sess.logPath)
	return err
}

// backendHint warns when the selected backend can't see connections made by
// other processes and --connect is off.
func backendHint(cfg *config.Config) string {
	backend, err := devicefactory.Resolve(cfg.Backend, runtime.GOOS)
	if err != nil || backend != devicefactory.BackendGoBLE || cfg.Connect {
		return ""
	}
	return "Note: the goble backend only reports devices it connects itself, use --connect to read their status"
}

// showScanProgress displays a countdown while each adapter scans.
// The returned func stops the current countdown and must be called before
// anything else is printed to out.
func showScanProgress(out io.Writer, p *poller.Poller, cfg *config.Config) func() {
	var progress *ProgressPrinter
	stop := func() {
		if progress != nil {
			progress.Stop()
		}
	}
	p.OnProgress(func(phase string) {
		if phase == poller.PhaseScanning {
			// an adapter without peripherals never reaches a stop phase
			stop()
			progress = NewCountdownProgressPrinter(out, "Scanning for BLE devices", phase, cfg.ScanDuration,
				poller.PhaseReading, poller.PhaseReporting)
			progress.Start()
			return
		}
		if progress != nil {
			progress.Callback()(phase)
		}
	})
	return stop
}

// printSummary prints the devices found by a pass.
func printSummary(w io.Writer, result *poller.Result, logPath string) {
	if result == nil {
		return
	}
	if len(result.Reports) == 0 {
		color.New(color.FgYellow).Fprintln(w, "No Bluetooth adapters found")
		return
	}

	bold := color.New(color.Bold)
	dim := color.New(color.Faint)
	reported := false
	for _, report := range result.Reports {
		reported = reported || report.Reported()
		bold.Fprintf(w, "%s", report.Adapter)
		dim.Fprintf(w, " (%d peripherals discovered)\n", report.Peripherals)

		if report.Peripherals == 0 {
			color.New(color.FgYellow).Fprintln(w, "  BLE peripheral devices were not found")
			continue
		}
		if report.Statuses.Len() == 0 {
			fmt.Fprintf(w, "  %s\n", poller.NoDevicesMessage)
		}
		for pair := report.Statuses.Oldest(); pair != nil; pair = pair.Next() {
			status := pair.Value
			fmt.Fprintf(w, "  %s  %s %s  ", status.Name, status.Manufacturer, status.Model)
			batteryColor(status.BatteryLevel).Fprintf(w, "%d%%\n", status.BatteryLevel)
		}
		for _, address := range report.Skipped {
			color.New(color.FgYellow).Fprintf(w, "  skipped %s: incomplete GATT layout\n", address)
		}
	}

	if reported && logPath != "" {
		dim.Fprintf(w, "Log: %s\n", logPath)
	}
}

func batteryColor(level uint8) *color.Color {
	switch {
	case level >= 50:
		return color.New(color.FgGreen)
	case level >= 20:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
