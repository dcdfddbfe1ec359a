package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run passes on a schedule until interrupted",
	Long: `Runs a scan-and-report pass on a schedule. The schedule is a cron
expression (5 fields or a descriptor such as @hourly) or a Go duration.
A failed pass is logged and the next one runs as scheduled.

Examples:
  # Every 15 minutes (default)
  devices-monitor watch

  # At minute 0 of every hour, without notifications
  devices-monitor watch --schedule "0 * * * *" --no-notify

  # Every 30 seconds
  devices-monitor watch --schedule 30s`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var watchImmediate bool

func init() {
	watchCmd.Flags().StringVar(&passConfig.Schedule, "schedule", passConfig.Schedule, "Cron expression or interval between passes")
	watchCmd.Flags().BoolVar(&watchImmediate, "immediate", true, "Run the first pass right away")
}

// parseSchedule accepts a cron expression first, then falls back to a duration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur < time.Second {
		return nil, fmt.Errorf("interval must be at least 1s: %q", schedule)
	}
	return cron.Every(dur), nil
}

// watcher runs passes on a cron schedule, one at a time.
type watcher struct {
	cron   *cron.Cron
	pass   func(ctx context.Context) error
	logger *logrus.Logger
	out    io.Writer
	ctx    context.Context
}

func newWatcher(schedule cron.Schedule, pass func(ctx context.Context) error, logger *logrus.Logger, out io.Writer) *watcher {
	w := &watcher{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		pass:   pass,
		logger: logger,
		out:    out,
	}
	w.cron.Schedule(schedule, cron.FuncJob(w.runOnce))
	return w
}

func (w *watcher) runOnce() {
	if w.ctx.Err() != nil {
		return
	}

	start := time.Now()
	err := w.pass(w.ctx)
	switch {
	case err == nil:
		w.logger.WithField("duration", time.Since(start)).Info("Scheduled pass completed")
	case errors.Is(err, context.Canceled):
	default:
		w.logger.WithFields(logrus.Fields{
			"error":    err,
			"duration": time.Since(start),
		}).Warn("Scheduled pass failed")
		fmt.Fprintf(w.out, "ERROR: %s\n", FormatUserError(err))
	}
}

// Run blocks until ctx is cancelled, then waits for a running pass to finish.
func (w *watcher) Run(ctx context.Context, immediate bool) {
	w.ctx = ctx
	if immediate {
		w.runOnce()
	}

	w.cron.Start()
	<-ctx.Done()
	<-w.cron.Stop().Done()
}

func runWatch(cmd *cobra.Command, _ []string) error {
	logger, err := configureLogger(cmd, "verbose", passConfig)
	if err != nil {
		return err
	}
	schedule, err := parseSchedule(passConfig.Schedule)
	if err != nil {
		return err
	}

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

	pass := func(ctx context.Context) error {
		result, err := sess.poller.Run(ctx)
		fmt.Fprintf(out, "%s\n", time.Now().Format(time.DateTime))
		printSummary(out, result, sess.logPath)
		return err
	}

	fmt.Fprintf(out, "Watching Bluetooth devices (schedule %q), press Ctrl+C to stop\n", passConfig.Schedule)
	newWatcher(schedule, pass, logger, cmd.ErrOrStderr()).Run(ctx, watchImmediate)
	return nil
}
