package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/predictions/internal/config"
	"github.com/router-for-me/predictions/internal/db"
	"github.com/router-for-me/predictions/internal/logging"
	"github.com/router-for-me/predictions/internal/metrics"
	"github.com/router-for-me/predictions/internal/prediction"
	"github.com/router-for-me/predictions/internal/telemetry"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

// main runs one prediction cycle and exits with the code chosen by exitCode.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	errRun := newRootCommand(os.Stdout).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(errRun))
}

func newRootCommand(out io.Writer) *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:           "predictions",
		Short:         "Fetch the latest prediction and store it as one table row",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.ResolveConfigPath(cfgPath), out)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "config file path (default ./config.yaml)")
	return cmd
}

// run loads the config, configures logging and telemetry, and executes a single cycle.
func run(ctx context.Context, cfgPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logFile, err := logging.Setup(log.StandardLogger(), logging.Options{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Backups: cfg.LogBackups,
		Out:     out,
	})
	if err != nil {
		return err
	}
	defer func() {
		if errClose := logFile.Close(); errClose != nil {
			fmt.Fprintf(os.Stderr, "close log file: %v\n", errClose)
		}
	}()

	if dups := cfg.DuplicateDestinations(); len(dups) > 0 {
		log.Warnf("response_to_field maps more than one field to %s, the last mapping wins", strings.Join(dups, ", "))
	}

	shutdown, errTelemetry := telemetry.Init(ctx, cfg.Telemetry)
	if errTelemetry != nil {
		log.WithError(errTelemetry).Warn("tracing disabled")
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := shutdown(flushCtx); errShutdown != nil {
			log.WithError(errShutdown).Warn("flush traces failed")
		}
	}()

	ctx, span := otel.Tracer("github.com/router-for-me/predictions/cmd/predictions").Start(ctx, "predictions")
	defer span.End()

	entry := log.WithField("run_id", uuid.NewString()).WithFields(telemetry.TraceFields(ctx))
	processor := prediction.NewProcessor(cfg, db.NewGormStore(cfg.SQL),
		prediction.WithHTTPClient(telemetry.HTTPClient(cfg.RequestTimeout)),
		prediction.WithLogger(entry),
	)

	recorder := metrics.NewRecorder()
	started := time.Now()
	result, errRun := processor.Run(ctx)
	finished := time.Now()
	recorder.Observe(result, finished.Sub(started), finished)
	entry.WithFields(log.Fields{
		"stage":    result.Stage,
		"outcome":  result.Outcome,
		"duration": finished.Sub(started).Round(time.Millisecond),
	}).Info("prediction cycle finished")

	if errPush := recorder.Push(ctx, cfg.Metrics); errPush != nil {
		entry.WithError(errPush).Warn("could not push run metrics")
	}
	return errRun
}

// exitCode maps a run error to the process exit status. Cycle aborts were already
// logged by the processor and leave the table untouched, so they exit cleanly.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case prediction.IsCycleAbort(err):
		return 0
	default:
		log.WithError(err).Error("command failed")
		return 1
	}
}
