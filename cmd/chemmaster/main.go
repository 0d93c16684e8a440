// Command chemmaster runs one chem dispenser. It reads JSON command lines on
// stdin and writes every refreshed projection as a JSON line on stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chemcore/internal/adapters/commands"
	"chemcore/internal/adapters/presenter"
	"chemcore/internal/blob"
	"chemcore/internal/config"
	"chemcore/internal/core"
	"chemcore/internal/telemetry"
	"chemcore/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const serviceName = "chemmaster"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func cli(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	summary := fs.Bool("summary", false, "print a command summary to stderr on exit")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "chemmaster: %v\n", err)
		return 2
	}
	result, err := run(ctx, cfg, stdin, stdout, stderr)
	if *summary {
		_, _ = fmt.Fprintf(stderr, "applied=%d rejected=%d failed=%d\n", result.Applied, result.Rejected, result.Failed)
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "chemmaster: %v\n", err)
		return 1
	}
	return 0
}

// run wires the dispenser from cfg and processes commands until in is drained.
func run(ctx context.Context, cfg config.Config, in io.Reader, out, errOut io.Writer) (result commands.Summary, err error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return result, err
	}
	logger := slog.New(slog.NewJSONHandler(errOut, &slog.HandlerOptions{Level: level}))

	store, err := core.OpenPersistentStore(cfg.StorageOptions(), nil)
	if err != nil {
		return result, err
	}
	defer func() {
		if cerr := core.CloseStore(store); cerr != nil && err == nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithName(cfg.Name),
		core.WithPillDosageLimit(cfg.PillDosageLimit),
		core.WithAuditRecorder(auditLog{logger: logger}),
		core.WithNotifier(core.NotifierFunc(func(_ context.Context, user core.UserHandle, key string) {
			logger.Warn("user notified", "user", user, "message", key)
		})),
	}

	presenters := []core.Presenter{presenter.NewStreamPresenter(out)}
	if cfg.BlobEnabled() {
		objects, err := blob.Open(ctx, cfg.BlobConfig())
		if err != nil {
			return result, fmt.Errorf("open blob store: %w", err)
		}
		archive, err := presenter.NewBlobPresenter(objects, "")
		if err != nil {
			return result, err
		}
		presenters = append(presenters, archive)
	}
	opts = append(opts, core.WithPresenter(presenter.Fanout(presenters...)))

	metricsOpt, report, err := metricsOption(cfg, logger)
	if err != nil {
		return result, err
	}
	if metricsOpt != nil {
		opts = append(opts, metricsOpt)
		defer report()
	}

	tracerOpt, shutdown, err := tracerOption(ctx, cfg, errOut)
	if err != nil {
		return result, err
	}
	defer func() {
		if serr := shutdown(context.WithoutCancel(ctx)); serr != nil {
			logger.Error("tracer shutdown failed", "error", serr)
		}
	}()
	if tracerOpt != nil {
		opts = append(opts, tracerOpt)
	}

	dispenser, err := core.NewDispenser(ctx, store, domain.ContainerHandle(cfg.Owner), opts...)
	if err != nil {
		return result, fmt.Errorf("attach dispenser: %w", err)
	}
	logger.Info("dispenser ready", "owner", cfg.Owner, "storage", cfg.Storage.Driver, "archive", cfg.BlobEnabled())

	processor, err := commands.NewProcessor(dispenser, logger, "")
	if err != nil {
		return result, err
	}
	result, err = processor.Run(ctx, in)
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return result, err
}

func metricsOption(cfg config.Config, logger *slog.Logger) (core.Option, func(), error) {
	switch cfg.Observability.Metrics {
	case config.MetricsExpvar:
		rec := core.NewExpvarMetricsRecorder("")
		return core.WithMetricsRecorder(rec), func() {
			logger.Info("metrics", "operations", rec.Snapshot().Operations)
		}, nil
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			return nil, nil, err
		}
		return core.WithMetricsRecorder(rec), func() {
			families, err := reg.Gather()
			if err != nil {
				logger.Error("gather metrics failed", "error", err)
				return
			}
			for _, mf := range families {
				logger.Info("metrics", "family", mf.GetName(), "series", len(mf.GetMetric()))
			}
		}, nil
	default:
		return nil, func() {}, nil
	}
}

func tracerOption(ctx context.Context, cfg config.Config, errOut io.Writer) (core.Option, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Observability.Tracing {
	case config.TracingJSON:
		return core.WithTracer(core.NewJSONTracer(errOut)), noop, nil
	case config.TracingOTel:
		provider, shutdown, err := telemetry.Setup(ctx, serviceName, cfg.Observability.OTelEndpoint)
		if err != nil {
			return nil, noop, fmt.Errorf("setup tracing: %w", err)
		}
		return core.WithTracer(core.NewOTelTracer(provider)), shutdown, nil
	default:
		return nil, noop, nil
	}
}

// auditLog writes audit entries through the structured logger.
type auditLog struct {
	logger *slog.Logger
}

func (a auditLog) Record(ctx context.Context, entry core.AuditEntry) {
	a.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("operation", entry.Operation),
		slog.String("entity_id", entry.EntityID),
		slog.String("user", string(entry.User)),
		slog.String("status", string(entry.Status)),
		slog.String("error", entry.Error),
		slog.Duration("duration", entry.Duration),
		slog.Time("at", entry.Timestamp),
	)
}
