package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/capability"
	"github.com/fyrsmithlabs/prismata/internal/config"
	"github.com/fyrsmithlabs/prismata/internal/events"
	"github.com/fyrsmithlabs/prismata/internal/faults"
	"github.com/fyrsmithlabs/prismata/internal/history"
	prismhttp "github.com/fyrsmithlabs/prismata/internal/http"
	"github.com/fyrsmithlabs/prismata/internal/llm"
	"github.com/fyrsmithlabs/prismata/internal/logging"
	"github.com/fyrsmithlabs/prismata/internal/operations"
	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
	"github.com/fyrsmithlabs/prismata/internal/secrets"
	"github.com/fyrsmithlabs/prismata/internal/telemetry"
)

const instrumentationName = "github.com/fyrsmithlabs/prismata"

// app holds the wired daemon.
type app struct {
	server       *prismhttp.Server
	orchestrator *orchestrator.Orchestrator
	operations   *operations.Store
	history      *history.Log
	capabilities *capability.Registry

	nats   *events.NATSPublisher
	logger *logging.Logger
}

// newApp builds every component from cfg. It does not start listening.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, tel *telemetry.Telemetry) (*app, error) {
	zl := logger.Zap()
	a := &app{logger: logger}

	var publisher events.Publisher = events.Nop{}
	if cfg.Events.NATSURL != "" {
		p, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, zl.Named("events"))
		if err != nil {
			return nil, err
		}
		a.nats = p
		publisher = p
		logger.Info(ctx, "publishing lifecycle events",
			zap.String("nats_url", cfg.Events.NATSURL),
			zap.String("subject_prefix", cfg.Events.SubjectPrefix))
	}

	var handlerOpts []faults.HandlerOption
	handlerOpts = append(handlerOpts, faults.WithLogger(zl.Named("faults")))
	if !cfg.Secrets.DisableScrub {
		scrubber, err := secrets.New()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("initializing secret scrubber: %w", err)
		}
		handlerOpts = append(handlerOpts, faults.WithScrubber(scrubber))
	}
	strategies := faults.NewStrategyRegistry()
	faults.RegisterDefaultStrategies(strategies, zl.Named("recovery"))
	handler := faults.NewHandler(nil, strategies, handlerOpts...)

	files, err := capability.NewFiles(cfg.Workspace.BaseDir, zl.Named("files"))
	if err != nil {
		a.Close()
		return nil, err
	}
	client := llm.NewOpenAIClient(llm.Config{
		Model:       cfg.LLM.Model,
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey.Value(),
		Timeout:     cfg.LLM.Timeout.Duration(),
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		RateLimit:   cfg.LLM.RateLimit,
		Burst:       cfg.LLM.Burst,
	}, zl.Named("llm"))
	code := capability.NewCode(client, zl.Named("code"), capability.WithSourceFiles(files))

	caps, err := capability.NewRegistry(append(files.Capabilities(), code.Capabilities()...)...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.capabilities = caps

	a.operations = operations.NewStore(cfg.Operations.HistoryFile,
		operations.WithLogger(zl.Named("operations")),
		operations.WithStrategies(strategies),
		operations.WithPublisher(publisher),
	)
	if err := registerRetryHandlers(a.operations, caps); err != nil {
		a.Close()
		return nil, err
	}

	a.history = history.New(cfg.Orchestrator.HistoryMaxEntries)

	metrics, err := orchestrator.NewMetrics(tel.Meter(instrumentationName))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating orchestrator metrics: %w", err)
	}
	a.orchestrator = orchestrator.New(caps, a.operations, handler,
		orchestrator.WithHistory(a.history),
		orchestrator.WithPublisher(publisher),
		orchestrator.WithLogger(zl.Named("orchestrator")),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTracer(tel.Tracer(instrumentationName)),
		orchestrator.WithMaxVerifyAttempts(cfg.Orchestrator.MaxVerifyAttempts),
	)

	a.server, err = prismhttp.NewServer(a.orchestrator, a.operations, a.history, logger.Named("http"), &prismhttp.Config{
		Host:  cfg.Server.Host,
		Port:  cfg.Server.Port,
		Meter: tel.Meter(instrumentationName),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	logger.Info(ctx, "components initialized",
		zap.Strings("capabilities", caps.Names()),
		zap.Int("operations_loaded", a.operations.Len()),
		zap.String("workspace", cfg.Workspace.BaseDir))
	return a, nil
}

// registerRetryHandlers lets every capability's failed operations be
// retried by re-invoking the capability with the stored inputs.
func registerRetryHandlers(store *operations.Store, caps *capability.Registry) error {
	for _, name := range caps.Names() {
		err := store.RegisterRetryHandler(name, func(ctx context.Context, rec *operations.Record) (any, error) {
			return caps.Invoke(ctx, name, capability.Params(rec.Inputs))
		})
		if err != nil {
			return fmt.Errorf("registering retry handler for %s: %w", name, err)
		}
	}
	return nil
}

// Close releases the NATS connection.
func (a *app) Close() {
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.logger.Warn(context.Background(), "closing nats publisher", zap.Error(err))
		}
	}
}
