package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harun/agentforge/internal/config"
	"github.com/harun/agentforge/internal/logger"
	"github.com/harun/agentforge/internal/observability"
	"github.com/harun/agentforge/internal/tracing"
	"github.com/rs/zerolog"
)

const serviceName = "agentforge"

func configPath() string {
	if cfgFile == "" {
		return config.DefaultFileName
	}
	return cfgFile
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath())
}

// environment holds the process-wide observability set up for one command.
type environment struct {
	log     *logger.Logger
	cleanup []func() error
}

// setupEnvironment builds the logger from the team's observe settings, with
// the --log-level flag taking precedence, and initialises the audit log and
// OpenTelemetry when configured.
func setupEnvironment(cfg *config.Config) (*environment, error) {
	observe := cfg.Team.Observe

	logCfg := logger.DefaultConfig()
	logCfg.Level = observe.LogLevel
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logCfg.Format = observe.LogFormat
	logCfg.File = observe.LogFile

	log, err := logger.New(logCfg)
	if err != nil {
		return nil, err
	}
	env := &environment{log: log}
	env.cleanup = append(env.cleanup, log.Close)

	if observe.AuditLog != "" {
		if err := observability.InitAuditLogger(observe.AuditLog); err != nil {
			env.Close()
			return nil, err
		}
		env.cleanup = append(env.cleanup, observability.GetAuditLogger().Close)
	}

	if observe.OpenTelemetry {
		var exports []tracing.ExportOption
		if observe.SpanFile != "" {
			f, err := os.OpenFile(observe.SpanFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
			if err != nil {
				env.Close()
				return nil, fmt.Errorf("failed to open span file: %w", err)
			}
			env.cleanup = append(env.cleanup, f.Close)
			exports = append(exports, tracing.WithSpanWriter(f))
		}
		if observe.OTLPEndpoint != "" {
			exports = append(exports, tracing.WithOTLP(observe.OTLPEndpoint, observe.OTLPInsecure))
		}
		if err := tracing.InitOpenTelemetry(serviceName, exports...); err != nil {
			env.Close()
			return nil, err
		}
		env.cleanup = append(env.cleanup, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracing.ShutdownOpenTelemetry(ctx)
		})
	}

	return env, nil
}

// Logger returns the zerolog logger for components.
func (e *environment) Logger() zerolog.Logger {
	return e.log.Logger
}

// Close releases resources in reverse order of acquisition.
func (e *environment) Close() error {
	var errs []error
	for i := len(e.cleanup) - 1; i >= 0; i-- {
		if err := e.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.cleanup = nil
	return errors.Join(errs...)
}
