package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"tally/internal/blobstore"
	"tally/internal/collector"
	"tally/internal/config"
	"tally/internal/drift"
	"tally/internal/extract"
	"tally/internal/ledger"
	"tally/internal/linker"
	"tally/internal/logging"
	"tally/internal/parser"
	"tally/internal/pipeline"
	"tally/internal/receipts"
	"tally/internal/reconcile"
	"tally/internal/services"
	"tally/internal/source"
	"tally/internal/source/gmail"
)

// openSource builds the mailbox client. Tests replace it with a fake.
var openSource = func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (source.Source, error) {
	return gmail.New(ctx, cfg.Gmail, logger)
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	store   *receipts.Store
	blobs   blobstore.Store
	ledger  ledger.Ledger
	closers []io.Closer
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.Logging.Level = strings.TrimSpace(*c.logLevelFlag)
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("init logger: %w", err)
			return
		}
		logging.PruneLogs(logger, cfg.Paths.LogDir, cfg.Logging.RetentionDays, time.Now())
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// action wraps a command body so every store it opened is closed afterwards.
func (c *commandContext) action(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := fn(cmd, args)
		if closeErr := c.close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	}
}

// runContext tags the command's context with a fresh run id for log correlation.
func (c *commandContext) runContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return services.WithRunID(ctx, pipeline.NewRunID())
}

func (c *commandContext) openStore() (*receipts.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := receipts.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open document database: %w", err)
	}
	c.store = store
	c.closers = append(c.closers, store)
	return store, nil
}

func (c *commandContext) openBlobs(ctx context.Context) (blobstore.Store, error) {
	if c.blobs != nil {
		return c.blobs, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open document storage: %w", err)
	}
	c.blobs = blobs
	c.closers = append(c.closers, blobs)
	return blobs, nil
}

func (c *commandContext) openLedger() (ledger.Ledger, error) {
	if c.ledger != nil {
		return c.ledger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	c.ledger = l
	c.closers = append(c.closers, l)
	return l, nil
}

func (c *commandContext) guard() (*drift.Guard, error) {
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return drift.New(store, logger), nil
}

func (c *commandContext) processor(ctx context.Context) (*pipeline.Processor, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	blobs, err := c.openBlobs(ctx)
	if err != nil {
		return nil, err
	}
	guard, err := c.guard()
	if err != nil {
		return nil, err
	}
	extractors := extract.NewSet(extract.Pdftotext{
		Binary:  cfg.Extractor.PdftotextBinary,
		Timeout: cfg.ExtractorTimeout(),
	})
	return pipeline.NewProcessor(store, blobs, extractors, parser.DefaultRegistry(), guard,
		reconcile.New(cfg.Reconcile), logger), nil
}

func (c *commandContext) collector(ctx context.Context) (*collector.Collector, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	blobs, err := c.openBlobs(ctx)
	if err != nil {
		return nil, err
	}
	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open mailbox: %w", err)
	}
	return collector.New(src, store, blobs, logger), nil
}

func (c *commandContext) linker() (*linker.Linker, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	store, err := c.openStore()
	if err != nil {
		return nil, err
	}
	l, err := c.openLedger()
	if err != nil {
		return nil, err
	}
	return linker.New(store, l, cfg.Ledger, logger), nil
}

func (c *commandContext) runner(ctx context.Context) (*pipeline.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	coll, err := c.collector(ctx)
	if err != nil {
		return nil, err
	}
	proc, err := c.processor(ctx)
	if err != nil {
		return nil, err
	}
	lnk, err := c.linker()
	if err != nil {
		return nil, err
	}
	return pipeline.NewRunner(cfg, coll, proc, lnk, logger), nil
}

func (c *commandContext) close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	c.store = nil
	c.blobs = nil
	c.ledger = nil
	return errors.Join(errs...)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
