package di

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/taskforge/handoff/internal/app/config"
	"github.com/taskforge/handoff/internal/application/service"
	"github.com/taskforge/handoff/internal/domain/repository"
	"github.com/taskforge/handoff/internal/infrastructure/persistence/db"
	"github.com/taskforge/handoff/internal/infrastructure/transaction"
	"github.com/taskforge/handoff/internal/interface/api"
)

// Container wires the store's dependencies by hand, in dependency
// order: database, repositories, transaction manager, services, HTTP
// server.
type Container struct {
	cfg    config.Config
	logger *zap.Logger
	handle *db.Handle

	executions repository.ExecutionRepository
	approvals  repository.ApprovalRepository
	txManager  *transaction.Manager

	handoffService *service.HandoffService
	reaperService  *service.ReaperService
	server         *api.Server
}

// NewContainer builds the full dependency graph from a loaded
// configuration. The database is opened and migrated before any
// service is constructed.
func NewContainer(cfg config.Config) (*Container, error) {
	c := &Container{cfg: cfg}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	c.logger = logger

	if err := c.initializeStorage(); err != nil {
		return nil, fmt.Errorf("initialize storage: %w", err)
	}

	c.initializeServices()
	c.server = api.NewServer(cfg.Server.Addr, c.handoffService, c.logger)

	return c, nil
}

func (c *Container) initializeStorage() error {
	handle, err := db.Open(db.Config{
		PostgresDSN:  c.cfg.Database.PostgresDSN,
		SQLitePath:   c.cfg.Database.SQLitePath,
		MaxOpenConns: c.cfg.Database.MaxOpenConns,
		MaxIdleConns: c.cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}

	if err := db.NewMigrator(handle).Migrate(); err != nil {
		handle.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	c.handle = handle
	c.executions = db.NewExecutionRepository(handle)
	c.approvals = db.NewApprovalRepository(handle)
	c.txManager = transaction.NewManager(handle.DB())

	c.logger.Info("storage ready", zap.String("backend", handle.Dialect().Name()))
	return nil
}

func (c *Container) initializeServices() {
	policy := c.cfg.Policy()

	c.handoffService = service.NewHandoffService(
		c.executions,
		c.approvals,
		c.txManager,
		policy,
		c.logger,
	)
	c.reaperService = service.NewReaperService(
		c.executions,
		c.approvals,
		c.txManager,
		policy,
		c.cfg.Handoff.ReapInterval.Std(),
		c.logger,
	)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// Logger returns the root logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// HandoffService returns the store's application service.
func (c *Container) HandoffService() *service.HandoffService { return c.handoffService }

// ReaperService returns the background expiration sweeper.
func (c *Container) ReaperService() *service.ReaperService { return c.reaperService }

// Server returns the HTTP surface.
func (c *Container) Server() *api.Server { return c.server }

// Close releases the container's resources in reverse order.
func (c *Container) Close() error {
	var firstErr error
	if c.handle != nil {
		if err := c.handle.Close(); err != nil {
			firstErr = err
		}
	}
	if c.logger != nil {
		// Sync flushes buffered entries; stderr sync failures are
		// expected on some platforms and not actionable.
		_ = c.logger.Sync()
	}
	return firstErr
}
