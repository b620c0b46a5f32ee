package backend

import (
	"context"
	"errors"
	"fmt"

	"penny/internal/amqp"
	applog "penny/internal/log"
	"penny/internal/services"
	"penny/internal/storage"
	"penny/internal/store"
	"penny/internal/store/memory"
)

type Factory interface {
	CreateBackend(ctx context.Context, cfg Config) (*Result, error)
}

type factory struct {
	logger *applog.Logger
}

func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &factory{logger: logger.WithComponent(applog.ComponentBackend)}
}

// CreateBackend opens the configured store. A broker that cannot be reached
// is logged and skipped: the app keeps working without exports.
func (f *factory) CreateBackend(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers closeStack
	base, err := f.openStore(ctx, cfg, &closers)
	if err != nil {
		return nil, err
	}
	res := &Result{Store: base, Close: closers.close}

	if cfg.AMQPURL == "" {
		return res, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, amqp.WithLogger(f.logger))
	if err != nil {
		f.logger.WarnContext(ctx, "Broker unavailable, snapshots will not be published", applog.FieldError, err)
		return res, nil
	}
	closers.push(client.Close)
	f.logger.InfoContext(ctx, "Publishing snapshots", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	res.Store = services.NewProfileService(base, client)
	res.Publishing = true
	return res, nil
}

func (f *factory) openStore(ctx context.Context, cfg Config, closers *closeStack) (store.Store, error) {
	switch cfg.Kind {
	case KindSQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		closers.push(repo.Close)
		f.logger.InfoContext(ctx, "Opened SQLite store", "db_path", cfg.SQLitePath)
		return repo, nil
	case KindMemory:
		f.logger.InfoContext(ctx, "Using in-memory store, data is lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("backend %q not supported", cfg.Kind)
}

// closeStack closes in reverse push order and joins the errors.
type closeStack []func() error

func (s *closeStack) push(fn func() error) { *s = append(*s, fn) }

func (s *closeStack) close() error {
	var errs []error
	for i := len(*s) - 1; i >= 0; i-- {
		if err := (*s)[i](); err != nil {
			errs = append(errs, err)
		}
	}
	*s = nil
	return errors.Join(errs...)
}
