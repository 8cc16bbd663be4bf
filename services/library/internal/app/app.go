package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"libraryhub/internal/util"
	"libraryhub/pkg/domain"
	"libraryhub/pkg/events"
	"libraryhub/pkg/storage"
	"libraryhub/pkg/store"
)

// Config holds runtime configuration for the core application.
type Config struct {
	// Store overrides DatabaseURL when set (tests, memory driver).
	Store                  store.Store
	DatabaseURL            string
	ResetSequenceWhenEmpty bool

	// Objects overrides Minio when set. Covers are disabled when neither is configured.
	Objects        storage.ObjectStore
	Minio          storage.MinioConfig
	CoverURLExpiry time.Duration

	// Events overrides AMQPURL when set. Events are dropped when neither is configured.
	Events       events.Publisher
	AMQPURL      string
	AMQPExchange string
}

// App is the core application service wiring together storage and domain logic.
type App struct {
	store       store.Store
	objects     storage.ObjectStore
	events      events.Publisher
	coverExpiry time.Duration
}

// New constructs the application with database-backed storage, optional
// cover object storage and an optional event publisher.
func New(cfg Config) (*App, error) {
	var err error
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		dataStore, err = store.NewGormStore(cfg.DatabaseURL, store.WithResetSequenceWhenEmpty(cfg.ResetSequenceWhenEmpty))
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	objects := cfg.Objects
	if objects == nil && cfg.Minio.Enabled() {
		minioStore, err := storage.NewMinioStore(context.Background(), cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init cover storage: %w", err)
		}
		objects = minioStore
	}

	publisher := cfg.Events
	if publisher == nil {
		if cfg.AMQPURL != "" {
			publisher, err = events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				return nil, fmt.Errorf("init event publisher: %w", err)
			}
		} else {
			publisher = events.Nop{}
		}
	}

	coverExpiry := cfg.CoverURLExpiry
	if coverExpiry <= 0 {
		coverExpiry = 15 * time.Minute
	}

	return &App{
		store:       dataStore,
		objects:     objects,
		events:      publisher,
		coverExpiry: coverExpiry,
	}, nil
}

// CoversEnabled reports whether cover object storage is configured.
func (a *App) CoversEnabled() bool {
	return a.objects != nil
}

// Close releases the store and the event publisher.
func (a *App) Close() error {
	return errors.Join(a.events.Close(), a.store.Close())
}

// publish emits a lifecycle event after commit. Failures are logged only:
// the transition is already durable.
func (a *App) publish(ctx context.Context, eventType string, borrow domain.Borrow, availableCopies int) {
	e := events.NewBorrowEvent(eventType, borrow, availableCopies)
	if err := a.events.Publish(ctx, e); err != nil {
		util.LoggerFromContext(ctx).Warn("publish event failed",
			"event_type", eventType,
			"borrow_id", borrow.ID,
			"err", err,
		)
	}
}

// removeObjects deletes cover objects left behind by committed deletes.
func (a *App) removeObjects(ctx context.Context, keys ...string) {
	if a.objects == nil {
		return
	}
	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := a.objects.Delete(ctx, key); err != nil {
			util.LoggerFromContext(ctx).Warn("delete cover object failed", "key", key, "err", err)
		}
	}
}

func logger(ctx context.Context) *slog.Logger {
	return util.LoggerFromContext(ctx)
}
