package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"example.com/abtest/internal/assignment"
	rediscache "example.com/abtest/internal/cache/redis"
	"example.com/abtest/internal/catalog"
	"example.com/abtest/internal/config"
	"example.com/abtest/internal/dispatch"
	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/storage"
	"example.com/abtest/internal/storage/memory"
	"example.com/abtest/internal/storage/mongodb"
	spg "example.com/abtest/internal/storage/postgres"
)

// app holds every long-lived collaborator built from Config.
type app struct {
	cfg        config.Config
	store      storage.Store
	pg         *spg.DB
	redis      *goredis.Client
	catalog    []domain.Course
	dispatcher *dispatch.Dispatcher
	publisher  dispatch.Publisher
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{cfg: cfg}

	courses, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.catalog = courses

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.RedisURL != "" {
		client, err := rediscache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
		a.redis = client
		log.Info().Str("module", "cache").Msg("redis assignment cache enabled")
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.publisher = pub
	a.dispatcher = dispatch.New(pub, cfg.QueueMaxSize, cfg.BatchMaxSize, cfg.BatchMaxWait)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.StoreDriver {
	case storage.DriverPostgres:
		db, err := spg.Connect(ctx, a.cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		a.pg = db
		a.store = spg.NewStore(db)
	case storage.DriverMongo:
		st, err := mongodb.Connect(ctx, a.cfg.MongoURI, a.cfg.MongoDBName)
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		a.store = st
	case storage.DriverMemory:
		log.Warn().Msg("memory store selected; data is lost on restart")
		a.store = memory.New()
	default:
		return fmt.Errorf("unknown store driver %q", a.cfg.StoreDriver)
	}
	log.Info().Str("driver", a.cfg.StoreDriver).Msg("store connected")
	return nil
}

func newPublisher(cfg config.Config) (dispatch.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		return dispatch.NewLoggingPublisher(), nil
	}
	return dispatch.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}

func (a *app) assignmentService() *assignment.Service {
	opts := []assignment.Option{assignment.WithSink(a.dispatcher)}
	if a.redis != nil {
		opts = append(opts, assignment.WithCache(rediscache.NewAssignmentCache(a.redis, a.cfg.AssignmentCacheTTL)))
	}
	return assignment.NewService(a.store, opts...)
}

func (a *app) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	return errors.Join(errs...)
}
