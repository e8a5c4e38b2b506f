package main

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sage/config"
	"github.com/Ramsey-B/sage/internal/repositories"
	"github.com/Ramsey-B/sage/pkg/conflicts"
	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/kafka"
	"github.com/Ramsey-B/sage/pkg/leads"
	"github.com/Ramsey-B/sage/pkg/matching"
	"github.com/Ramsey-B/sage/pkg/processor"
	"github.com/Ramsey-B/sage/pkg/redis"
	"github.com/Ramsey-B/sage/pkg/review"
	"github.com/Ramsey-B/sage/pkg/snapshot"
	"github.com/Ramsey-B/sage/pkg/startup"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const (
	depTracing  = "tracing"
	depDatabase = "database"
	depRedis    = "redis"
	depKafka    = "kafka"
)

// services holds the infrastructure a command runs on. Only the dependencies a
// command asks for are started.
type services struct {
	config  *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	db       database.DB
	redis    *redis.Client
	producer *kafka.Producer
}

func newServices(cc *commandContext) *services {
	return &services{
		config:  cc.config,
		logger:  cc.logger,
		startup: startup.NewStartup(cc.logger, cc.config.StartupMaxAttempts),
	}
}

// start brings up the named dependencies; migrate applies migrations after connecting.
func (s *services) start(ctx context.Context, migrate bool, names ...string) error {
	for _, name := range names {
		switch name {
		case depTracing:
			s.startup.AddDependency(s.tracingDependency())
		case depDatabase:
			s.startup.AddDependency(s.databaseDependency(migrate))
		case depRedis:
			s.startup.AddDependency(s.redisDependency())
		case depKafka:
			s.startup.AddDependency(s.kafkaDependency())
		default:
			return fmt.Errorf("unknown dependency %q", name)
		}
	}
	return s.startup.Start(ctx)
}

func (s *services) stop(ctx context.Context) error {
	return s.startup.Stop(ctx)
}

func (s *services) tracingDependency() startup.Func {
	var shutdown func(context.Context) error
	return startup.Func{
		Name: depTracing,
		OnStart: func(ctx context.Context) error {
			var err error
			shutdown, err = tracing.Init(ctx, s.config.Tracing())
			return err
		},
		OnStop: func(ctx context.Context) error {
			if shutdown == nil {
				return nil
			}
			return shutdown(ctx)
		},
	}
}

func (s *services) databaseDependency(migrate bool) startup.Func {
	return startup.Func{
		Name: depDatabase,
		OnStart: func(ctx context.Context) error {
			db, err := database.Open(ctx, s.config.Database(), s.logger)
			if err != nil {
				return err
			}
			s.db = db
			if !migrate {
				return nil
			}

			instance, ok := db.(*database.DatabaseInstance)
			if !ok {
				return fmt.Errorf("database %T does not support migrations", db)
			}
			return database.NewMigrationService(s.logger, s.config.Migration()).Migrate(s.config.DatabaseName, instance.DB)
		},
		OnStop: func(ctx context.Context) error {
			if s.db == nil {
				return nil
			}
			return s.db.Close()
		},
	}
}

func (s *services) redisDependency() startup.Func {
	return startup.Func{
		Name: depRedis,
		OnStart: func(ctx context.Context) error {
			client, err := redis.NewClient(s.config.Redis(), s.logger)
			if err != nil {
				return err
			}
			s.redis = client
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.redis == nil {
				return nil
			}
			return s.redis.Close()
		},
	}
}

func (s *services) kafkaDependency() startup.Func {
	return startup.Func{
		Name: depKafka,
		OnStart: func(ctx context.Context) error {
			s.producer = kafka.NewProducer(s.config.Kafka(), s.logger)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if s.producer == nil {
				return nil
			}
			return s.producer.Close()
		},
	}
}

func (s *services) repositories() *repositories.Repositories {
	return repositories.New(s.db, s.logger)
}

func (s *services) workflow(repos *repositories.Repositories) *review.Workflow {
	return review.NewWorkflow(s.logger, repos.ReviewStores(), s.config.ReviewPolicy())
}

// autoApprover needs the database, Redis and Kafka dependencies.
func (s *services) autoApprover(repos *repositories.Repositories) *review.AutoApprover {
	relay := review.NewSyncRelay(repos.SyncRequests, s.producer, s.config.SyncRelayBatchSize, s.logger)
	locker := redis.NewLocker(s.redis, "")
	return review.NewAutoApprover(s.workflow(repos), locker, relay, s.config.Sweep(), s.logger)
}

// processor needs the database; snapshots are cached when Redis is started.
func (s *services) processor(repos *repositories.Repositories) (*processor.Processor, error) {
	mapping, err := config.LoadFieldMapping(s.config.FieldMappingPath)
	if err != nil {
		return nil, err
	}

	var fetcher snapshot.Fetcher = snapshot.NewHTTPFetcher(s.config.Snapshot(), s.logger)
	if s.redis != nil {
		fetcher = snapshot.NewCachedFetcher(fetcher, s.redis, s.config.SnapshotCacheTTL, s.logger)
	}

	return processor.NewProcessor(processor.Deps{
		Resolver:   matching.NewEngine(s.logger, repos.Leads, s.config.MatchPolicy()),
		Decider:    leads.NewDecider(s.logger, repos.Leads),
		Leads:      repos.Leads,
		Fetcher:    fetcher,
		Detector:   conflicts.NewDetector(s.logger, mapping),
		Reconciler: s.workflow(repos),
	}, s.config.Processor(), s.logger), nil
}
