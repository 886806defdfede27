package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/mohitkumar/mediaflow/analytics"
	"github.com/mohitkumar/mediaflow/config"
	"github.com/mohitkumar/mediaflow/dispatch"
	"github.com/mohitkumar/mediaflow/events"
	"github.com/mohitkumar/mediaflow/executor"
	"github.com/mohitkumar/mediaflow/ledger"
	"github.com/mohitkumar/mediaflow/logger"
	"github.com/mohitkumar/mediaflow/metrics"
	"github.com/mohitkumar/mediaflow/model"
	"github.com/mohitkumar/mediaflow/persistence"
	"github.com/mohitkumar/mediaflow/provider"
	"github.com/mohitkumar/mediaflow/registry"
	"github.com/mohitkumar/mediaflow/rest"
	"github.com/mohitkumar/mediaflow/rpc"
	"github.com/mohitkumar/mediaflow/service"
	"github.com/mohitkumar/mediaflow/workflow"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const REGISTRY_CACHE_TTL = 30 * time.Second

type Agent struct {
	Config       config.Config
	storage      *persistence.Storage
	bus          *events.Bus
	collector    analytics.JobDataCollector
	redisEvents  *events.RedisPublisher
	registry     *registry.ModuleRegistry
	ledger       *ledger.JobLedger
	dispatcher   *dispatch.Dispatcher
	jobService   *service.JobService
	orchestrator *workflow.Orchestrator
	executors    []executor.Executor
	httpServer   *rest.Server
	grpcServer   *grpc.Server
	shutdown     bool
	shutdownLock sync.Mutex
	wg           sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	a := &Agent{
		Config: config,
	}
	setup := []func() error{
		a.setupStorage,
		a.setupEventBus,
		a.setupRegistry,
		a.setupLedger,
		a.setupDispatcher,
		a.setupServices,
		a.setupExecutors,
		a.setupHttpServer,
		a.setupGrpcServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	storage, err := NewStorage(context.Background(), a.Config)
	if err != nil {
		return err
	}
	a.storage = storage
	return nil
}

func (a *Agent) setupEventBus() error {
	a.bus = events.NewBus(a.Config.EventConfig.SubscriberCapacity, a.Config.EventConfig.Source)

	collector, err := analytics.NewDataCollector(a.Config.AnalyticsConfig)
	if err != nil {
		return err
	}
	a.collector = collector
	a.bus.Subscribe(model.ALL_EVENTS, analytics.Handler(collector))

	if err := metrics.Register(); err != nil {
		return err
	}
	a.bus.Subscribe(model.ALL_EVENTS, metrics.Handle)

	if a.Config.EventConfig.PublishToRedis {
		a.redisEvents = events.NewRedisPublisher(a.Config.RedisConfig.Addrs, a.Config.RedisConfig.Password, a.Config.EventConfig.ChannelPrefix)
		a.bus.Subscribe(model.ALL_EVENTS, a.redisEvents.Handle)
	}
	return nil
}

func (a *Agent) setupRegistry() error {
	a.registry = registry.NewModuleRegistry(a.storage.Modules, a.bus, REGISTRY_CACHE_TTL)
	return nil
}

func (a *Agent) setupLedger() error {
	a.ledger = ledger.NewJobLedger(a.storage.Jobs, a.bus, a.Config.LedgerConfig.DefaultMaxRetries)
	return nil
}

func (a *Agent) setupDispatcher() error {
	a.dispatcher = dispatch.NewDispatcher(a.registry, a.ledger, a.storage.Queue, a.storage.DelayQueue, a.Config.DispatchConfig, a.Config.ExecutorConfig.Workers)
	return nil
}

func (a *Agent) setupServices() error {
	jobTimeout := time.Duration(a.Config.ExecutorConfig.JobTimeoutSeconds) * time.Second
	a.jobService = service.NewJobService(a.ledger, a.dispatcher, a.registry, jobTimeout)
	a.orchestrator = workflow.NewOrchestrator(a.storage.Drafts, a.storage.Projects, a.ledger, a.registry, a.jobService, a.bus, a.Config.StatusScope)
	return nil
}

func (a *Agent) setupExecutors() error {
	conf := a.Config.ExecutorConfig
	jobTimeout := time.Duration(conf.JobTimeoutSeconds) * time.Second
	a.executors = []executor.Executor{
		executor.NewJobExecutor(a.jobService, provider.MockSet(), conf.Workers, conf.Capacity, conf.PollInterval, jobTimeout, &a.wg),
		executor.NewRetryExecutor(a.jobService, a.dispatcher, conf.PollInterval, &a.wg),
		executor.NewTimeoutExecutor(a.jobService, a.dispatcher, conf.PollInterval, &a.wg),
	}
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.jobService, a.registry, a.orchestrator)
	return err
}

func (a *Agent) setupGrpcServer() error {
	var err error
	a.grpcServer, err = rpc.NewGrpcServer(&rpc.GrpcConfig{JobService: a.jobService})
	return err
}

// seedModules registers the manifest modules and, when enabled, the mock
// modules served by the built-in executor.
func (a *Agent) seedModules(ctx context.Context) error {
	if a.Config.ExecutorConfig.RegisterMockModules {
		if err := a.registry.RegisterAll(ctx, provider.MockModules()); err != nil {
			return err
		}
	}
	if len(a.Config.ModulesFile) != 0 {
		manifest, err := registry.LoadManifest(a.Config.ModulesFile)
		if err != nil {
			return err
		}
		if err := a.registry.RegisterAll(ctx, manifest.Modules); err != nil {
			return err
		}
		logger.Info("modules loaded from manifest", zap.String("file", a.Config.ModulesFile), zap.Int("count", len(manifest.Modules)))
	}
	return nil
}

// Run starts every component and serves until ctx is done or a server
// fails, then shuts everything down.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.seedModules(ctx); err != nil {
		return err
	}
	a.dispatcher.Start()
	for _, ex := range a.executors {
		if err := ex.Start(); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(a.httpServer.Start)
	g.Go(func() error {
		logger.Info("starting grpc server on", zap.Int("port", a.Config.GrpcPort))
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", a.Config.GrpcPort))
		if err != nil {
			return err
		}
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return a.Shutdown()
	})
	return g.Wait()
}

func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	logger.Info("shutting down server")

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			logger.Info("stopping grpc server")
			a.grpcServer.GracefulStop()
			return nil
		},
	}
	for _, ex := range a.executors {
		shutdown = append(shutdown, ex.Stop)
	}
	shutdown = append(shutdown,
		func() error {
			a.dispatcher.Stop()
			return nil
		},
		func() error {
			logger.Info("waiting for executors to finish...")
			a.wg.Wait()
			a.bus.Stop()
			return nil
		},
		a.collector.Close,
		a.storage.Close,
	)
	if a.redisEvents != nil {
		shutdown = append(shutdown, a.redisEvents.Close)
	}
	var first error
	for _, fn := range shutdown {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
