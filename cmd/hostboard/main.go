package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"hostboard/internal/app/bus"
	appcalendar "hostboard/internal/app/calendar"
	"hostboard/internal/app/coordinator"
	calendarapp "hostboard/internal/app/handlers/calendar"
	appoutbox "hostboard/internal/app/outbox"
	"hostboard/internal/app/policies"
	"hostboard/internal/infra/broker/kafka"
	"hostboard/internal/infra/config"
	mongostore "hostboard/internal/infra/db/mongo"
	"hostboard/internal/infra/export/ics"
	"hostboard/internal/infra/gateway/httpgw"
	ginserver "hostboard/internal/infra/http/gin"
	"hostboard/internal/infra/obs"
	infraoutbox "hostboard/internal/infra/outbox"
	"hostboard/internal/infra/scheduler"
	"hostboard/internal/infra/storage/memory"
	"hostboard/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger, logCloser := obs.NewLogger(cfg.Env, cfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: app.checks}, app.handlers)

	var background conc.WaitGroup
	app.startBackground(ctx, &background)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
		if err := app.scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("scheduler stop timed out", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "gateway", cfg.GatewayMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		stop()
	}
	background.Wait()
	app.sessions.CloseAll()
	logger.Info("HTTP server stopped")
}

type application struct {
	cfg       config.Config
	logger    *slog.Logger
	handlers  ginserver.Handlers
	checks    map[string]obs.Check
	sessions  *memory.SessionStore
	queries   bus.Bus
	store     infraoutbox.Store
	producer  infraoutbox.Producer
	consumer  *kafka.Consumer
	scheduler *scheduler.Scheduler
	closers   []func(context.Context) error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		cfg:       cfg,
		logger:    logger,
		checks:    map[string]obs.Check{},
		sessions:  memory.NewSessionStore(),
		scheduler: scheduler.New(logger, time.Minute),
	}

	gateway, err := buildGateway(cfg, logger)
	if err != nil {
		return nil, err
	}

	var (
		journal coordinator.Journal
		box     appoutbox.Outbox
		inbox   kafka.Inbox
	)
	if cfg.MongoURI != "" {
		client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, client.Close)
		app.checks["mongo"] = client.Ping
		journal = mongostore.NewJournalRepository(client.DB)
		outboxStore := mongostore.NewOutboxStore(client.DB)
		box, app.store = outboxStore, outboxStore
		inbox = mongostore.NewInboxStore(client.DB, cfg.KafkaGroupID, 7*24*time.Hour)
		logger.Info("mongo storage enabled", "database", cfg.MongoDB)
	} else {
		journal = memory.NewJournal(0)
		outboxStore := memory.NewOutbox()
		box, app.store = outboxStore, outboxStore
		inbox = memory.NewInbox(24 * time.Hour)
	}

	coord := coordinator.New(gateway, app.sessions,
		coordinator.WithUnblockSettleDelay(cfg.UnblockSettleDelay),
		coordinator.WithJournal(journal),
		coordinator.WithOutbox(box, appoutbox.JSONEventEncoder{}),
		coordinator.WithLogger(logger),
	)

	deps := appcalendar.Deps{
		Gateway:     gateway,
		Committer:   coord,
		Authorizer:  policies.NewRoleAuthorizer(cfg.EditorRoles...),
		Logger:      logger,
		BufferDays:  cfg.BufferDays,
		Concurrency: cfg.FetchConcurrency,
	}
	h := &calendarapp.Handlers{
		Sessions: app.sessions,
		Deps:     deps,
		Feeds:    ics.Renderer{},
		FeedDays: cfg.FeedDays,
		Logger:   logger,
	}
	commands, queries := bus.NewRegistry(), bus.NewRegistry()
	h.Register(commands, queries)
	commandBus := bus.Chain(commands, bus.Logging(logger), bus.Validation(), bus.OutboxFlush(box, logger))
	app.queries = bus.Chain(queries, bus.Logging(logger), bus.Validation())

	calendarHTTP := ginserver.CalendarHandler{
		Commands:        commandBus,
		Queries:         app.queries,
		Logger:          logger,
		DefaultCurrency: cfg.PlatformCurrency,
	}
	app.handlers = ginserver.Handlers{Calendar: calendarHTTP, Feed: calendarHTTP}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, "hostboard")
		if err != nil {
			return nil, err
		}
		app.producer = producer
		app.closers = append(app.closers, func(context.Context) error { return producer.Close() })
		if cfg.PlatformTopic != "" {
			consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID,
				kafka.PlatformChangeHandler{Refresher: app.sessions, Inbox: inbox, Logger: logger}, logger)
			if err != nil {
				return nil, err
			}
			app.consumer = consumer
			app.closers = append(app.closers, func(context.Context) error { return consumer.Close() })
		}
	} else {
		app.producer = infraoutbox.LogProducer{Logger: logger}
	}

	if err := app.scheduleJobs(); err != nil {
		return nil, err
	}
	return app, nil
}

func buildGateway(cfg config.Config, logger *slog.Logger) (policies.CalendarGateway, error) {
	if cfg.GatewayMode == "http" {
		logger.Info("using remote calendar platform", "base_url", cfg.PlatformBaseURL)
		return httpgw.New(httpgw.Config{
			BaseURL:  cfg.PlatformBaseURL,
			Token:    cfg.PlatformToken,
			Currency: cfg.PlatformCurrency,
			Timeout:  cfg.PlatformTimeout,
			RPS:      cfg.PlatformRPS,
			Burst:    cfg.PlatformBurst,
			Retries:  cfg.PlatformRetries,
			Logger:   logger,
		})
	}
	platform := memory.NewPlatform()
	memory.SeedDemo(platform, time.Now())
	logger.Info("in-memory platform seeded with demo properties")
	return platform, nil
}

func (a *application) scheduleJobs() error {
	idle := a.cfg.SessionIdleTTL
	if err := a.scheduler.Add("session-sweep", a.cfg.SessionSweepCron, func(context.Context) error {
		if n := a.sessions.Sweep(time.Now(), idle); n > 0 {
			a.logger.Info("idle calendar sessions closed", "count", n)
		}
		return nil
	}); err != nil {
		return err
	}
	if a.cfg.FeedCron == "" || a.cfg.FeedSink == "" || len(a.cfg.FeedProperties) == 0 {
		return nil
	}
	sink, err := a.feedSink()
	if err != nil {
		return err
	}
	publisher := ics.Publisher{
		Properties: a.cfg.FeedProperties,
		Source: func(ctx context.Context, propertyID string) ([]byte, error) {
			return bus.Send[calendarapp.PropertyFeedQuery, []byte](ctx, a.queries,
				calendarapp.PropertyFeedQuery{PropertyID: propertyID, Days: a.cfg.FeedDays})
		},
		Sink:        sink,
		Logger:      a.logger,
		Concurrency: a.cfg.FetchConcurrency,
	}
	return a.scheduler.Add("feed-publish", a.cfg.FeedCron, func(ctx context.Context) error {
		published, err := publisher.PublishAll(ctx)
		a.logger.Info("calendar feeds published", "count", len(published))
		return err
	})
}

func (a *application) feedSink() (ics.Sink, error) {
	if a.cfg.FeedSink == "s3" {
		client, err := s3.NewClient(s3.Config{
			Endpoint:       a.cfg.S3Endpoint,
			PublicEndpoint: a.cfg.S3PublicEndpoint,
			AccessKey:      a.cfg.S3AccessKey,
			SecretKey:      a.cfg.S3SecretKey,
			Bucket:         a.cfg.S3Bucket,
			UseSSL:         a.cfg.S3UseSSL,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.checks["s3"] = client.Ping
		return ics.BucketSink{Uploader: client, Prefix: "feeds"}, nil
	}
	return ics.NewFileSink(a.cfg.FeedDir), nil
}

func (a *application) startBackground(ctx context.Context, wg *conc.WaitGroup) {
	worker := &infraoutbox.Worker{
		Store:       a.store,
		Producer:    a.producer,
		Logger:      a.logger,
		Interval:    a.cfg.OutboxPollInterval,
		TopicPrefix: a.cfg.KafkaTopicPrefix,
		Source:      "hostboard",
		Backoff:     a.cfg.RetryBackoff,
	}
	wg.Go(func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("outbox worker stopped", "error", err)
		}
	})
	if a.consumer != nil {
		wg.Go(func() {
			if err := a.consumer.Run(ctx, []string{a.cfg.PlatformTopic}); err != nil {
				a.logger.Error("platform change consumer stopped", "error", err)
			}
		})
	}
	a.scheduler.Start()
}

func (a *application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
