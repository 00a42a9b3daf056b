// Package app assembles the webhook receiver: configuration, logging,
// telemetry, stores, gate, pipeline, monitor, replay, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/api"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/archive"
	archivegcs "github.com/wina-futureobjects/track-futura-new-sub002/internal/archive/gcs"
	archivemem "github.com/wina-futureobjects/track-futura-new-sub002/internal/archive/memory"
	cachemem "github.com/wina-futureobjects/track-futura-new-sub002/internal/cache/memory"
	clocksystem "github.com/wina-futureobjects/track-futura-new-sub002/internal/clock/system"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/gate"
	hashsha256 "github.com/wina-futureobjects/track-futura-new-sub002/internal/hash/sha256"
	iduuid "github.com/wina-futureobjects/track-futura-new-sub002/internal/id/uuid"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/ingest"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/logging"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/monitor"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/normalize"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/notify"
	notifylog "github.com/wina-futureobjects/track-futura-new-sub002/internal/notify/log"
	notifypubsub "github.com/wina-futureobjects/track-futura-new-sub002/internal/notify/pubsub"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/replay"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/status"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	storemem "github.com/wina-futureobjects/track-futura-new-sub002/internal/store/memory"
	storepg "github.com/wina-futureobjects/track-futura-new-sub002/internal/store/postgres"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/telemetry"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	replayer        *replay.Consumer
	pubsubClient    *pubsub.Client
	pubsubTopic     *pubsub.Topic
	storageClient   *gcstorage.Client
	tracerShutdown  func(context.Context) error
	metricShutdown  func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}

	tp, mp, err := telemetry.InitTelemetry(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown
	app.metricShutdown = mp.Shutdown

	logger.Info("building application dependencies")

	clk := clocksystem.New()
	hasher := hashsha256.New()
	ids := iduuid.New()

	events, posts, statuses, err := app.setupStores(ctx)
	if err != nil {
		return nil, err
	}
	arc, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	notifier, err := app.setupNotifier(ctx)
	if err != nil {
		return nil, err
	}

	mon := monitor.New(cfg.Monitor, clk, notifier, logger.Named("monitor"))
	g := gate.New(cfg.Security, cachemem.New(clk), hasher, clk, logger.Named("gate"))

	pipeline := ingest.New(ingest.Deps{
		Events:   events,
		Posts:    posts,
		Statuses: statuses,
		Engine:   status.NewEngine(statuses, logger.Named("status")),
		Mapper:   normalize.New(logger.Named("normalize")),
		Archive:  arc,
		Monitor:  mon,
		Hasher:   hasher,
		IDs:      ids,
		Clock:    clk,
		Logger:   logger.Named("ingest"),
	})

	app.replayer = replay.New(cfg.Replay, events, pipeline, logger.Named("replay"))
	app.apiServer = api.NewServer(g, pipeline, mon, ids, cfg.Server, logger.Named("api"))
	return app, nil
}

// Run starts the HTTP server and the background replay loop, blocking until
// the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.replayer.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close(shutdownCtx)
}

// Replay performs one operator-invoked replay pass.
func (a *App) Replay(ctx context.Context, limit int, dryRun bool) (replay.Summary, error) {
	return a.replayer.Run(ctx, limit, dryRun)
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.metricShutdown != nil {
		if err := a.metricShutdown(ctx); err != nil {
			a.logger.Warn("metric shutdown failed", zap.Error(err))
		}
	}
}

// setupStores picks Postgres when a DSN is configured, memory otherwise.
func (a *App) setupStores(ctx context.Context) (store.EventStore, store.PostStore, store.StatusStore, error) {
	dsn := a.cfg.DB.DSN
	if dsn == "" {
		a.logger.Info("using in-memory stores")
		return storemem.NewEventStore(), storemem.NewPostStore(), storemem.NewStatusStore(), nil
	}

	a.logger.Info("connecting to postgres")
	events, err := storepg.NewEventStore(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("event store init failed: %w", err)
	}
	posts, err := storepg.NewPostStore(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("post store init failed: %w", err)
	}
	statuses, err := storepg.NewStatusStore(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("status store init failed: %w", err)
	}
	return events, posts, statuses, nil
}

// setupArchive picks GCS when a bucket is configured, memory otherwise.
func (a *App) setupArchive(ctx context.Context) (archive.Archive, error) {
	if a.cfg.Archive.GCSBucket == "" {
		a.logger.Info("using in-memory payload archive")
		return archivemem.New(), nil
	}

	client, err := gcstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs client init failed: %w", err)
	}
	a.storageClient = client
	a.logger.Info("using GCS payload archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
	return archivegcs.New(client, archivegcs.Config{
		Bucket: a.cfg.Archive.GCSBucket,
		Prefix: a.cfg.Archive.Prefix,
	})
}

// setupNotifier publishes alerts to Pub/Sub when configured, otherwise to
// the log.
func (a *App) setupNotifier(ctx context.Context) (notify.Notifier, error) {
	if a.cfg.Notify.ProjectID == "" || a.cfg.Notify.TopicName == "" {
		return notifylog.New(a.logger), nil
	}

	client, err := pubsub.NewClient(ctx, a.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubTopic = client.Topic(a.cfg.Notify.TopicName)
	a.logger.Info("publishing alerts to pubsub", zap.String("topic", a.cfg.Notify.TopicName))
	return notifypubsub.New(a.pubsubTopic), nil
}
