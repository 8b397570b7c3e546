package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fleamart/api/internal/handlers"
	"github.com/fleamart/api/internal/payments"
	"github.com/fleamart/api/internal/platform/auth"
	"github.com/fleamart/api/internal/platform/config"
	pfirestore "github.com/fleamart/api/internal/platform/firestore"
	"github.com/fleamart/api/internal/platform/jobs"
	"github.com/fleamart/api/internal/platform/observability"
	"github.com/fleamart/api/internal/platform/secrets"
	firestoreRepo "github.com/fleamart/api/internal/repositories/firestore"
	"github.com/fleamart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithEnvironment(os.Getenv("API_ENVIRONMENT")),
		secrets.WithProject(os.Getenv("API_FIRESTORE_PROJECT_ID")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.ResolveSecret)),
	)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	eventLogger := observability.EventLogger()

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey:        cfg.PSP.StripeAPIKey,
		WebhookSecret: cfg.PSP.StripeWebhookSecret,
		Logger:        eventLogger,
		Clock:         time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}

	var publisher services.OrderEventPublisher
	var pubsubClient *pubsub.Client
	var pubsubTopic *pubsub.Topic
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.OrderEventsTopic != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		pubsubTopic = pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		jobPublisher, err := jobs.NewPubSubOrderEventPublisher(pubsubTopic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		publisher = &pubsubEventBridge{publisher: jobPublisher}
	} else {
		logger.Info("pubsub not configured; order events will not be published")
	}

	ledgerService, err := services.NewLedgerService(services.LedgerServiceDeps{
		Transactions: registry.Transactions(),
		Orders:       registry.Orders(),
		Logger:       eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise ledger service", zap.Error(err))
	}

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     registry.Orders(),
		Items:      registry.Items(),
		UnitOfWork: registry,
		Gateway:    gateway,
		Config: services.CheckoutConfig{
			ServiceFeeRate:    cfg.Fees.ServiceFeeRate,
			TaxRate:           cfg.Fees.TaxRate,
			Currency:          cfg.Fees.Currency,
			OrderNumberPrefix: cfg.Fees.OrderNumberPrefix,
		},
		Events: publisher,
		Logger: eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     registry.Orders(),
		Ledger:     ledgerService,
		Gateway:    gateway,
		UnitOfWork: registry,
		Events:     publisher,
		Logger:     eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	queryService, err := services.NewOrderQueryService(services.OrderQueryServiceDeps{
		Orders: registry.Orders(),
		Logger: eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order query service", zap.Error(err))
	}

	webhookService, err := services.NewWebhookService(services.WebhookServiceDeps{
		Gateway:       gateway,
		Orders:        registry.Orders(),
		WebhookEvents: registry.WebhookEvents(),
		Ledger:        ledgerService,
		Events:        publisher,
		Logger:        eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise webhook service", zap.Error(err))
	}

	orderHandler := handlers.NewOrderHandler(checkoutService, orderService, queryService, ledgerService)
	adminHandler := handlers.NewAdminHandler(orderService, ledgerService)
	webhookHandler := handlers.NewWebhookHandler(webhookService)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(handlers.BuildInfo{
			Version:     envOr("API_BUILD_VERSION", "dev"),
			CommitSHA:   os.Getenv("API_BUILD_COMMIT_SHA"),
			Environment: cfg.Security.Environment,
			StartedAt:   startedAt,
		}),
		handlers.WithHealthRepository(registry.Health()),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandler.Routes),
		handlers.WithOrderMiddlewares(auth.NewMiddleware().Handler),
		handlers.WithAdminRoutes(adminHandler.Routes),
		handlers.WithAdminMiddlewares(auth.NewAdminMiddleware().Handler),
		handlers.WithWebhookRoutes(webhookHandler.Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("fleamart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	if pubsubTopic != nil {
		pubsubTopic.Stop()
	}
	if pubsubClient != nil {
		if err := pubsubClient.Close(); err != nil {
			logger.Warn("pubsub close error", zap.Error(err))
		}
	}
}

// pubsubEventBridge adapts the Pub/Sub publisher to the event hook shape the
// services accept, stamping each message with a fresh event id.
type pubsubEventBridge struct {
	publisher *jobs.PubSubOrderEventPublisher
}

func (b *pubsubEventBridge) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	_, err := b.publisher.PublishOrderEvent(ctx, jobs.OrderEventMessage{
		EventID:     "evt_" + strings.ToLower(ulid.Make().String()),
		Event:       event.Type,
		OrderID:     event.OrderID,
		OrderNumber: event.OrderNumber,
		BuyerID:     event.BuyerID,
		SellerID:    event.SellerID,
		Status:      event.CurrentStatus,
		ActorID:     event.ActorID,
		ActorRole:   event.ActorRole,
		OccurredAt:  event.OccurredAt,
	})
	return err
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
