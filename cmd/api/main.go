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
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ukisoft/ownplate/internal/di"
	"github.com/ukisoft/ownplate/internal/handlers"
	"github.com/ukisoft/ownplate/internal/payments"
	"github.com/ukisoft/ownplate/internal/platform/auth"
	"github.com/ukisoft/ownplate/internal/platform/config"
	pfirestore "github.com/ukisoft/ownplate/internal/platform/firestore"
	"github.com/ukisoft/ownplate/internal/platform/idempotency"
	"github.com/ukisoft/ownplate/internal/platform/notify"
	"github.com/ukisoft/ownplate/internal/platform/observability"
	"github.com/ukisoft/ownplate/internal/platform/secrets"
	"github.com/ukisoft/ownplate/internal/repositories"
	firestoreRepo "github.com/ukisoft/ownplate/internal/repositories/firestore"
	"github.com/ukisoft/ownplate/internal/repositories/memory"
	"github.com/ukisoft/ownplate/internal/services"
)

const readinessDocPath = "system/readiness"

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

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)

	var (
		firestoreProvider *pfirestore.Provider
		orderStore        repositories.OrderStore
		idempotencyStore  idempotency.Store
		checks            []repositories.DependencyCheck
	)
	if strings.TrimSpace(cfg.Firestore.ProjectID) != "" {
		var providerOpts []pfirestore.ProviderOption
		if cfg.Firebase.CredentialsFile != "" {
			providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(cfg.Firebase.CredentialsFile)))
		}
		firestoreProvider = pfirestore.NewProvider(cfg.Firestore, providerOpts...)
		if _, err := firestoreProvider.Client(ctx); err != nil {
			logger.Fatal("failed to initialise firestore client", zap.Error(err))
		}
		store, err := firestoreRepo.NewOrderStore(firestoreProvider)
		if err != nil {
			logger.Fatal("failed to initialise order store", zap.Error(err))
		}
		orderStore = store
		keys, err := idempotency.NewFirestoreStore(firestoreProvider, "")
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		idempotencyStore = keys
		checks = append(checks, firestoreCheck(firestoreProvider))
	} else {
		if !cfg.Security.IsLocal() {
			logger.Fatal("firestore project is required outside local environments")
		}
		logger.Warn("firestore project not configured; using in-memory order store")
		orderStore = memory.NewStore()
		idempotencyStore = idempotency.NewMemoryStore()
	}

	publisher, closePublisher, publisherCheck, err := newPublisher(ctx, logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise notification transport", zap.Error(err))
	}
	if publisherCheck != nil {
		checks = append(checks, *publisherCheck)
	}
	notifier, err := notify.NewDispatcher(publisher)
	if err != nil {
		logger.Fatal("failed to initialise notification dispatcher", zap.Error(err))
	}

	processor, err := newPaymentProcessor(logger, cfg)
	if err != nil {
		logger.Fatal("failed to initialise payment processor", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, di.Infrastructure{
		Store:     orderStore,
		Processor: processor,
		Notifier:  notifier,
		Clock:     time.Now,
		Logger:    observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	container.OnClose(closePublisher)
	if firestoreProvider != nil {
		container.OnClose(firestoreProvider.Close)
	}

	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if len(checks) > 0 {
		readiness, err := repositories.NewReadiness(checks)
		if err != nil {
			logger.Fatal("failed to initialise readiness checks", zap.Error(err))
		}
		healthOpts = append(healthOpts, handlers.WithHealthReadiness(readiness))
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, container.Services.Orders, container.Services.Payments,
		handlers.WithIdempotency(idempotency.Middleware(idempotencyStore, idempotency.WithTTL(cfg.Orders.IdempotencyTTL))),
		handlers.WithCallerRateLimit(cfg.Orders.RateLimit, cfg.Orders.RateWindow, time.Now),
	)

	projectID := traceProjectID(cfg)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.TraceMiddleware(projectID),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(healthOpts...)),
		handlers.WithOrderRoutes(orderHandlers.Routes),
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
		serverLogger.Info("ownplate api listening",
			zap.String("environment", buildInfo.Environment),
			zap.String("notifyTransport", cfg.Notifications.Transport),
		)
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
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("resource close error", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the secrets that must resolve to a value for the current environment.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	environment := strings.ToLower(strings.TrimSpace(env["API_SECURITY_ENVIRONMENT"]))
	if environment != "" && environment != "local" {
		required = append(required, "Stripe.SecretKey")
	}
	if strings.EqualFold(strings.TrimSpace(env["API_NOTIFY_TRANSPORT"]), "amqp") {
		required = append(required, "Notifications.AMQPURL")
	}
	return required
}

func newPaymentProcessor(logger *zap.Logger, cfg config.Config) (services.PaymentProcessor, error) {
	key := strings.TrimSpace(cfg.Stripe.SecretKey)
	if key == "" {
		logger.Warn("stripe secret key not configured; payment capture disabled")
		return payments.DisabledProcessor{}, nil
	}
	return payments.NewStripeProcessor(payments.StripeProcessorConfig{
		APIKey: key,
		Logger: observability.EventLogger(logger.Named("payments")),
	})
}

// newPublisher selects the notification transport and returns its shutdown hook and an
// optional readiness probe.
func newPublisher(ctx context.Context, logger *zap.Logger, cfg config.Config) (notify.Publisher, func(context.Context) error, *repositories.DependencyCheck, error) {
	noop := func(context.Context) error { return nil }

	switch cfg.Notifications.Transport {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, traceProjectID(cfg))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Notifications.PubSubTopic)
		publisher, err := notify.NewPubSubPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, nil, nil, err
		}
		check := &repositories.DependencyCheck{
			Name: "pubsub",
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", topic.ID())
				}
				return nil
			},
		}
		closer := func(context.Context) error {
			publisher.Stop()
			return client.Close()
		}
		return publisher, closer, check, nil
	case "amqp":
		publisher, err := notify.DialAMQP(cfg.Notifications.AMQPURL, cfg.Notifications.AMQPExchange)
		if err != nil {
			return nil, nil, nil, err
		}
		return publisher, func(context.Context) error { return publisher.Close() }, nil, nil
	default:
		return notify.NewLogPublisher(logger.Named("notify")), noop, nil, nil
	}
}

// firestoreCheck reads a well-known document; a missing document still proves connectivity.
func firestoreCheck(provider *pfirestore.Provider) repositories.DependencyCheck {
	return repositories.DependencyCheck{
		Name: "firestore",
		Check: func(ctx context.Context) error {
			ref, err := provider.Doc(ctx, readinessDocPath)
			if err != nil {
				return err
			}
			if _, err := ref.Get(ctx); err != nil && status.Code(err) != codes.NotFound {
				return err
			}
			return nil
		},
	}
}
