package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-hotel-paymentflow/internal/aws"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/checkout"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/config"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/coupons"
	appevents "github.com/imrishuroy/go-hotel-paymentflow/internal/events"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/handlers"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/history"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/idempotency"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/logging"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/payments"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratelimit"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/ratetoken"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/reconcile"
	"github.com/imrishuroy/go-hotel-paymentflow/internal/supplier"
)

// paymentStore picks the pending payment backend and the matching checkout creator.
func paymentStore(ctx context.Context, cfg *config.Config, clients *aws.AWSClients, idem *idempotency.Store) (payments.Repository, checkout.Creator, error) {
	if cfg.StoreBackend == "mongo" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURL))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		if err := client.Ping(connectCtx, nil); err != nil {
			return nil, nil, fmt.Errorf("ping mongo: %w", err)
		}
		store := payments.NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := store.EnsureIndexes(connectCtx); err != nil {
			return nil, nil, err
		}
		return store, checkout.SequentialCreator{Idem: idem, Store: store}, nil
	}

	store := payments.NewDynamoStore(clients.DynamoDB, cfg.PaymentsTable)
	return store, checkout.TransactionalCreator{
		Store:            store,
		IdempotencyTable: cfg.IdempotencyTable,
		TTL:              cfg.IdempotencyTTL,
	}, nil
}

// couponLimiter picks the limiter shared by coupon checks.
func couponLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, error) {
	if cfg.RateLimitBackend != "redis" {
		return ratelimit.NewWindowLimiter(cfg.CouponRateLimitPerMin, cfg.RateLimitSweepEvery), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return ratelimit.NewRedisLimiter(client, cfg.CouponRateLimitPerMin), nil
}

func setupRouter(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*gin.Engine, error) {
	clients, err := aws.NewAWSClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}

	idem := idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	store, creator, err := paymentStore(ctx, cfg, clients, idem)
	if err != nil {
		return nil, err
	}
	limiter, err := couponLimiter(ctx, cfg)
	if err != nil {
		return nil, err
	}
	epsilons, err := cfg.CurrencyEpsilons()
	if err != nil {
		return nil, err
	}

	var markup *float64
	if cfg.HotelMarkup != 0 {
		markup = &cfg.HotelMarkup
	}

	supplierClient := supplier.NewClient(cfg.SupplierBaseURL, cfg.SupplierAPIKey, cfg.SupplierTimeout, logger)
	codec := ratetoken.NewCodec(cfg.RateTokenSecret)
	couponStore := coupons.NewStore(clients.DynamoDB, cfg.CouponsTable)

	opts := []reconcile.Option{
		reconcile.WithLogger(logger),
		reconcile.WithHistory(history.NewStore(clients.DynamoDB, cfg.UserBookingsTable)),
		reconcile.WithMetrics(aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace, logger)),
	}
	if cfg.EventsQueueURL != "" {
		opts = append(opts, reconcile.WithNotifier(appevents.NewNotifier(aws.NewPublisher(clients.SQS, cfg.EventsQueueURL))))
	} else {
		logger.Warn("EVENTS_QUEUE_URL not set, booking confirmations will not be sent")
	}
	reconciler := reconcile.New(store, supplierClient, reconcile.Config{
		SecretKey:       cfg.IdramSecretKey,
		AmountEpsilon:   cfg.AmountEpsilon,
		CurrencyEpsilon: epsilons,
	}, opts...)

	checkoutSvc := checkout.NewService(idem, creator, codec, supplierClient, couponStore, checkout.Config{
		RecAccount:  cfg.IdramRecAccount,
		GatewayURL:  cfg.IdramPaymentURL,
		HotelMarkup: markup,
	}, logger)

	return handlers.SetupRouter(handlers.HandlerConfig{
		Reconciler:    reconciler,
		Payments:      store,
		Checkout:      checkoutSvc,
		Codec:         codec,
		Rates:         supplierClient,
		Coupons:       couponStore,
		CouponLimiter: limiter,
		HotelMarkup:   markup,
		AllowOrigins:  cfg.CORSOrigins(),
		Logger:        logger,
	}), nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r, err := setupRouter(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to wire api", zap.Error(err))
	}

	// RUN_LOCAL serves plain HTTP for development.
	if cfg.RunLocal {
		addr := ":" + cfg.AppPort
		logger.Info("running local server", zap.String("addr", addr))
		if err := r.Run(addr); err != nil {
			logger.Fatal("failed to run local server", zap.Error(err))
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
