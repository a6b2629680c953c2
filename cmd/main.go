package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/SergeyBogomolovv/marketplace-checkout/docs"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/app"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/config"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/handler"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/middleware"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/notify"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/postgres"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/rdb"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/repo"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/service"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/cache"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"

	"github.com/joho/godotenv"
)

// @title           Marketplace Checkout API
// @version         1.0
// @description     Корзина, оформление и расчёты маркетплейса
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())
	if conf.Notify.Mode == "queue" && !conf.Kafka.Enabled {
		panic("invalid config: NOTIFY_MODE=queue requires KAFKA_ENABLED")
	}

	db, err := postgres.New(context.Background(), conf.Postgres)
	panicIfErr("failed to connect to db", err)
	defer db.Close()
	panicIfErr("failed to migrate db", postgres.Migrate(db))
	logger.Info("postgres connected")

	redisClient, err := rdb.New(conf.Redis)
	panicIfErr("failed to connect to redis", err)
	defer redisClient.Close()
	logger.Info("redis connected")

	txManager := trm.NewManager(db)
	catalogRepo := repo.NewCatalogRepo(db)
	cartRepo := repo.NewCartRepo(db)
	orderRepo := repo.NewOrderRepo(db)
	ledgerRepo := repo.NewLedgerRepo(db)
	couponRepo := repo.NewCouponRepo(db)
	cartCache := repo.NewCartCache(redisClient, conf.Redis.CartTTL)
	locker := repo.NewOwnerLocker(redisClient, conf.Redis.LockTTL)

	orderCache := cache.NewLRUCache[[]byte](conf.Cache.Capacity, conf.Cache.TTL)
	accountCache := cache.NewLRUCache[payment.AccountStatus](conf.Cache.Capacity, conf.Cache.TTL)

	processor := payment.NewStripeProcessor(logger, conf.Payment)

	mailer, err := notify.NewSMTPMailer(conf.SMTP)
	panicIfErr("failed to configure smtp", err)
	notifier := notify.NewService(logger, ledgerRepo, mailer)
	var dispatcher service.Dispatcher = notifier
	var consumers []app.Consumer
	if conf.Notify.Mode == "queue" {
		writer := notify.NewQueueWriter(conf.Kafka)
		defer writer.Close()
		dispatcher = notify.NewQueue(writer)
		consumers = append(consumers, handler.NewNotificationsConsumer(logger, conf.Kafka, notifier))
	}

	guard := service.NewInventoryGuard(logger, txManager, catalogRepo, orderRepo, conf.Checkout.LowStockThreshold)
	authorizer := service.NewPaymentAuthorizer(logger, processor, orderRepo, catalogRepo, accountCache, conf.Checkout.CommissionBP)

	cartService := service.NewCartService(logger, txManager, cartRepo, catalogRepo, cartCache, locker)
	checkoutService := service.NewCheckoutService(logger, txManager, locker, cartRepo, cartCache, catalogRepo,
		couponRepo, orderRepo, guard, authorizer, dispatcher,
		service.CheckoutConfig{TaxRateBP: conf.Checkout.TaxRateBP, Currency: conf.Payment.Currency})
	settlement := service.NewSettlementReconciler(logger, txManager, processor, orderRepo, dispatcher)
	cancellation := service.NewCancellationService(logger, txManager, orderRepo, processor, guard, dispatcher)
	orderService := service.NewOrderService(logger, orderRepo, ledgerRepo, orderCache, dispatcher)

	httpHandler := handler.NewHTTPHandler(logger, middleware.Auth(conf.Auth.JWTSecret),
		cartService, checkoutService, settlement, cancellation, orderService)
	webhookHandler := handler.NewWebhookHandler(logger, processor, settlement)

	if conf.Kafka.Enabled {
		consumers = append(consumers, handler.NewPaymentEventsConsumer(logger, conf.Kafka, settlement))
	}
	handler.RegisterMetrics()

	app := app.New(logger, conf)

	app.SetHTTPHandlers(httpHandler, webhookHandler)
	app.SetConsumers(consumers...)
	app.SetStarters(orderCache, accountCache)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	panicIfErr("failed to start app", app.Start(ctx))
	<-ctx.Done()
	panicIfErr("failed to stop app", app.Stop())
}

func init() {
	godotenv.Load()
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}
