package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pachory/backend/internal/config"
	httpapi "github.com/pachory/backend/internal/delivery/http"
	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/messaging"
	"github.com/pachory/backend/internal/messaging/kafka"
	"github.com/pachory/backend/internal/notifier"
	"github.com/pachory/backend/internal/payment"
	"github.com/pachory/backend/internal/repository/postgres"
	redisrepo "github.com/pachory/backend/internal/repository/redis"
	"github.com/pachory/backend/internal/service"
)

func main() {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Database ---
	db, err := postgres.InitDB(cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to init database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	productRepo := postgres.NewProductRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	refundRepo := postgres.NewRefundRepository(db)

	if err := productRepo.Seed(ctx, seedProducts()); err != nil {
		slog.Error("Failed to seed products", "err", err)
		os.Exit(1)
	}

	// --- Redis (cart store) ---
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to ping redis", "err", err)
		os.Exit(1)
	}
	cartRepo := redisrepo.NewCartRepository(redisClient)

	// --- Notifications (optional) ---
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")

		publisher, err = kafka.NewPublisher(brokers, slog.Default())
		if err != nil {
			slog.Error("Failed to create kafka publisher", "err", err)
			os.Exit(1)
		}

		subscriber, err := kafka.NewSubscriber(brokers, "pachory-admin-notifier", slog.Default())
		if err != nil {
			slog.Error("Failed to create kafka subscriber", "err", err)
			os.Exit(1)
		}
		go func() {
			if err := notifier.New(subscriber).Run(ctx, service.TopicOrderConfirmed); err != nil {
				slog.Error("Admin notifier stopped", "err", err)
			}
		}()
		slog.Info("🔄 Admin notifier started", "brokers", cfg.KafkaBrokers)
	} else {
		slog.Warn("KAFKA_BROKERS not set, order notifications disabled")
	}

	// --- Services ---
	gateway := payment.NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)

	catalogSvc := service.NewCatalogService(productRepo)
	cartSvc := service.NewCartService(cartRepo, productRepo)
	orderSvc := service.NewOrderService(productRepo, orderRepo, cartRepo, gateway, publisher, cfg.Currency)
	refundSvc := service.NewRefundService(refundRepo, orderRepo, publisher)

	// --- HTTP ---
	handler := httpapi.NewHandler(catalogSvc, cartSvc, orderSvc, refundSvc, cfg.UploadDir)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.EnableCORS(cfg.CORSOrigin, mux),
	}

	go func() {
		slog.Info("🚀 HTTP server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down...")
	httpServer.Shutdown(context.Background())
}

func seedProducts() []entity.Product {
	price := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []entity.Product{
		{ID: "prod-001", Title: "Wireless Noise-Cancelling Headphones", Description: "Premium over-ear headphones with active noise cancellation and 30-hour battery life.", Price: price("349.99"), ImageURL: "https://images.unsplash.com/photo-1505740420928-5e560c06d30e?w=400", Category: "Electronics", Stock: 50},
		{ID: "prod-002", Title: "Mechanical Keyboard RGB", Description: "Cherry MX switches with per-key RGB lighting and aluminum frame.", Price: price("179.99"), SalePrice: price("149.99"), ImageURL: "https://images.unsplash.com/photo-1618384887929-16ec33fab9ef?w=400", Category: "Electronics", Stock: 120},
		{ID: "prod-003", Title: "Ultrawide Curved Monitor 34\"", Description: "UWQHD 3440x1440 144Hz IPS panel with USB-C connectivity.", Price: price("699.99"), ImageURL: "https://images.unsplash.com/photo-1527443224154-c4a3942d3acf?w=400", Category: "Electronics", Stock: 30},
		{ID: "prod-004", Title: "Ergonomic Office Chair", Description: "Adjustable lumbar support, breathable mesh, and 4D armrests.", Price: price("549.99"), ImageURL: "https://images.unsplash.com/photo-1592078615290-033ee584e267?w=400", Category: "Furniture", Stock: 25},
		{ID: "prod-005", Title: "Smart LED Desk Lamp", Description: "Adjustable color temperature, brightness levels, and USB charging port.", Price: price("89.99"), SalePrice: price("69.99"), ImageURL: "https://images.unsplash.com/photo-1507473885765-e6ed057ab6fe?w=400", Category: "Home", Stock: 200},
		{ID: "prod-006", Title: "Premium Laptop Backpack", Description: "Water-resistant 17\" laptop compartment with anti-theft design.", Price: price("129.99"), ImageURL: "https://images.unsplash.com/photo-1553062407-98eeb64c6a62?w=400", Category: "Accessories", Stock: 80},
	}
}
