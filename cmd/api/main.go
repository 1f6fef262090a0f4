package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/vaidashi/gallery-api/internal/api"
	"github.com/vaidashi/gallery-api/internal/auth"
	"github.com/vaidashi/gallery-api/internal/cache"
	"github.com/vaidashi/gallery-api/internal/config"
	"github.com/vaidashi/gallery-api/internal/database"
	"github.com/vaidashi/gallery-api/internal/handlers"
	"github.com/vaidashi/gallery-api/internal/media"
	"github.com/vaidashi/gallery-api/internal/metrics"
	"github.com/vaidashi/gallery-api/internal/notify"
	"github.com/vaidashi/gallery-api/internal/outbox"
	"github.com/vaidashi/gallery-api/internal/payment"
	"github.com/vaidashi/gallery-api/internal/repository"
	"github.com/vaidashi/gallery-api/internal/service"
	"github.com/vaidashi/gallery-api/pkg/circuitbreaker"
	"github.com/vaidashi/gallery-api/pkg/kafka"
	"github.com/vaidashi/gallery-api/pkg/logger"
	"github.com/vaidashi/gallery-api/pkg/middleware"
	"github.com/vaidashi/gallery-api/pkg/ratelimit"
)

func main() {
	root := &cobra.Command{
		Use:           "gallery-api",
		Short:         "Gallery storefront and commission API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(serveCmd(), migrateCmd(), createAdminCmd(), sweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and opens the database shared by every command
func bootstrap() (*config.Config, logger.Logger, *database.Database, error) {
	cfg, err := config.Load()

	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	l := logger.New(logger.Options{Level: cfg.LogLevel, Pretty: !cfg.IsProduction()})

	db, err := database.New(cfg, l)

	if err != nil {
		return nil, nil, nil, err
	}

	return cfg, l, db, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations, then serve the HTTP API and background workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.RunMigrations(); err != nil {
				return err
			}

			return serve(cfg, l, db)
		},
	}
}

func serve(cfg *config.Config, l logger.Logger, db *database.Database) error {
	l.Info("Starting API server...", "env", cfg.Env)

	m := metrics.New()
	repos := repository.NewRepositories(db, l)

	// Settings cache and delivery dedup share one optional Redis
	var settingsCache service.SettingsCache
	var deduper handlers.Deduper
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		settingsCache = cache.NewSettingsCache(rdb, cfg.Redis.TTL)
		deduper = cache.NewEventDeduper(rdb, 24*time.Hour)
		l.Info("Redis cache enabled", "addr", cfg.Redis.Addr)
	}

	settings := service.NewSettingsService(repos.Settings, settingsCache, l)

	breakers := []*circuitbreaker.CircuitBreaker{}

	gateway := payment.NewStripeGateway(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
	}, l)
	breakers = append(breakers, gateway.Breaker())

	var images media.ImageHost = media.DisabledHost{}
	if cfg.Cloudinary.URL != "" {
		host, err := media.NewCloudinaryHost(cfg.Cloudinary.URL, cfg.Cloudinary.Folder, l)
		if err != nil {
			return err
		}
		images = host
		breakers = append(breakers, host.Breaker())
	} else {
		l.Warn("CLOUDINARY_URL not set, image uploads are disabled")
	}

	var mailer notify.Mailer = notify.NewLogMailer(l)
	if cfg.SMTP.Host != "" {
		smtp, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, l)
		if err != nil {
			return err
		}
		mailer = smtp
		breakers = append(breakers, smtp.Breaker())
	}

	notifier, err := notify.NewNotifier(mailer, notify.Config{
		GalleryName: galleryName(settings),
		AdminEmail:  cfg.SMTP.AdminEmail,
		SiteURL:     cfg.SMTP.SiteURL,
	}, l)
	if err != nil {
		return err
	}

	orders := service.NewOrderService(db, repos, m, cfg.Stripe.Currency, l)
	commissions := service.NewCommissionService(db, repos, images, settings, m, l)
	payments := service.NewPaymentService(repos, gateway, orders, commissions, cfg.Stripe.Currency, m, l)
	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)
	authService := service.NewAuthService(repos.Customers, tokens, l)

	// Outbox delivery: publish to Kafka when brokers are configured, else email directly
	var delivery outbox.MessageHandler = notifier
	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled() {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, l)
		if err != nil {
			return err
		}
		defer producer.Close()

		delivery = outbox.NewKafkaHandler(producer, cfg.Kafka.EventsTopic, l)

		consumer, err = kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topics:        []string{cfg.Kafka.EventsTopic},
			ConsumerGroup: cfg.Kafka.ConsumerGroup,
			ClientID:      cfg.Kafka.ClientID,
		}, l)
		if err != nil {
			return err
		}
		consumer.RegisterHandler(cfg.Kafka.EventsTopic, handlers.NewGalleryEventsHandler(notifier, deduper, l))

		if err := consumer.Start(); err != nil {
			return err
		}
	}
	delivery = outbox.NewLoggingHandler(delivery, l)

	repos.Outbox.SetLease(cfg.Outbox.ProcessingLease)
	processor := outbox.NewProcessor(repos.Outbox, repos.DeadLetters, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollingInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	}, l)
	processor.SetFallback(delivery)
	processor.SetObserver(m.ObserveOutbox)
	processor.Start()

	dlq := outbox.NewDeadLetterProcessor(repos.DeadLetters, l, &outbox.DeadLetterProcessorConfig{
		PollingInterval: cfg.Outbox.DeadLetterInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
	})
	dlq.SetFallback(delivery)
	dlq.Start()

	sweeper := service.NewReservationSweeper(orders, cfg.Reservation.TTL, cfg.Reservation.SweepInterval, l)
	sweeper.Start()

	limiter := ratelimit.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, 30*time.Minute)
	limiter.Start(time.Minute)

	server := api.NewServer(cfg.Port, api.Dependencies{
		Orders:        orders,
		Commissions:   commissions,
		Payments:      payments,
		Settings:      settings,
		Auth:          authService,
		Tokens:        tokens,
		Artworks:      repos.Artworks,
		Notifications: repos.Notifications,
		DeadLetters:   repos.DeadLetters,
		Database:      db,
		Breakers:      breakers,
		Metrics:       m,
		RateLimiter: middleware.NewRateLimiterMiddleware(&middleware.RateLimiterConfig{
			TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		}, limiter, l),
	}, l)

	errCh := make(chan error, 1)

	// Start the server in a goroutine
	go func() {
		l.Info(fmt.Sprintf("Server is starting on port %d", cfg.Port))

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown via interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		l.Error("Failed to start server", "error", serveErr)
	}
	l.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		l.Error("Server forced to shutdown", "error", err)
	}

	sweeper.Stop()
	limiter.Stop()
	processor.Stop()
	dlq.Stop()
	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			l.Error("Failed to stop Kafka consumer", "error", err)
		}
	}

	l.Info("Server exiting")
	return serveErr
}

// galleryName reads the gallery name for email templates at startup
func galleryName(settings *service.SettingsService) string {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := settings.Get(ctx)
	if err != nil {
		return ""
	}
	return s.GalleryName
}

func migrateCmd() *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:       "migrate [up|down]",
		Short:     "Apply or roll back database migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, l, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			if args[0] == "down" {
				if err := db.RollbackMigrations(steps); err != nil {
					return err
				}
				l.Info("Rolled back migrations", "steps", steps)
				return nil
			}

			return db.RunMigrations()
		},
	}

	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return cmd
}

func createAdminCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account, or promote an existing one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			repos := repository.NewRepositories(db, l)
			tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.Issuer)

			admin, err := service.NewAuthService(repos.Customers, tokens, l).CreateAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			l.Info("Admin account ready", "customerID", admin.ID, "email", admin.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func sweepCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sweep-reservations",
		Short: "Cancel unpaid orders older than the reservation TTL once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, l, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer db.Close()

			if ttl <= 0 {
				ttl = cfg.Reservation.TTL
			}
			if ttl <= 0 {
				return fmt.Errorf("no reservation TTL configured; pass --ttl")
			}

			orders := service.NewOrderService(db, repository.NewRepositories(db, l), nil, cfg.Stripe.Currency, l)
			released, err := orders.ReleaseExpiredReservations(cmd.Context(), ttl)
			if err != nil {
				return err
			}

			l.Info("Reservation sweep finished", "released", released, "ttl", ttl)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "override the configured reservation TTL")
	return cmd
}
